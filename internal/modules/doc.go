// Package modules holds the reference hubs shipped with railyard.
//
// Relay forwards whatever enters it and starts chains through Launch. Queue
// is scheduler-enabled: it buffers participants and, on each dispatch, moves
// them onward together in one railcar. Both are small enough to read as
// examples of the hook contract.
package modules
