// Package hub is the routing base every module builds on.
//
// A hub registers itself with the directory at construction, keeps an
// authorization policy, and holds one side of each routing edge it takes part
// in: outputs on the upstream hub, active inputs on the downstream one. Edges
// are only ever created by AddOutputs, which asks the target to authorize the
// input, and removed by RemoveOutputs, which asks the target to forget it,
// so after any completed chain both sides agree.
//
// Participants and railcars travel through EnterSingle/EnterGroup and
// RouteSingle/RouteGroup. Within a chain the order at each hub is
//
//	willEnter -> didEnter -> entered fact
//
// and for each route
//
//	willExit -> exited fact -> downstream entry -> didExit
//
// so traversal across hubs is depth-first. Modules embed *Hub and implement
// whichever of the eight lifecycle hook interfaces they need.
package hub
