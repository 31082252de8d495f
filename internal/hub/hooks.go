package hub

import (
	"github.com/roach88/railyard/internal/engine"
	"github.com/roach88/railyard/internal/ir"
)

// Lifecycle hooks. A module implements only the ones its role needs; the rest
// are no-ops. Returning an error aborts the chain.

// WillEnterSingle runs before a participant is admitted.
type WillEnterSingle interface {
	WillEnterSingle(call *engine.Call, participant ir.Address) error
}

// DidEnterSingle runs after a participant is admitted. Forwarding modules
// route onward from here.
type DidEnterSingle interface {
	DidEnterSingle(call *engine.Call, participant ir.Address) error
}

// WillExitSingle runs before a participant is routed out.
type WillExitSingle interface {
	WillExitSingle(call *engine.Call, participant ir.Address) error
}

// DidExitSingle runs after the downstream hub has returned.
type DidExitSingle interface {
	DidExitSingle(call *engine.Call, participant ir.Address) error
}

// WillEnterGroup runs before a railcar is admitted.
type WillEnterGroup interface {
	WillEnterGroup(call *engine.Call, group ir.GroupID) error
}

// DidEnterGroup runs after a railcar is admitted.
type DidEnterGroup interface {
	DidEnterGroup(call *engine.Call, group ir.GroupID) error
}

// WillExitGroup runs before a railcar is routed out.
type WillExitGroup interface {
	WillExitGroup(call *engine.Call, group ir.GroupID) error
}

// DidExitGroup runs after the downstream hub has returned.
type DidExitGroup interface {
	DidExitGroup(call *engine.Call, group ir.GroupID) error
}

type (
	singleHook func(*engine.Call, ir.Address) error
	groupHook  func(*engine.Call, ir.GroupID) error
)

func noopSingle(*engine.Call, ir.Address) error { return nil }
func noopGroup(*engine.Call, ir.GroupID) error  { return nil }

// hookSet is the module's hooks resolved once at construction.
type hookSet struct {
	willEnterSingle singleHook
	didEnterSingle  singleHook
	willExitSingle  singleHook
	didExitSingle   singleHook
	willEnterGroup  groupHook
	didEnterGroup   groupHook
	willExitGroup   groupHook
	didExitGroup    groupHook
}

func resolveHooks(m any) hookSet {
	h := hookSet{
		willEnterSingle: noopSingle,
		didEnterSingle:  noopSingle,
		willExitSingle:  noopSingle,
		didExitSingle:   noopSingle,
		willEnterGroup:  noopGroup,
		didEnterGroup:   noopGroup,
		willExitGroup:   noopGroup,
		didExitGroup:    noopGroup,
	}
	if v, ok := m.(WillEnterSingle); ok {
		h.willEnterSingle = v.WillEnterSingle
	}
	if v, ok := m.(DidEnterSingle); ok {
		h.didEnterSingle = v.DidEnterSingle
	}
	if v, ok := m.(WillExitSingle); ok {
		h.willExitSingle = v.WillExitSingle
	}
	if v, ok := m.(DidExitSingle); ok {
		h.didExitSingle = v.DidExitSingle
	}
	if v, ok := m.(WillEnterGroup); ok {
		h.willEnterGroup = v.WillEnterGroup
	}
	if v, ok := m.(DidEnterGroup); ok {
		h.didEnterGroup = v.DidEnterGroup
	}
	if v, ok := m.(WillExitGroup); ok {
		h.willExitGroup = v.WillExitGroup
	}
	if v, ok := m.(DidExitGroup); ok {
		h.didExitGroup = v.DidExitGroup
	}
	return h
}
