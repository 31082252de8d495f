package ir

import (
	"fmt"
	"strconv"
)

// Address is the opaque identity of a module or an external participant.
// The empty address is the zero identity and is never eligible for
// registration.
type Address string

// IsZero reports whether a is the empty identity.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// HubID is the numeric directory id of a registered module. Ids are assigned
// 1, 2, 3, ... in registration order and never reused.
type HubID uint64

func (id HubID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// GroupID is the numeric id of a railcar (group roster), assigned from 1.
type GroupID uint64

func (id GroupID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Capability is a grant held by an address. Registration with the directory
// grants CapabilityHub.
type Capability string

const (
	// CapabilityHub marks a registered hub; required for privileged railcar
	// operations such as creating a group with a pre-set roster.
	CapabilityHub Capability = "hub"
)

// Target names a routing destination either by directory id or by reserved
// name. Exactly one of ID and Name is set.
type Target struct {
	ID   HubID  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ToID targets a hub by directory id.
func ToID(id HubID) Target {
	return Target{ID: id}
}

// ToName targets a hub by its reserved directory name.
func ToName(name string) Target {
	return Target{Name: name}
}

// IsZero reports whether the target names nothing.
func (t Target) IsZero() bool {
	return t.ID == 0 && t.Name == ""
}

func (t Target) String() string {
	if t.Name != "" {
		return fmt.Sprintf("name:%s", t.Name)
	}
	return fmt.Sprintf("id:%d", t.ID)
}
