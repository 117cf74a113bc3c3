// Package view drives the project detail page: one identifier in, one fetch
// out, and a single State that the render layer maps to exactly one branch.
package view

import (
	"fmt"

	"projectdesk/internal/domain"
)

// State is the controller's view state. It is one of Idle, Loading, Loaded
// or Failed; no other implementations exist.
type State interface {
	isState()
	String() string
}

// Idle is the state before any identifier has been received.
type Idle struct{}

// Loading means a fetch for ID is in flight.
type Loading struct {
	ID int64
}

// Loaded holds the record returned for ID.
type Loaded struct {
	ID      int64
	Project domain.Project
}

// Failed holds the fetch failure for ID. Reason is the error text verbatim.
type Failed struct {
	ID     int64
	Reason string
	Err    error
}

func (Idle) isState()    {}
func (Loading) isState() {}
func (Loaded) isState()  {}
func (Failed) isState()  {}

func (Idle) String() string      { return "idle" }
func (s Loading) String() string { return fmt.Sprintf("loading(%d)", s.ID) }
func (s Loaded) String() string  { return fmt.Sprintf("loaded(%d)", s.ID) }
func (s Failed) String() string  { return fmt.Sprintf("failed(%d): %s", s.ID, s.Reason) }

// Unwrap exposes the collaborator's error to errors.Is and errors.As.
func (s Failed) Unwrap() error { return s.Err }

func (s Failed) Error() string { return s.Reason }

// Branch is one of the mutually exclusive render outputs.
type Branch int

const (
	BranchNone Branch = iota
	BranchLoading
	BranchError
	BranchDetail
)

func (b Branch) String() string {
	switch b {
	case BranchLoading:
		return "loading"
	case BranchError:
		return "error"
	case BranchDetail:
		return "detail"
	default:
		return "none"
	}
}

// SelectBranch maps a state to its render branch. Precedence is loading,
// then error, then detail; idle renders nothing.
func SelectBranch(s State) Branch {
	if _, ok := s.(Loading); ok {
		return BranchLoading
	}
	if _, ok := s.(Failed); ok {
		return BranchError
	}
	if _, ok := s.(Loaded); ok {
		return BranchDetail
	}
	return BranchNone
}
