package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/ksuid"
)

// SessionState models the lifecycle of a push session
type SessionState string

const (
	// SessionInit is the state of a freshly initialized session
	SessionInit SessionState = "init"

	// SessionStaging indicates that the session has received uploads
	SessionStaging SessionState = "staging"

	// SessionCommitting indicates that the session changes are being applied to the dataset
	SessionCommitting SessionState = "committing"

	// SessionCommitted indicates that the session has been successfully committed. This is a terminal state.
	SessionCommitted SessionState = "committed"

	// SessionAborted indicates that the session has been abandoned. This is a terminal state.
	SessionAborted SessionState = "aborted"
)

// IsValid checks the value of a session state
func (s SessionState) IsValid() bool {
	switch s {
	case SessionInit, SessionStaging, SessionCommitting, SessionCommitted, SessionAborted:
		return true
	default:
		return false
	}
}

// IsTerminal tells if the state is a terminal one
func (s SessionState) IsTerminal() bool {
	return s == SessionCommitted || s == SessionAborted
}

// AcceptsUploads tells if a session in this state may receive files and metadata
func (s SessionState) AcceptsUploads() bool {
	return s == SessionInit || s == SessionStaging
}

func (s SessionState) String() string {
	return string(s)
}

func (s SessionState) rank() int {
	switch s {
	case SessionInit:
		return 0
	case SessionStaging:
		return 1
	case SessionCommitting:
		return 2
	case SessionCommitted, SessionAborted:
		return 3
	default:
		return -1
	}
}

// CanTransition tells if moving from a state to another one is legit.
//
// Transitions only move forward: Init → Staging → Committing → {Committed | Aborted}.
// A session may be aborted from any non-terminal state. Staying in the same non-terminal state is allowed.
func (s SessionState) CanTransition(to SessionState) bool {
	if !s.IsValid() || !to.IsValid() || s.IsTerminal() {
		return false
	}
	switch to {
	case SessionAborted:
		return true
	case SessionCommitted:
		return s == SessionCommitting
	default:
		return to.rank() >= s.rank()
	}
}

// PushSession models the metadata of a push session
type PushSession struct {
	Token     string       `json:"token" yaml:"token"`
	Dataset   DatasetRef   `json:"dataset" yaml:"dataset"`
	Baseline  Stamp        `json:"baseline" yaml:"baseline"`     // the client stamp captured at init time. It is never modified.
	Upstream  Stamp        `json:"upstream" yaml:"upstream"`     // the dataset stamp observed at init time
	Staged    []string     `json:"staged" yaml:"staged"`         // sorted relative paths of uploaded files
	Meta      []byte       `json:"meta,omitempty" yaml:"meta"`   // the metadata patch, as uploaded
	CreatedAt time.Time    `json:"createdAt" yaml:"createdAt"`
	State     SessionState `json:"state" yaml:"state"`
	_         struct{}
}

// HasStaged tells if a relative path has been uploaded
func (s PushSession) HasStaged(pth string) bool {
	i := sort.SearchStrings(s.Staged, pth)
	return i < len(s.Staged) && s.Staged[i] == pth
}

// Age of the session at some point in time
func (s PushSession) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// NewToken generates a new session token
func NewToken() string {
	token, err := ksuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("cannot generate random ksuid: %v", err))
	}
	return token.String()
}
