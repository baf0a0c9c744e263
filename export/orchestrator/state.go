package orchestrator

import (
	"time"

	"printdesign-server/core"
)

// State is a step of the per-view export state machine.
type State string

const (
	Idle          State = "idle"
	ResolvingZone State = "resolving-zone"
	Rendering     State = "rendering"
	Persisting    State = "persisting"
	Done          State = "done"
	Failed        State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Event is emitted on every state transition of a view.
type Event struct {
	DesignID   string         `json:"designId"`
	TemplateID string         `json:"templateId"`
	ViewID     string         `json:"viewId"`
	State      State          `json:"state"`
	Message    string         `json:"message,omitempty"`
	Code       core.ErrorCode `json:"code,omitempty"`
	At         time.Time      `json:"at"`
}

type Observer interface {
	OnTransition(Event)
}

// ObserverFunc adapts a func to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnTransition(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) OnTransition(Event) {}
