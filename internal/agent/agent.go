// Package agent defines the capability protocol shared by every engine in
// the simulator: the Agent interface, the request/result shapes, and the
// structured error taxonomy callers dispatch on.
package agent

// Kind identifies an agent variant.
type Kind string

const (
	KindDetection    Kind = "detection"
	KindDefense      Kind = "defense"
	KindOffense      Kind = "offense"
	KindOrchestrator Kind = "orchestrator"
)

// Request is one operation invocation: a discriminator plus an
// operation-specific parameter bag.
type Request struct {
	Op     string         `json:"operation"`
	Params map[string]any `json:"params,omitempty"`
}

// Status is the externally visible state of an agent.
type Status struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Capabilities []string       `json:"capabilities"`
	Active       bool           `json:"active"`
	State        map[string]any `json:"state"`
}

// Agent is the capability interface every engine implements. Process returns
// a structured result or one of the taxonomy errors; it never panics across
// the package boundary.
type Agent interface {
	Kind() Kind
	Activate()
	Deactivate()
	Active() bool
	Process(req Request) (any, error)
	Status() Status
	Reset()
}
