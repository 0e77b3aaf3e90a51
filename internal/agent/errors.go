package agent

import (
	"errors"
	"fmt"
)

// Operation failures are data, not panics. Callers match these with
// errors.Is and render them as {"error": ...} payloads at the boundary.
var (
	// ErrInactiveAgent is returned when an operation is invoked on a
	// deactivated agent. No state changes.
	ErrInactiveAgent = errors.New("agent is not active")

	// ErrUnknownOperation is returned for an unrecognized operation
	// discriminator. Wrap it with the offending value.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrNoInput is returned when required input (traffic, attack path,
	// training data) is empty. Distinct from a valid zero-findings result.
	ErrNoInput = errors.New("no input data provided")

	// ErrMissingDependency is returned when a workflow references an agent
	// that is not registered. The workflow fails before any step executes.
	ErrMissingDependency = errors.New("missing required agent")
)

// UnknownOp wraps ErrUnknownOperation with the unrecognized value.
func UnknownOp(op string) error {
	return fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

// ParamString extracts a string parameter, falling back to def.
func ParamString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

// ParamFloat extracts a numeric parameter as float64, falling back to def.
func ParamFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// ParamBool extracts a bool parameter, falling back to def.
func ParamBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

// ParamInt extracts a numeric parameter as int, falling back to def.
func ParamInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
