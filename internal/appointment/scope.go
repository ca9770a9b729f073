package appointment

import (
	"fmt"

	"klinikcal/internal/model"
)

// DeleteMode is the scope of a delete request, sent as ?mode=.
type DeleteMode string

const (
	// ModeSingle cancels one occurrence; for a series the backend records an exception.
	ModeSingle DeleteMode = "single"
	// ModeAfterThis ends the series before this occurrence.
	ModeAfterThis DeleteMode = "afterThis"
	// ModeAllSeries deletes the generating record.
	ModeAllSeries DeleteMode = "allSeries"
)

// SeriesModes is the fixed set of scopes offered for an occurrence of a series.
var SeriesModes = []DeleteMode{ModeSingle, ModeAfterThis, ModeAllSeries}

// ParseDeleteMode validates a mode received from a client.
func ParseDeleteMode(s string) (DeleteMode, error) {
	switch m := DeleteMode(s); m {
	case ModeSingle, ModeAfterThis, ModeAllSeries:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Confirmation is the kind of confirmation the user must give before a delete.
type Confirmation int

const (
	// ConfirmOnce is the ordinary single confirmation.
	ConfirmOnce Confirmation = iota
	// ConfirmRoutine adds a second, routine-specific warning step.
	ConfirmRoutine
	// ConfirmScope asks the user to pick one of SeriesModes.
	ConfirmScope
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmOnce:
		return "once"
	case ConfirmRoutine:
		return "routine"
	case ConfirmScope:
		return "scope"
	default:
		return "unknown"
	}
}

// Steps is the number of user confirmations before the request is sent.
func (c Confirmation) Steps() int {
	switch c {
	case ConfirmRoutine:
		return 2
	default:
		return 1
	}
}

func (c Confirmation) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DeleteScope is the outcome of ResolveDeleteScope.
type DeleteScope struct {
	// Mode is set when the delete needs no scope choice.
	Mode           DeleteMode   `json:"mode,omitempty"`
	RequiresPrompt bool         `json:"requiresPrompt"`
	Modes          []DeleteMode `json:"modes,omitempty"`
	Confirm        Confirmation `json:"confirm"`
}

// ResolveDeleteScope decides how deleting in must be confirmed.
//
// An occurrence synthesized from a series always prompts for a scope. A
// routine appointment is never deleted on a single click. Everything else is
// one confirmation and a direct delete.
func ResolveDeleteScope(in model.AppointmentInstance) DeleteScope {
	if model.IsVirtualID(in.ID) {
		modes := make([]DeleteMode, len(SeriesModes))
		copy(modes, SeriesModes)
		return DeleteScope{RequiresPrompt: true, Modes: modes, Confirm: ConfirmScope}
	}
	if in.AppointmentType == model.TypeRoutine {
		return DeleteScope{Mode: ModeSingle, Confirm: ConfirmRoutine}
	}
	return DeleteScope{Mode: ModeSingle, Confirm: ConfirmOnce}
}

// DeleteDecision is what the user answered to the prompt.
type DeleteDecision struct {
	Mode             DeleteMode
	RoutineConfirmed bool
}

// ResolveDelete checks a user decision against the scope and returns the mode
// to send. A virtual occurrence without a chosen mode is an error, never a
// silent default.
func ResolveDelete(in model.AppointmentInstance, d DeleteDecision) (DeleteMode, error) {
	scope := ResolveDeleteScope(in)
	switch scope.Confirm {
	case ConfirmScope:
		if d.Mode == "" {
			return "", ErrScopeRequired
		}
		return ParseDeleteMode(string(d.Mode))
	case ConfirmRoutine:
		if !d.RoutineConfirmed {
			return "", ErrConfirmationRequired
		}
		return scope.Mode, nil
	default:
		return scope.Mode, nil
	}
}
