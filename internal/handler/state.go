package handler

// State is the lifecycle position of a handler run. States advance strictly
// in the order declared below; the only non-linear transition is the jump
// from any linear state to the error-notify branch when a fatal error
// occurs.
type State int

const (
	StateInitial State = iota
	StateInitialised
	StateResolved
	StatePreprocessed
	StateChecked
	StateProcessed
	StatePublished
	StatePostprocessed
	StateNotifiedSuccess
	StateNotifiedError
	StateCompleted
	StateCompletedWithErrors
)

var stateNames = map[State]string{
	StateInitial:             "initial",
	StateInitialised:         "initialised",
	StateResolved:            "resolved",
	StatePreprocessed:        "preprocessed",
	StateChecked:             "checked",
	StateProcessed:           "processed",
	StatePublished:           "published",
	StatePostprocessed:       "postprocessed",
	StateNotifiedSuccess:     "notified_success",
	StateNotifiedError:       "notified_error",
	StateCompleted:           "completed",
	StateCompletedWithErrors: "completed_with_errors",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCompletedWithErrors
}
