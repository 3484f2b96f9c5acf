package automation

import "errors"

var (
	// ErrMatchTimeout is reported when a step's anchor was not found within
	// its poll budget.
	ErrMatchTimeout = errors.New("automation: anchor not found")

	// ErrActionFailed is reported when the driver failed to perform a gesture.
	ErrActionFailed = errors.New("automation: action failed")

	// ErrReadFailed is reported when a result producer returned no value.
	ErrReadFailed = errors.New("automation: result read failed")

	// ErrUnsupportedAction is wrapped into ErrActionFailed when the driver
	// lacks a capability the action needs.
	ErrUnsupportedAction = errors.New("automation: driver does not support action")

	// ErrInvalidScenario is returned when a scenario fails validation.
	ErrInvalidScenario = errors.New("automation: invalid scenario")

	// ErrInvalidStep is returned when a step fails validation.
	ErrInvalidStep = errors.New("automation: invalid step")

	// ErrScenarioNotFound is returned for an unregistered scenario kind.
	ErrScenarioNotFound = errors.New("automation: scenario not found")

	// ErrScenarioExists is returned when registering a kind twice.
	ErrScenarioExists = errors.New("automation: scenario already registered")
)
