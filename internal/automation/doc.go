// Package automation defines scenarios and runs them against one device.
//
// A Scenario is an ordered list of Steps. Each Step is one of a closed set
// of kinds:
//
//   - KindPollAndAct: wait for an anchor, then perform actions.
//   - KindPollAndRead: as above, and store a value in the result payload.
//   - KindGatedPollAndRead: as above, with the actions and the read done
//     while holding the shared clipboard gate.
//   - KindRepeatUntil: repeat a body of steps until a match-count
//     saturation check succeeds.
//
// An anchor is either a template (normalised cross-correlation against a
// cached image) or a pixel colour. Steps without an anchor act at once.
//
// # Failure model
//
// Runner.Run never returns an error for an ordinary failure. A step whose
// anchor is not found within its poll budget fails the attempt with
// ErrMatchTimeout; a driver error while acting fails it with
// ErrActionFailed. Both are reported in Outcome. Optional steps are
// skipped on poll exhaustion instead. The only error Run returns is the
// context's, when the attempt is cancelled.
//
// Scenarios are immutable once registered and shared read-only by every
// worker; all per-attempt state lives in the Runner's call frame.
package automation
