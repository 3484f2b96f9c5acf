package automation

import (
	"fmt"
	"regexp"
	"time"
)

// Validation limits.
const (
	maxSteps       = 200
	maxActions     = 50
	maxTimes       = 100
	maxAttempts    = 10000
	maxRounds      = 1000
	maxNestDepth   = 2
	maxTolerance   = 255
	maxStepNameLen = 100
	kindPattern    = `^[a-z][a-z0-9_]*$`
)

var kindRegex = regexp.MustCompile(kindPattern)

// ValidateScenario checks a scenario and all of its steps.
// Returns an error describing the first validation failure found.
func ValidateScenario(sc *Scenario) error {
	if sc == nil {
		return ErrInvalidScenario
	}
	if !kindRegex.MatchString(string(sc.Kind)) {
		return fmt.Errorf("%w: kind %q must match %s", ErrInvalidScenario, sc.Kind, kindPattern)
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidScenario)
	}
	if len(sc.Steps) > maxSteps {
		return fmt.Errorf("%w: exceeds %d steps", ErrInvalidScenario, maxSteps)
	}

	readKeys := make(map[string]string)
	if err := validateSteps(sc.Steps, 0, readKeys); err != nil {
		return err
	}
	return nil
}

func validateSteps(steps []Step, depth int, readKeys map[string]string) error {
	for i := range steps {
		if err := ValidateStep(&steps[i], depth); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		st := &steps[i]
		for _, a := range st.Actions {
			in, ok := a.(InputResult)
			if !ok {
				continue
			}
			// A nickname is drawn before the step acts, so the step may type it.
			if st.Read != nil && st.Read.Source == ReadNickname && st.Read.Key == in.Key {
				continue
			}
			if _, seen := readKeys[in.Key]; !seen {
				return fmt.Errorf("step %d: %w: %s types %q before it is read", i, ErrInvalidStep, st.Name, in.Key)
			}
		}
		if st.Read != nil {
			if prev, dup := readKeys[st.Read.Key]; dup {
				return fmt.Errorf("step %d: %w: key %q already read by %s", i, ErrInvalidStep, st.Read.Key, prev)
			}
			readKeys[st.Read.Key] = st.Name
		}
		if st.Kind == KindRepeatUntil {
			if err := validateSteps(st.Body, depth+1, readKeys); err != nil {
				return fmt.Errorf("step %d (%s): %w", i, st.Name, err)
			}
		}
	}
	return nil
}

// ValidateStep checks one step. Body steps of a repeat are checked by
// ValidateScenario.
func ValidateStep(st *Step, depth int) error {
	if st == nil {
		return ErrInvalidStep
	}
	if st.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStep)
	}
	if len(st.Name) > maxStepNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidStep, maxStepNameLen)
	}
	if st.Attempts < 0 || st.Attempts > maxAttempts {
		return fmt.Errorf("%w: %s: attempts must be between 0 and %d", ErrInvalidStep, st.Name, maxAttempts)
	}
	if len(st.Actions) > maxActions {
		return fmt.Errorf("%w: %s: exceeds %d actions", ErrInvalidStep, st.Name, maxActions)
	}

	switch st.Kind {
	case KindPollAndAct:
		if st.Read != nil {
			return fmt.Errorf("%w: %s: %s cannot read", ErrInvalidStep, st.Name, st.Kind)
		}
	case KindPollAndRead, KindGatedPollAndRead:
		if st.Anchor == nil {
			return fmt.Errorf("%w: %s: %s requires an anchor", ErrInvalidStep, st.Name, st.Kind)
		}
		if err := validateRead(st); err != nil {
			return err
		}
	case KindRepeatUntil:
		if err := validateRepeat(st, depth); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidStep, st.Name, st.Kind)
	}

	if st.Anchor != nil {
		if err := validateAnchor(st.Name, st.Anchor); err != nil {
			return err
		}
	}
	for j, a := range st.Actions {
		if err := validateAction(a, st.Anchor != nil); err != nil {
			return fmt.Errorf("%w: %s: action %d: %v", ErrInvalidStep, st.Name, j, err)
		}
	}
	return nil
}

func validateRead(st *Step) error {
	if st.Read == nil {
		return fmt.Errorf("%w: %s: %s requires a read", ErrInvalidStep, st.Name, st.Kind)
	}
	if st.Read.Key == "" {
		return fmt.Errorf("%w: %s: read key is required", ErrInvalidStep, st.Name)
	}
	switch st.Read.Source {
	case ReadNickname, ReadClipboard:
	default:
		return fmt.Errorf("%w: %s: unknown read source %q", ErrInvalidStep, st.Name, st.Read.Source)
	}
	return nil
}

func validateRepeat(st *Step, depth int) error {
	if depth >= maxNestDepth {
		return fmt.Errorf("%w: %s: repeats nested deeper than %d", ErrInvalidStep, st.Name, maxNestDepth)
	}
	if st.Until == nil {
		return fmt.Errorf("%w: %s: repeat requires a saturation condition", ErrInvalidStep, st.Name)
	}
	u := st.Until
	if u.Key == "" || u.Count < 1 || u.YLimit < 0 || u.Threshold < 0 || u.Threshold > 1 {
		return fmt.Errorf("%w: %s: invalid saturation condition", ErrInvalidStep, st.Name)
	}
	if st.MaxRounds < 1 || st.MaxRounds > maxRounds {
		return fmt.Errorf("%w: %s: max rounds must be between 1 and %d", ErrInvalidStep, st.Name, maxRounds)
	}
	if len(st.Body) == 0 {
		return fmt.Errorf("%w: %s: repeat body is empty", ErrInvalidStep, st.Name)
	}
	if st.Anchor != nil || len(st.Actions) > 0 || st.Read != nil {
		return fmt.Errorf("%w: %s: repeat steps act only through their body", ErrInvalidStep, st.Name)
	}
	return nil
}

func validateAnchor(name string, a Anchor) error {
	switch v := a.(type) {
	case TemplateAnchor:
		if v.Key == "" {
			return fmt.Errorf("%w: %s: template key is required", ErrInvalidStep, name)
		}
		if v.Threshold < 0 || v.Threshold > 1 {
			return fmt.Errorf("%w: %s: threshold must be in [0, 1]", ErrInvalidStep, name)
		}
	case PixelAnchor:
		if v.Tolerance < 0 || v.Tolerance > maxTolerance {
			return fmt.Errorf("%w: %s: tolerance must be between 0 and %d", ErrInvalidStep, name, maxTolerance)
		}
	default:
		return fmt.Errorf("%w: %s: unknown anchor %T", ErrInvalidStep, name, a)
	}
	return nil
}

func validateAction(a Action, anchored bool) error {
	checkTimes := func(n int, interval time.Duration) error {
		if n < 0 || n > maxTimes {
			return fmt.Errorf("times must be between 0 and %d", maxTimes)
		}
		if interval < 0 {
			return fmt.Errorf("interval must not be negative")
		}
		return nil
	}
	switch v := a.(type) {
	case TapAnchor:
		if !anchored {
			return fmt.Errorf("tap_anchor needs an anchor")
		}
		return checkTimes(v.Times, v.Interval)
	case Tap:
		if v.X < 0 || v.Y < 0 {
			return fmt.Errorf("coordinates must not be negative")
		}
		return checkTimes(v.Times, v.Interval)
	case Swipe:
		if v.X1 < 0 || v.Y1 < 0 || v.X2 < 0 || v.Y2 < 0 || v.Duration < 0 {
			return fmt.Errorf("coordinates and duration must not be negative")
		}
		return checkTimes(v.Times, v.Interval)
	case InputText:
		if v.Text == "" {
			return fmt.Errorf("text is required")
		}
	case InputResult:
		if v.Key == "" {
			return fmt.Errorf("key is required")
		}
	case Wait:
		if v.Duration < 0 {
			return fmt.Errorf("duration must not be negative")
		}
	case StartApp:
		if v.Package == "" || v.Activity == "" {
			return fmt.Errorf("package and activity are required")
		}
	case StopApp:
		if v.Package == "" {
			return fmt.Errorf("package is required")
		}
	case RemoveFile:
		if v.Path == "" {
			return fmt.Errorf("path is required")
		}
	case nil:
		return fmt.Errorf("nil action")
	default:
		return fmt.Errorf("unknown action %T", a)
	}
	return nil
}
