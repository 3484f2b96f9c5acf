package automation

import (
	"context"
	"image"
	"time"

	"github.com/nerrad567/packpilot/internal/vision"
)

// Kind names a scenario in the registry.
type Kind string

// Built-in scenario kinds.
const (
	KindPackGather Kind = "pack_gather"
	KindPackOpen   Kind = "pack_open"
	KindFriendAdd  Kind = "friend_add"
	KindDataDelete Kind = "data_delete"
)

// Scenario is a named, ordered sequence of steps. It is never mutated
// after registration.
type Scenario struct {
	Kind  Kind
	Steps []Step
}

// StepKind selects how a step is executed.
type StepKind string

const (
	KindPollAndAct       StepKind = "poll_and_act"
	KindPollAndRead      StepKind = "poll_and_read"
	KindGatedPollAndRead StepKind = "gated_poll_and_read"
	KindRepeatUntil      StepKind = "repeat_until"
)

// Step is one unit of a scenario: wait for an anchor, then act.
type Step struct {
	Name string
	Kind StepKind

	// Anchor is awaited before acting. Nil means act immediately; only
	// KindPollAndAct steps may omit it.
	Anchor Anchor

	// Actions run in order once the anchor is found.
	Actions []Action

	// Read names the value a read step stores in the payload.
	Read *Read

	// Attempts overrides the runner's default poll budget when > 0.
	Attempts int

	// Optional steps are skipped, not failed, when the anchor is not found.
	Optional bool

	// Body, Until and MaxRounds apply to KindRepeatUntil only. Each round
	// first evaluates Until on a fresh capture and stops when it holds,
	// otherwise runs Body. Reaching MaxRounds without saturation counts as
	// poll exhaustion.
	Body      []Step
	Until     *Saturation
	MaxRounds int
}

// Anchor is a visual condition located in a capture. The set of anchors
// is closed: TemplateAnchor and PixelAnchor.
type Anchor interface {
	anchor()
}

// TemplateAnchor matches a cached template by normalised cross-correlation.
type TemplateAnchor struct {
	Key string

	// Threshold is the minimum score; 0 uses the runner default.
	Threshold float64
}

// PixelAnchor matches the first pixel within Tolerance of Color on every
// channel.
type PixelAnchor struct {
	Color     vision.RGB
	Tolerance int
}

func (TemplateAnchor) anchor() {}
func (PixelAnchor) anchor()    {}

// Saturation holds when at least Count non-overlapping matches of the
// template lie within the top YLimit rows of a capture.
type Saturation struct {
	Key       string
	Threshold float64
	YLimit    int
	Count     int
}

// ReadSource selects where a read step takes its value from.
type ReadSource string

const (
	// ReadNickname draws a nickname before the step's actions run, so an
	// InputResult action can type it.
	ReadNickname ReadSource = "nickname"

	// ReadClipboard reads the host clipboard after the step's actions.
	ReadClipboard ReadSource = "clipboard"
)

// Read stores the value from Source under Key in the result payload.
type Read struct {
	Source ReadSource
	Key    string
}

// Action is one gesture or device command. The set is closed.
type Action interface {
	action()
}

// TapAnchor taps the matched anchor centre Times times.
type TapAnchor struct {
	Times    int
	Interval time.Duration
}

// Tap taps a fixed coordinate Times times.
type Tap struct {
	X, Y     int
	Times    int
	Interval time.Duration
}

// Swipe drags from (X1, Y1) to (X2, Y2) over Duration, Times times.
type Swipe struct {
	X1, Y1   int
	X2, Y2   int
	Duration time.Duration
	Times    int
	Interval time.Duration
}

// InputText types a literal string.
type InputText struct {
	Text string
}

// InputResult types the payload value stored under Key.
type InputResult struct {
	Key string
}

// Wait pauses for Duration.
type Wait struct {
	Duration time.Duration
}

// StartApp launches Package/Activity.
type StartApp struct {
	Package  string
	Activity string
}

// StopApp force-stops Package.
type StopApp struct {
	Package string
}

// RemoveFile deletes a file on the device.
type RemoveFile struct {
	Path string
}

func (TapAnchor) action()   {}
func (Tap) action()         {}
func (Swipe) action()       {}
func (InputText) action()   {}
func (InputResult) action() {}
func (Wait) action()        {}
func (StartApp) action()    {}
func (StopApp) action()     {}
func (RemoveFile) action()  {}

// Driver is the per-device gesture and capture interface. Implementations
// are bound to one device.
type Driver interface {
	Capture(ctx context.Context) (image.Image, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error
	InputText(ctx context.Context, text string) error
}

// AppController is implemented by drivers that can manage apps and files.
type AppController interface {
	StartApp(ctx context.Context, pkg, activity string) error
	StopApp(ctx context.Context, pkg string) error
	RemoveFile(ctx context.Context, path string) error
}

// ClipboardReader reads the host clipboard.
type ClipboardReader interface {
	Read(ctx context.Context) (string, error)
}

// NicknameSource supplies nicknames for new accounts.
type NicknameSource interface {
	Nickname() (string, error)
}

// TemplateSource looks up cached templates.
type TemplateSource interface {
	Lookup(key string) (*image.Gray, error)
}

// StepOutcome describes how a step ended.
type StepOutcome string

const (
	StepOutcomeCompleted StepOutcome = "completed"
	StepOutcomeSkipped   StepOutcome = "skipped"
	StepOutcomeFailed    StepOutcome = "failed"
)

// StepReport records one executed step.
type StepReport struct {
	Name    string
	Outcome StepOutcome
	Polls   int
	Elapsed time.Duration
}

// Outcome is the result of one scenario attempt.
type Outcome struct {
	Success bool

	// FailedStep names the step that failed the attempt.
	FailedStep string

	// Err is the cause of the failure: ErrMatchTimeout, ErrActionFailed,
	// ErrReadFailed or a template lookup error.
	Err error

	// Payload holds values stored by read steps.
	Payload map[string]string

	Steps []StepReport
}
