package automation

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Runner.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds validated scenarios by kind.
//
// Scenarios are stored as given and handed out by pointer: they must not
// be modified after Register. All public methods are thread-safe.
type Registry struct {
	scenarios map[Kind]*Scenario
	mu        sync.RWMutex
	logger    Logger
}

// NewRegistry creates an empty scenario registry.
func NewRegistry() *Registry {
	return &Registry{
		scenarios: make(map[Kind]*Scenario),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register validates and stores a scenario.
func (r *Registry) Register(sc *Scenario) error {
	if err := ValidateScenario(sc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scenarios[sc.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrScenarioExists, sc.Kind)
	}
	r.scenarios[sc.Kind] = sc

	r.logger.Debug("scenario registered", "kind", sc.Kind, "steps", len(sc.Steps))
	return nil
}

// Get returns the scenario registered for kind.
func (r *Registry) Get(kind Kind) (*Scenario, error) {
	r.mu.RLock()
	sc, ok := r.scenarios[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, kind)
	}
	return sc, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.scenarios))
	for k := range r.scenarios {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count returns the number of registered scenarios.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenarios)
}

// TemplateKeys returns every template key sc references, sorted and
// without duplicates. Callers use it to check a template directory before
// starting workers.
func TemplateKeys(sc *Scenario) []string {
	seen := make(map[string]struct{})
	var walk func(steps []Step)
	walk = func(steps []Step) {
		for i := range steps {
			st := &steps[i]
			if ta, ok := st.Anchor.(TemplateAnchor); ok {
				seen[ta.Key] = struct{}{}
			}
			if st.Until != nil {
				seen[st.Until.Key] = struct{}{}
			}
			walk(st.Body)
		}
	}
	walk(sc.Steps)

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
