package harness

import (
	"slices"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/store"
)

// Result is the outcome of running a fixture.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Errors are failed assertions.
	Errors []string

	// Warnings are capture integrity problems seen while recording.
	Warnings []string

	Trial *store.Trial

	// Root is the tree as read back from the store.
	Root *activation.Activation

	// Snapshot is the canonical rendering compared against golden files.
	Snapshot *TraceSnapshot
}

// NewResult creates a passing result.
func NewResult(trial *store.Trial, root *activation.Activation) *Result {
	return &Result{
		Pass:     true,
		Errors:   []string{},
		Warnings: []string{},
		Trial:    trial,
		Root:     root,
	}
}

// AddError records a failed assertion and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CallNames returns the names of the read-back tree in depth-first order.
func (r *Result) CallNames() []string {
	names := []string{}
	if r.Root == nil {
		return names
	}
	r.Root.Walk(func(a *activation.Activation, _ int) bool {
		names = append(names, a.Name)
		return true
	})
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
