package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed fixture.cue
var fixtureSchema string

// Fixture describes one synthetic trial.
type Fixture struct {
	// Name identifies the fixture and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the fixture exercises.
	Description string `yaml:"description"`

	// Script is recorded as the trial's script.
	Script string `yaml:"script"`

	// Command is recorded as the trial's command line.
	Command string `yaml:"command,omitempty"`

	// TrialID fixes the trial id. Defaults to "fixture-<name>".
	TrialID string `yaml:"trial_id,omitempty"`

	// StepMS is the clock step per event in milliseconds. Defaults to 1.
	StepMS int `yaml:"step_ms,omitempty"`

	// Files are written under the base path before the trial runs.
	Files map[string]string `yaml:"files,omitempty"`

	// Root is the top-level call.
	Root Call `yaml:"root"`

	// Assertions are checked against the persisted trial.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Call is one function activation in a fixture.
type Call struct {
	Name      string         `yaml:"name"`
	Line      int            `yaml:"line"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
	Args      []any          `yaml:"args,omitempty"`
	Kwargs    map[string]any `yaml:"kwargs,omitempty"`
	Starargs  []any          `yaml:"starargs,omitempty"`
	Globals   map[string]any `yaml:"globals,omitempty"`

	// Files are opened in order when the call starts.
	Files []FileOp `yaml:"files,omitempty"`

	// Calls are made after the files are opened, in order.
	Calls []Call `yaml:"calls,omitempty"`

	// Assign binds this call's return value to a variable in the caller.
	Assign string `yaml:"assign,omitempty"`

	// Context adds bindings that did not come from a call.
	Context []Binding `yaml:"context,omitempty"`

	// SliceMarkers are pushed and left on the slice stack.
	SliceMarkers []Marker `yaml:"slice_markers,omitempty"`

	Returns any `yaml:"returns,omitempty"`

	// Pending makes the call never return. Recording stops there, as if
	// the program crashed.
	Pending bool `yaml:"pending,omitempty"`
}

// FileOp is one file open. With Write set, the content is written to the
// file after its "before" snapshot is taken.
type FileOp struct {
	Name      string  `yaml:"name"`
	Mode      string  `yaml:"mode,omitempty"`
	Buffering string  `yaml:"buffering,omitempty"`
	Write     *string `yaml:"write,omitempty"`
}

// Binding is a context entry.
type Binding struct {
	Name  string `yaml:"name"`
	Line  int    `yaml:"line"`
	Lasti int    `yaml:"lasti"`
}

// Marker is a slice stack entry.
type Marker struct {
	Line  int `yaml:"line"`
	Lasti int `yaml:"lasti"`
}

// Assertion checks one property of the persisted trial.
type Assertion struct {
	Type    string         `yaml:"type"`
	Calls   []string       `yaml:"calls,omitempty"`
	Name    string         `yaml:"name,omitempty"`
	Count   int            `yaml:"count,omitempty"`
	Value   any            `yaml:"value,omitempty"`
	File    string         `yaml:"file,omitempty"`
	Content string         `yaml:"content,omitempty"`
	Status  string         `yaml:"status,omitempty"`
	SQL     string         `yaml:"sql,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCallOrder    = "call_order"
	AssertCallCount    = "call_count"
	AssertReturns      = "returns"
	AssertFileSnapshot = "file_snapshot"
	AssertStatus       = "status"
	AssertQuery        = "query"
)

// LoadFixture reads, validates and decodes a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture validates and decodes fixture YAML, then runs CheckFixture.
func ParseFixture(data []byte) (*Fixture, error) {
	if err := ValidateFixture(data); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}

	// Strict decode catches typos the schema's open value types let through.
	var fx Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if errs := CheckFixture(&fx); len(errs) > 0 {
		return nil, fmt.Errorf("invalid fixture: %w", errs)
	}
	return &fx, nil
}

// ValidateFixture checks fixture YAML against the CUE schema. Schema
// violations are returned as ValidationErrors.
func ValidateFixture(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("empty fixture")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(fixtureSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile fixture schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Fixture"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return schemaErrors(err)
	}
	return nil
}

// TrialIDOrDefault returns the configured trial id or "fixture-<name>".
func (f *Fixture) TrialIDOrDefault() string {
	if f.TrialID != "" {
		return f.TrialID
	}
	return "fixture-" + f.Name
}
