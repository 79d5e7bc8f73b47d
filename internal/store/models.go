package store

import (
	"context"
	"slices"
	"time"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/ir"
)

// Trial status values.
const (
	StatusRunning    = "running"
	StatusFinished   = "finished"
	StatusUnfinished = "unfinished"
)

// Object value kinds.
const (
	KindArgument = "argument"
	KindGlobal   = "global"
	KindArg      = "arg"
	KindKwarg    = "kwarg"
	KindStararg  = "stararg"
)

// entity is a persisted record with an explicit, ordered field list.
type entity interface {
	Fields() []string
	Attr(name string) (any, bool)
}

// toDict renders e as an ordered row: extra attributes first, then every
// field not named in ignore or extra.
func toDict(e entity, ignore, extra []string) ir.Row {
	var row ir.Row
	for _, name := range extra {
		v, _ := e.Attr(name)
		row.Set(name, v)
	}
	for _, name := range e.Fields() {
		if slices.Contains(ignore, name) || slices.Contains(extra, name) {
			continue
		}
		v, _ := e.Attr(name)
		row.Set(name, v)
	}
	return row
}

// Trial is one recorded execution of a script.
type Trial struct {
	ID            string `gorm:"primaryKey"`
	Script        string
	Command       string
	Start         time.Time
	Finish        *time.Time
	Status        string
	ParentID      *string
	CodeVersion   string
	SchemaVersion string
	ToolVersion   string

	// store is set by readers so the trial can load its own activations.
	// It does not own the store.
	store *Store
}

// TableName implements gorm's tabler.
func (Trial) TableName() string { return "trial" }

// Fields lists the persisted columns in declaration order.
func (Trial) Fields() []string {
	return []string{"id", "script", "command", "start", "finish", "status",
		"parent_id", "code_version", "schema_version", "tool_version"}
}

// Attr returns a column or derived attribute by name.
func (t *Trial) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID, true
	case "script":
		return t.Script, true
	case "command":
		return t.Command, true
	case "start":
		return t.Start, true
	case "finish":
		if t.Finish == nil {
			return nil, true
		}
		return *t.Finish, true
	case "status":
		return t.Status, true
	case "parent_id":
		if t.ParentID == nil {
			return nil, true
		}
		return *t.ParentID, true
	case "code_version":
		return t.CodeVersion, true
	case "schema_version":
		return t.SchemaVersion, true
	case "tool_version":
		return t.ToolVersion, true
	case "duration":
		if t.Finish == nil {
			return nil, true
		}
		return t.Finish.Sub(t.Start), true
	}
	return nil, false
}

// ToDict renders the trial as an ordered row. extra names derived
// attributes (such as "duration") to place first.
func (t *Trial) ToDict(ignore, extra []string) ir.Row {
	return toDict(t, ignore, extra)
}

// Activations loads the trial's activation tree from the store that read it.
func (t *Trial) Activations(ctx context.Context) (*activation.Activation, error) {
	if t.store == nil {
		return nil, ErrNotConnected
	}
	return t.store.LoadActivationTree(ctx, t.ID)
}

// FunctionActivation is one persisted call. ID is the call's position in a
// depth-first walk of the trial's tree, starting at 1.
type FunctionActivation struct {
	TrialID     string `gorm:"primaryKey"`
	ID          int64  `gorm:"primaryKey;autoIncrement:false"`
	CallerID    *int64
	Name        string
	Line        int
	Lasti       int
	StartNS     int64  `gorm:"column:start_ns"`
	FinishNS    *int64 `gorm:"column:finish_ns"`
	ReturnValue string
	SliceStack  string
}

// TableName implements gorm's tabler.
func (FunctionActivation) TableName() string { return "function_activation" }

// Fields lists the persisted columns in declaration order.
func (FunctionActivation) Fields() []string {
	return []string{"trial_id", "id", "caller_id", "name", "line", "lasti",
		"start_ns", "finish_ns", "return_value", "slice_stack"}
}

// Attr returns a column or derived attribute by name.
func (f *FunctionActivation) Attr(name string) (any, bool) {
	switch name {
	case "trial_id":
		return f.TrialID, true
	case "id":
		return f.ID, true
	case "caller_id":
		if f.CallerID == nil {
			return nil, true
		}
		return *f.CallerID, true
	case "name":
		return f.Name, true
	case "line":
		return f.Line, true
	case "lasti":
		return f.Lasti, true
	case "start_ns":
		return f.StartNS, true
	case "finish_ns":
		if f.FinishNS == nil {
			return nil, true
		}
		return *f.FinishNS, true
	case "return_value":
		return f.ReturnValue, true
	case "slice_stack":
		return f.SliceStack, true
	case "duration":
		if f.FinishNS == nil {
			return nil, true
		}
		return time.Duration(*f.FinishNS - f.StartNS), true
	}
	return nil, false
}

// ToDict renders the activation as an ordered row.
func (f *FunctionActivation) ToDict(ignore, extra []string) ir.Row {
	return toDict(f, ignore, extra)
}

// ObjectValue is one argument, global, or call-site argument of a call.
type ObjectValue struct {
	ID                   int64 `gorm:"primaryKey"`
	TrialID              string
	FunctionActivationID int64
	Kind                 string
	Position             int
	Name                 string
	Value                string
}

// TableName implements gorm's tabler.
func (ObjectValue) TableName() string { return "object_value" }

// Fields lists the persisted columns in declaration order.
func (ObjectValue) Fields() []string {
	return []string{"id", "trial_id", "function_activation_id", "kind", "position", "name", "value"}
}

// Attr returns a column by name.
func (o *ObjectValue) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return o.ID, true
	case "trial_id":
		return o.TrialID, true
	case "function_activation_id":
		return o.FunctionActivationID, true
	case "kind":
		return o.Kind, true
	case "position":
		return o.Position, true
	case "name":
		return o.Name, true
	case "value":
		return o.Value, true
	}
	return nil, false
}

// ToDict renders the value as an ordered row.
func (o *ObjectValue) ToDict(ignore, extra []string) ir.Row {
	return toDict(o, ignore, extra)
}

// FileAccess is one persisted file open.
type FileAccess struct {
	ID                   int64 `gorm:"primaryKey"`
	TrialID              string
	FunctionActivationID *int64
	Name                 string
	Mode                 string
	Buffering            string
	TimestampNS          int64 `gorm:"column:timestamp_ns"`
	ContentHashBefore    string
	ContentHashAfter     string
}

// TableName implements gorm's tabler.
func (FileAccess) TableName() string { return "file_access" }

// Fields lists the persisted columns in declaration order.
func (FileAccess) Fields() []string {
	return []string{"id", "trial_id", "function_activation_id", "name", "mode", "buffering",
		"timestamp_ns", "content_hash_before", "content_hash_after"}
}

// Attr returns a column by name.
func (a *FileAccess) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "trial_id":
		return a.TrialID, true
	case "function_activation_id":
		if a.FunctionActivationID == nil {
			return nil, true
		}
		return *a.FunctionActivationID, true
	case "name":
		return a.Name, true
	case "mode":
		return a.Mode, true
	case "buffering":
		return a.Buffering, true
	case "timestamp_ns":
		return a.TimestampNS, true
	case "content_hash_before":
		return a.ContentHashBefore, true
	case "content_hash_after":
		return a.ContentHashAfter, true
	}
	return nil, false
}

// ToDict renders the access as an ordered row.
func (a *FileAccess) ToDict(ignore, extra []string) ir.Row {
	return toDict(a, ignore, extra)
}

// VariableBinding is one entry of a call's slicing context.
type VariableBinding struct {
	ID                   int64 `gorm:"primaryKey"`
	TrialID              string
	FunctionActivationID int64
	Name                 string
	Line                 int
	Lasti                int
	CallID               *int64
}

// TableName implements gorm's tabler.
func (VariableBinding) TableName() string { return "variable_binding" }

// Fields lists the persisted columns in declaration order.
func (VariableBinding) Fields() []string {
	return []string{"id", "trial_id", "function_activation_id", "name", "line", "lasti", "call_id"}
}

// Attr returns a column by name.
func (b *VariableBinding) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return b.ID, true
	case "trial_id":
		return b.TrialID, true
	case "function_activation_id":
		return b.FunctionActivationID, true
	case "name":
		return b.Name, true
	case "line":
		return b.Line, true
	case "lasti":
		return b.Lasti, true
	case "call_id":
		if b.CallID == nil {
			return nil, true
		}
		return *b.CallID, true
	}
	return nil, false
}

// ToDict renders the binding as an ordered row.
func (b *VariableBinding) ToDict(ignore, extra []string) ir.Row {
	return toDict(b, ignore, extra)
}
