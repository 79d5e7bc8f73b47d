package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/ir"
)

// TrialRecord is a finished (or abandoned) capture handed to SaveTrial.
type TrialRecord struct {
	// ID is the trial id. Generated when empty.
	ID string

	Script  string
	Command string

	// Start is the wall-clock instant activation timestamps are relative to.
	Start time.Time

	// Finish is the wall-clock end. Derived from the root's finish when zero.
	Finish time.Time

	// ParentID overrides the parent lookup (parent config, then the most
	// recent trial).
	ParentID string

	// Root is the top-level activation. May be nil for a trial that
	// recorded no calls.
	Root *activation.Activation

	// Thread selects the session to write through. A new one is used when
	// empty.
	Thread ThreadID
}

// SaveTrial snapshots the files the trial touched, flattens its activation
// tree in call order and writes everything in one transaction on the thread's
// session. Records already pending on that session are left untouched.
func (s *Store) SaveTrial(ctx context.Context, rec TrialRecord) (*Trial, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	if rec.ID == "" {
		rec.ID = s.opts.IDs.Generate()
	}
	if rec.Start.IsZero() {
		rec.Start = time.Now()
	}
	// Stored as text; one offset keeps ORDER BY start chronological.
	rec.Start = rec.Start.UTC()
	if rec.Thread == "" {
		rec.Thread = NewThreadID()
	}

	parent, err := s.resolveParent(ctx, rec.ParentID)
	if err != nil {
		return nil, fmt.Errorf("save trial: %w", err)
	}

	trial := &Trial{
		ID:            rec.ID,
		Script:        rec.Script,
		Command:       rec.Command,
		Start:         rec.Start,
		Status:        StatusUnfinished,
		CodeVersion:   codeVersion(s.Layout().BasePath),
		SchemaVersion: ir.SchemaVersion,
		ToolVersion:   ir.ToolVersion,
		store:         s,
	}
	if parent != "" {
		trial.ParentID = &parent
	}
	if rec.Root != nil && treeFinished(rec.Root) {
		trial.Status = StatusFinished
		if rec.Finish.IsZero() {
			rec.Finish = rec.Start.Add(rec.Root.Finish)
		}
	}
	if !rec.Finish.IsZero() {
		finish := rec.Finish.UTC()
		trial.Finish = &finish
	}

	records, err := s.flatten(trial.ID, rec.Root)
	if err != nil {
		return nil, fmt.Errorf("save trial: %w", err)
	}

	session, err := s.Session(rec.Thread)
	if err != nil {
		return nil, err
	}
	if err := session.write(ctx, append([]any{trial}, records...)); err != nil {
		return nil, fmt.Errorf("save trial %s: %w", trial.ID, err)
	}

	s.opts.Logger.Debug("trial saved",
		"trial", trial.ID,
		"status", trial.Status,
		"records", len(records))
	return trial, nil
}

// resolveParent picks the parent trial: explicit id, then the parent
// config, then the most recent trial.
func (s *Store) resolveParent(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	id, err := s.ReadParentTrial()
	if err != nil || id != "" {
		return id, err
	}
	last, err := s.LatestTrial(ctx)
	if errors.Is(err, ErrTrialNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return last.ID, nil
}

// flatten converts the tree into insertable records: all activations in
// depth-first order, then their values, file accesses and bindings.
func (s *Store) flatten(trialID string, root *activation.Activation) ([]any, error) {
	if root == nil {
		return nil, nil
	}

	ids := make(map[*activation.Activation]int64)
	var order []*activation.Activation
	root.Walk(func(a *activation.Activation, _ int) bool {
		order = append(order, a)
		ids[a] = int64(len(order))
		return true
	})

	var acts, rest []any
	for _, a := range order {
		id := ids[a]
		fa, err := activationRecord(trialID, id, a)
		if err != nil {
			return nil, err
		}
		acts = append(acts, fa)

		values, err := objectValues(trialID, id, a)
		if err != nil {
			return nil, err
		}
		rest = append(rest, values...)

		for _, access := range a.FileAccesses {
			rec, err := s.fileAccessRecord(trialID, id, access)
			if err != nil {
				return nil, err
			}
			rest = append(rest, rec)
		}

		for _, name := range sortedKeys(a.Context) {
			point := a.Context[name]
			binding := &VariableBinding{
				TrialID:              trialID,
				FunctionActivationID: id,
				Name:                 name,
				Line:                 point.Line,
				Lasti:                point.Lasti,
			}
			if point.Call != nil {
				if callID, ok := ids[point.Call]; ok {
					binding.CallID = &callID
				}
			}
			rest = append(rest, binding)
		}
	}

	// Children reference their caller by id; fill those in now that every
	// activation has one.
	for _, a := range order {
		for _, child := range a.FunctionActivations {
			callerID := ids[a]
			acts[ids[child]-1].(*FunctionActivation).CallerID = &callerID
		}
	}
	return append(acts, rest...), nil
}

func activationRecord(trialID string, id int64, a *activation.Activation) (*FunctionActivation, error) {
	ret := a.ReturnValue
	if ret == nil {
		ret = ir.Null{}
	}
	retJSON, err := ir.MarshalCanonical(ret)
	if err != nil {
		return nil, fmt.Errorf("activation %s return value: %w", a.Name, err)
	}

	markers := make(ir.Array, 0, len(a.SliceStack))
	for _, m := range a.SliceStack {
		markers = append(markers, ir.Array{ir.Int(m.Line), ir.Int(m.Lasti)})
	}

	rec := &FunctionActivation{
		TrialID:     trialID,
		ID:          id,
		Name:        a.Name,
		Line:        a.Line,
		Lasti:       a.Lasti,
		StartNS:     int64(a.Start),
		ReturnValue: string(retJSON),
		SliceStack:  string(ir.MustMarshalCanonical(markers)),
	}
	if a.Finished() {
		finish := int64(a.Finish)
		rec.FinishNS = &finish
	}
	return rec, nil
}

func objectValues(trialID string, id int64, a *activation.Activation) ([]any, error) {
	var out []any
	add := func(kind string, pos int, name string, v ir.Value) error {
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			return fmt.Errorf("activation %s %s %q: %w", a.Name, kind, name, err)
		}
		out = append(out, &ObjectValue{
			TrialID:              trialID,
			FunctionActivationID: id,
			Kind:                 kind,
			Position:             pos,
			Name:                 name,
			Value:                string(data),
		})
		return nil
	}

	named := []struct {
		kind string
		obj  ir.Object
	}{
		{KindArgument, a.Arguments},
		{KindKwarg, a.Kwargs},
		{KindGlobal, a.Globals},
	}
	for _, n := range named {
		for i, k := range n.obj.SortedKeys() {
			if err := add(n.kind, i, k, n.obj[k]); err != nil {
				return nil, err
			}
		}
	}

	positional := []struct {
		kind string
		arr  ir.Array
	}{
		{KindArg, a.Args},
		{KindStararg, a.Starargs},
	}
	for _, p := range positional {
		for i, v := range p.arr {
			if err := add(p.kind, i, "", v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// fileAccessRecord snapshots the file's current content as the "after"
// digest unless the capture layer already did, or the path is excluded.
func (s *Store) fileAccessRecord(trialID string, id int64, access *activation.FileAccess) (*FileAccess, error) {
	rec := &FileAccess{
		TrialID:              trialID,
		FunctionActivationID: &id,
		Name:                 access.Name,
		Mode:                 access.Mode,
		Buffering:            access.Buffering,
		TimestampNS:          int64(access.Timestamp),
		ContentHashBefore:    access.ContentHashBefore,
		ContentHashAfter:     access.ContentHashAfter,
	}
	if rec.Mode == "" {
		rec.Mode = "r"
	}
	if rec.Buffering == "" {
		rec.Buffering = "default"
	}
	if rec.ContentHashAfter != "" {
		return rec, nil
	}

	base := s.Layout().BasePath
	path := access.Name
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if s.excluded(base, path) {
		return rec, nil
	}

	cs, err := s.Content()
	if err != nil {
		return nil, err
	}
	digest, err := cs.StoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", access.Name, err)
	}
	rec.ContentHashAfter = digest
	access.ContentHashAfter = digest
	return rec, nil
}

// excluded reports whether path matches a snapshot exclude pattern.
// Patterns match paths relative to base, with forward slashes.
func (s *Store) excluded(base, path string) bool {
	if len(s.opts.SnapshotExclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.opts.SnapshotExclude {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

// codeVersion returns the HEAD commit of the git work tree containing base,
// or "" when there is none.
func codeVersion(base string) string {
	repo, err := git.PlainOpenWithOptions(base, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// treeFinished reports whether every activation in the tree returned.
func treeFinished(root *activation.Activation) bool {
	done := true
	root.Walk(func(a *activation.Activation, _ int) bool {
		if a.Pending() {
			done = false
		}
		return done
	})
	return done
}

func sortedKeys(m map[string]activation.DefinitionPoint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
