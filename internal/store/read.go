package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/ir"
)

// Trials returns every trial ordered by start time, then id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) Trials(ctx context.Context) ([]*Trial, error) {
	b, err := s.getBroker()
	if err != nil {
		return nil, err
	}
	trials := []*Trial{}
	if err := b.engine.WithContext(ctx).Order("start ASC, id ASC").Find(&trials).Error; err != nil {
		return nil, fmt.Errorf("read trials: %w", err)
	}
	for _, t := range trials {
		t.store = s
	}
	return trials, nil
}

// LoadTrial returns the trial with id, or ErrTrialNotFound.
func (s *Store) LoadTrial(ctx context.Context, id string) (*Trial, error) {
	b, err := s.getBroker()
	if err != nil {
		return nil, err
	}
	var t Trial
	err = b.engine.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrTrialNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read trial %s: %w", id, err)
	}
	t.store = s
	return &t, nil
}

// LatestTrial returns the most recently started trial, or ErrTrialNotFound.
func (s *Store) LatestTrial(ctx context.Context) (*Trial, error) {
	b, err := s.getBroker()
	if err != nil {
		return nil, err
	}
	var t Trial
	err = b.engine.WithContext(ctx).Order("start DESC, id DESC").Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read latest trial: %w", err)
	}
	t.store = s
	return &t, nil
}

// FileAccesses returns the trial's file accesses in occurrence order.
func (s *Store) FileAccesses(ctx context.Context, trialID string) ([]*FileAccess, error) {
	b, err := s.getBroker()
	if err != nil {
		return nil, err
	}
	out := []*FileAccess{}
	if err := b.engine.WithContext(ctx).Where("trial_id = ?", trialID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("read file accesses: %w", err)
	}
	return out, nil
}

// LoadActivationTree rebuilds the trial's activation tree: children in
// call order, file accesses in occurrence order, values and context
// bindings restored. Returns nil without error for a trial that recorded no
// calls.
func (s *Store) LoadActivationTree(ctx context.Context, trialID string) (*activation.Activation, error) {
	if _, err := s.LoadTrial(ctx, trialID); err != nil {
		return nil, err
	}
	b, err := s.getBroker()
	if err != nil {
		return nil, err
	}
	db := b.engine.WithContext(ctx).Where("trial_id = ?", trialID).Session(&gorm.Session{})

	var rows []FunctionActivation
	if err := db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read activations: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byID := make(map[int64]*activation.Activation, len(rows))
	var root *activation.Activation
	for i := range rows {
		row := &rows[i]
		act, err := restoreActivation(row)
		if err != nil {
			return nil, err
		}
		byID[row.ID] = act
		if row.CallerID == nil {
			if root == nil {
				root = act
			}
			continue
		}
		caller, ok := byID[*row.CallerID]
		if !ok {
			return nil, fmt.Errorf("activation %d: caller %d not found", row.ID, *row.CallerID)
		}
		caller.PushChild(act)
	}

	var values []ObjectValue
	if err := db.Order("function_activation_id ASC, kind ASC, position ASC").Find(&values).Error; err != nil {
		return nil, fmt.Errorf("read object values: %w", err)
	}
	for _, v := range values {
		act, ok := byID[v.FunctionActivationID]
		if !ok {
			continue
		}
		if err := restoreValue(act, v); err != nil {
			return nil, err
		}
	}

	accesses, err := s.FileAccesses(ctx, trialID)
	if err != nil {
		return nil, err
	}
	for _, fa := range accesses {
		if fa.FunctionActivationID == nil {
			continue
		}
		if act, ok := byID[*fa.FunctionActivationID]; ok {
			act.RecordFileAccess(&activation.FileAccess{
				Name:              fa.Name,
				Mode:              fa.Mode,
				Buffering:         fa.Buffering,
				Timestamp:         time.Duration(fa.TimestampNS),
				ContentHashBefore: fa.ContentHashBefore,
				ContentHashAfter:  fa.ContentHashAfter,
			})
		}
	}

	var bindings []VariableBinding
	if err := db.Order("id ASC").Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("read variable bindings: %w", err)
	}
	for _, vb := range bindings {
		act, ok := byID[vb.FunctionActivationID]
		if !ok {
			continue
		}
		point := activation.DefinitionPoint{Line: vb.Line, Lasti: vb.Lasti}
		if vb.CallID != nil {
			point.Call = byID[*vb.CallID]
		}
		act.BindContext(vb.Name, point)
	}

	return root, nil
}

func restoreActivation(row *FunctionActivation) (*activation.Activation, error) {
	act := activation.New(row.Name, row.Line)
	act.Lasti = row.Lasti
	act.RecordStart(time.Duration(row.StartNS))

	if row.FinishNS != nil {
		ret, err := ir.Parse([]byte(row.ReturnValue))
		if err != nil {
			return nil, fmt.Errorf("activation %d return value: %w", row.ID, err)
		}
		if err := act.RecordFinish(time.Duration(*row.FinishNS), ret); err != nil {
			return nil, fmt.Errorf("activation %d: %w", row.ID, err)
		}
	}

	markers, err := ir.Parse([]byte(row.SliceStack))
	if err != nil {
		return nil, fmt.Errorf("activation %d slice stack: %w", row.ID, err)
	}
	arr, _ := markers.(ir.Array)
	for _, m := range arr {
		pair, ok := m.(ir.Array)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("activation %d slice stack: malformed marker", row.ID)
		}
		line, _ := pair[0].(ir.Int)
		lasti, _ := pair[1].(ir.Int)
		act.PushSliceMarker(activation.SliceMarker{Line: int(line), Lasti: int(lasti)})
	}
	return act, nil
}

func restoreValue(act *activation.Activation, v ObjectValue) error {
	val, err := ir.Parse([]byte(v.Value))
	if err != nil {
		return fmt.Errorf("object value %d: %w", v.ID, err)
	}
	switch v.Kind {
	case KindArgument:
		act.SetArgument(v.Name, val)
	case KindGlobal:
		act.SetGlobal(v.Name, val)
	case KindKwarg:
		act.AddKwarg(v.Name, val)
	case KindArg:
		act.AddArg(val)
	case KindStararg:
		act.AddStararg(val)
	default:
		return fmt.Errorf("object value %d: unknown kind %q", v.ID, v.Kind)
	}
	return nil
}
