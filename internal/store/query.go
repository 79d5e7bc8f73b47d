package store

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/roach88/provcap/internal/ir"
)

// Query runs text against the database and returns its rows lazily.
//
// The statement executes when iteration starts and the cursor is closed
// when the loop finishes or breaks. The result can be ranged over once; a
// second range yields ErrQueryConsumed. Each row keeps the column order the
// statement declared.
//
//	for row, err := range s.Query(ctx, "SELECT id, name FROM function_activation") {
//		if err != nil {
//			return err
//		}
//		fmt.Println(row)
//	}
func (s *Store) Query(ctx context.Context, text string, args ...any) iter.Seq2[ir.Row, error] {
	var used atomic.Bool
	return func(yield func(ir.Row, error) bool) {
		if used.Swap(true) {
			yield(ir.Row{}, ErrQueryConsumed)
			return
		}
		b, err := s.getBroker()
		if err != nil {
			yield(ir.Row{}, err)
			return
		}

		rows, err := b.raw.QueryContext(ctx, text, args...)
		if err != nil {
			yield(ir.Row{}, fmt.Errorf("query: %w", err))
			return
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			yield(ir.Row{}, fmt.Errorf("query columns: %w", err))
			return
		}

		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(ir.Row{}, fmt.Errorf("query scan: %w", err))
				return
			}
			for i, v := range values {
				if raw, ok := v.([]byte); ok {
					values[i] = string(raw)
				}
			}
			if !yield(ir.NewRow(columns, values), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(ir.Row{}, fmt.Errorf("query iterate: %w", err))
		}
	}
}

// QueryAll collects every row of text. Convenient for small results.
func (s *Store) QueryAll(ctx context.Context, text string, args ...any) ([]ir.Row, error) {
	var out []ir.Row
	for row, err := range s.Query(ctx, text, args...) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
