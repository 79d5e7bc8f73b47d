package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/ir"
	"github.com/roach88/provcap/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string

	// Calls is the read-back call sequence, for context.
	Calls []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "  calls: %s\n", strings.Join(e.Calls, " > "))
	}
	return buf.String()
}

func evaluate(ctx context.Context, st *store.Store, r *Result, a Assertion) error {
	switch a.Type {
	case AssertCallOrder:
		return assertCallOrder(r, a)
	case AssertCallCount:
		return assertCallCount(r, a)
	case AssertReturns:
		return assertReturns(r, a)
	case AssertFileSnapshot:
		return assertFileSnapshot(ctx, st, r, a)
	case AssertStatus:
		return assertStatus(r, a)
	case AssertQuery:
		return assertQuery(ctx, st, r, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertCallOrder checks that the depth-first call sequence starts with
// the expected names.
func assertCallOrder(r *Result, a Assertion) error {
	got := r.CallNames()
	if len(got) >= len(a.Calls) && slices.Equal(got[:len(a.Calls)], a.Calls) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallOrder,
		Expected: strings.Join(a.Calls, " > "),
		Actual:   strings.Join(got, " > "),
		Calls:    got,
	}
}

func assertCallCount(r *Result, a Assertion) error {
	count := 0
	for _, name := range r.CallNames() {
		if name == a.Name {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallCount,
		Expected: fmt.Sprintf("%s called %d time(s)", a.Name, a.Count),
		Actual:   fmt.Sprintf("%d", count),
		Calls:    r.CallNames(),
	}
}

// assertReturns checks the first call to a.Name.
func assertReturns(r *Result, a Assertion) error {
	want, err := ir.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("returns value: %w", err)
	}

	var found *activation.Activation
	if r.Root != nil {
		r.Root.Walk(func(act *activation.Activation, _ int) bool {
			if found == nil && act.Name == a.Name {
				found = act
			}
			return found == nil
		})
	}
	if found == nil {
		return &AssertionError{Type: AssertReturns, Expected: "call to " + a.Name, Actual: "not found", Calls: r.CallNames()}
	}
	if found.Pending() {
		return &AssertionError{Type: AssertReturns, Expected: ir.Repr(want), Actual: a.Name + " did not return"}
	}

	wantJSON, err := ir.MarshalCanonical(want)
	if err != nil {
		return err
	}
	gotJSON, err := ir.MarshalCanonical(found.ReturnValue)
	if err != nil {
		return err
	}
	if string(wantJSON) != string(gotJSON) {
		return &AssertionError{Type: AssertReturns, Expected: string(wantJSON), Actual: string(gotJSON)}
	}
	return nil
}

// assertFileSnapshot checks the last persisted snapshot of a.File.
func assertFileSnapshot(ctx context.Context, st *store.Store, r *Result, a Assertion) error {
	accesses, err := st.FileAccesses(ctx, r.Trial.ID)
	if err != nil {
		return err
	}
	var digest string
	for _, fa := range accesses {
		if fa.Name == a.File {
			digest = fa.ContentHashAfter
		}
	}
	if digest == "" {
		return &AssertionError{Type: AssertFileSnapshot, Expected: "snapshot of " + a.File, Actual: "none"}
	}

	cs, err := st.Content()
	if err != nil {
		return err
	}
	data, err := cs.Retrieve(digest)
	if err != nil {
		return err
	}
	if string(data) != a.Content {
		return &AssertionError{Type: AssertFileSnapshot, Expected: fmt.Sprintf("%q", a.Content), Actual: fmt.Sprintf("%q", data)}
	}
	return nil
}

func assertStatus(r *Result, a Assertion) error {
	if r.Trial.Status == a.Status {
		return nil
	}
	return &AssertionError{Type: AssertStatus, Expected: a.Status, Actual: r.Trial.Status}
}

// assertQuery runs a.SQL and compares the listed columns of the first row.
// Integers and strings compare by value.
func assertQuery(ctx context.Context, st *store.Store, r *Result, a Assertion) error {
	rows, err := st.QueryAll(ctx, a.SQL)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &AssertionError{Type: AssertQuery, Expected: fmt.Sprintf("%v", a.Expect), Actual: "no rows"}
	}
	row := rows[0]
	for _, col := range sortedKeys(a.Expect) {
		got, ok := row.Get(col)
		if !ok {
			return &AssertionError{Type: AssertQuery, Expected: "column " + col, Actual: row.String()}
		}
		if !sameScalar(got, a.Expect[col]) {
			return &AssertionError{
				Type:     AssertQuery,
				Expected: fmt.Sprintf("%s=%v", col, a.Expect[col]),
				Actual:   row.String(),
			}
		}
	}
	return nil
}

// sameScalar compares a database value with a YAML value.
func sameScalar(db, want any) bool {
	switch w := want.(type) {
	case nil:
		return db == nil
	case int:
		n, ok := db.(int64)
		return ok && n == int64(w)
	case bool:
		n, ok := db.(int64)
		return ok && (n != 0) == w
	case string:
		s, ok := db.(string)
		return ok && s == w
	}
	return fmt.Sprint(db) == fmt.Sprint(want)
}
