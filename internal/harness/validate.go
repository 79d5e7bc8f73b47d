package harness

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// Fixture validation error codes (E100-E199)
const (
	ErrSchema          = "E100" // CUE schema violation
	ErrDuplicateAssign = "E101" // two calls assign the same variable in one caller
	ErrWriteReadOnly   = "E102" // write on a file opened for reading
	ErrPendingReturns  = "E103" // pending call declares a return value
	ErrUnknownCall     = "E104" // assertion names a call that is not in the tree
	ErrUnknownFile     = "E105" // file_snapshot names a file no call opens
)

// ValidationError is one problem found in a fixture.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in a fixture.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// schemaErrors lists each CUE error with the path it occurred at.
func schemaErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "fixture"
		}
		out = append(out, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchema,
		})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "fixture", Message: err.Error(), Code: ErrSchema})
	}
	return out
}

// CheckFixture finds problems the schema cannot express. It returns all of
// them rather than stopping at the first.
func CheckFixture(fx *Fixture) ValidationErrors {
	var errs ValidationErrors
	names := map[string]bool{}
	files := map[string]bool{}

	var walk func(c Call, path string)
	walk = func(c Call, path string) {
		names[c.Name] = true

		for i, op := range c.Files {
			files[op.Name] = true
			if op.Write != nil && readOnly(op.Mode) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.files[%d]", path, i),
					Message: fmt.Sprintf("write to %s opened with mode %q", op.Name, op.Mode),
					Code:    ErrWriteReadOnly,
				})
			}
		}

		if c.Pending && c.Returns != nil {
			errs = append(errs, ValidationError{
				Field:   path + ".returns",
				Message: fmt.Sprintf("pending call %s never returns", c.Name),
				Code:    ErrPendingReturns,
			})
		}

		assigned := map[string]bool{}
		for i, child := range c.Calls {
			if child.Assign != "" {
				if assigned[child.Assign] {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.calls[%d].assign", path, i),
						Message: fmt.Sprintf("%s is assigned twice in %s", child.Assign, c.Name),
						Code:    ErrDuplicateAssign,
					})
				}
				assigned[child.Assign] = true
			}
			walk(child, fmt.Sprintf("%s.calls[%d]", path, i))
		}
	}
	walk(fx.Root, "root")

	for i, a := range fx.Assertions {
		field := fmt.Sprintf("assertions[%d]", i)
		switch a.Type {
		case AssertCallOrder:
			for _, name := range a.Calls {
				if !names[name] {
					errs = append(errs, unknownCall(field+".calls", name))
				}
			}
		case AssertReturns:
			if !names[a.Name] {
				errs = append(errs, unknownCall(field+".name", a.Name))
			}
		case AssertFileSnapshot:
			if !files[a.File] {
				errs = append(errs, ValidationError{
					Field:   field + ".file",
					Message: fmt.Sprintf("no call opens %s", a.File),
					Code:    ErrUnknownFile,
				})
			}
		}
	}
	return errs
}

func unknownCall(field, name string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("no call named %s", name),
		Code:    ErrUnknownCall,
	}
}

// readOnly reports whether mode opens a file for reading only. The default
// mode is "r".
func readOnly(mode string) bool {
	return mode == "" || mode == "r" || mode == "rb"
}
