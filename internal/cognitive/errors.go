package cognitive

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("transient model error")
	ErrConfig     = errors.New("invalid stage configuration")
)

// Violation is one reason a model output was rejected.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError carries every violation found in one output.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StageError is the terminal failure of a pipeline stage. Timings and Tokens
// hold the cycle's instrumentation up to and including the failed stage.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
	Timings  map[string]time.Duration
	Tokens   map[string]int
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// feedback turns a failed attempt into the follow-up turn sent to the model.
func feedback(err error) string {
	var b strings.Builder
	b.WriteString("Your previous response was rejected.\n")
	var verr *ValidationError
	if errors.As(err, &verr) {
		for _, v := range verr.Violations {
			b.WriteString("- " + v.String() + "\n")
		}
	} else {
		b.WriteString("- " + err.Error() + "\n")
	}
	b.WriteString("Fix these problems and respond again with JSON only.")
	return b.String()
}
