package record

import (
	"fmt"
	"strings"

	"github.com/samcharles93/ember/internal/dtype"
)

// MissingTensorError reports a required slot with no matching manifest entry
// under any of its aliases.
type MissingTensorError struct {
	Path    string
	Aliases []string
}

func (e *MissingTensorError) Error() string {
	if len(e.Aliases) == 1 {
		return fmt.Sprintf("slot %s: missing tensor %s", e.Path, e.Aliases[0])
	}
	return fmt.Sprintf("slot %s: missing tensor (tried %s)", e.Path, strings.Join(e.Aliases, ", "))
}

// ShapeMismatchError reports a tensor whose shape differs from the schema's
// resolved shape. Dim is the first differing dimension, or -1 when the ranks
// differ.
type ShapeMismatchError struct {
	Path string
	Name string
	Want []int
	Got  []int
	Dim  int
}

func (e *ShapeMismatchError) Error() string {
	if e.Dim < 0 {
		return fmt.Sprintf("tensor %s: expected shape %v, found %v (rank mismatch)", e.Name, e.Want, e.Got)
	}
	return fmt.Sprintf("tensor %s: expected shape %v, found %v (first difference at dim %d)",
		e.Name, e.Want, e.Got, e.Dim)
}

// DtypeError reports a tensor stored in a dtype the slot does not accept.
type DtypeError struct {
	Path    string
	Name    string
	Found   dtype.DType
	Accepts []dtype.DType
}

func (e *DtypeError) Error() string {
	accepts := make([]string, len(e.Accepts))
	for i, d := range e.Accepts {
		accepts[i] = d.String()
	}
	return fmt.Sprintf("tensor %s: dtype %s not accepted (expected one of %s)",
		e.Name, e.Found, strings.Join(accepts, ", "))
}

// ConversionError reports a materialization request with no defined dtype
// conversion.
type ConversionError struct {
	Name string
	From dtype.DType
	To   dtype.DType
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("tensor %s: no conversion from %s to %s", e.Name, e.From, e.To)
}

// ValidationError aggregates every slot that failed validation during a
// schema walk, so one load reports the full mismatch picture.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("checkpoint does not match schema (%d problems): %s",
		len(e.Problems), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Problems }

// DiagnosticKind classifies non-fatal findings from a load.
type DiagnosticKind uint8

const (
	// DiagUnexpectedTensor marks a manifest entry no schema slot consumed.
	DiagUnexpectedTensor DiagnosticKind = iota
	// DiagConvertedDType marks a tensor silently converted to the target dtype.
	DiagConvertedDType
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagUnexpectedTensor:
		return "unexpected_tensor"
	case DiagConvertedDType:
		return "converted_dtype"
	default:
		return fmt.Sprintf("diagnostic(%d)", uint8(k))
	}
}

// Diagnostic is a non-fatal finding attached to a successful load.
type Diagnostic struct {
	Kind   DiagnosticKind
	Name   string
	Detail string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s (%s)", d.Kind, d.Name, d.Detail)
}
