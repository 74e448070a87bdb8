// Package validate implements the quest/v0 3-phase validation pipeline:
// structural → semantic → domain.
package validate

import (
	"fmt"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
)

// ValidationError represents one error or warning from the validation pipeline.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "error",
	}
}

func warningf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: "warning",
	}
}

// ValidateFile runs the full 3-phase pipeline on a procedure file.
func ValidateFile(path string) (*schema.Procedure, []*ValidationError) {
	// Phase 1: Structural (strict YAML decode)
	p, err := schema.LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "failed to load: %s", err)}
	}
	return p, ValidateProcedure(p)
}

// ValidateProcedure runs phases 2+3 on an already-loaded procedure.
func ValidateProcedure(p *schema.Procedure) []*ValidationError {
	errs := validateSemantic(p, procedureSchema)
	// If we have semantic errors, don't proceed to domain
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateDomain(p)...)
}

// ValidateWorldFile runs the pipeline on a world document.
func ValidateWorldFile(path string) (*schema.World, []*ValidationError) {
	w, err := schema.LoadWorldFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "failed to load world: %s", err)}
	}
	return w, ValidateWorld(w)
}

// ValidateWorld runs phases 2+3 on an already-loaded world.
func ValidateWorld(w *schema.World) []*ValidationError {
	errs := validateSemantic(w, worldSchema)
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateWorldDomain(w)...)
}

// HasErrors reports whether errs contains an error-severity entry.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity entries.
func Errors(errs []*ValidationError) []*ValidationError {
	var out []*ValidationError
	for _, e := range errs {
		if e.Severity == "error" {
			out = append(out, e)
		}
	}
	return out
}
