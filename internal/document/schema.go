package document

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError reports a document that does not conform to the expected
// shape: a non-mapping group value, a badly typed meta key, an unknown "!"
// meta key. Fails fast, before any expansion.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid document: " + e.Message
}

// Validate checks a decoded document against the embedded CUE schema.
// Mapping roots validate against #Document, list roots against #GroupList.
func Validate(v any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile document schema: %w", err)
	}

	path := "#Document"
	if _, ok := v.([]any); ok {
		path = "#GroupList"
	}
	def := schema.LookupPath(cue.ParsePath(path))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup %s: %w", path, err)
	}

	data := ctx.Encode(v)
	if err := data.Err(); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
