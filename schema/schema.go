// Package schema provides declarative validation of untyped request
// fields. A Schema maps field names to rules; Validate checks an incoming
// field map against it and reports every violation in a single pass, so
// the caller sees all problems in one response instead of fixing them one
// at a time.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Schema maps field names to their rules.
type Schema map[string]Field

// FieldType is the wire type of a schema field.
type FieldType string

const (
	// TypeString is a plain scalar field.
	TypeString FieldType = "string"
	// TypeStringSlice is a sequence field, JSON-array encoded on the wire.
	TypeStringSlice FieldType = "string[]"
)

// Field holds the rules for one schema field. For slice fields the scalar
// rules (length bounds, pattern, allowed values) apply to every element.
type Field struct {
	Type     FieldType
	Required bool
	MinLen   int
	MaxLen   int
	Pattern  string
	In       []string
	// Message overrides the generated error text for this field.
	Message string
}

// Errors maps field names to human-readable error text. A nil or empty
// Errors means the input passed.
type Errors map[string]string

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for name, msg := range e {
		parts = append(parts, name+": "+msg)
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}

// Values is the normalized output of a successful validation: scalars as
// received, slice fields parsed from their wire encoding.
type Values struct {
	scalars map[string]string
	slices  map[string][]string
}

// String returns the value of a scalar field, or "" if absent.
func (v Values) String(name string) string {
	return v.scalars[name]
}

// Strings returns the parsed elements of a slice field, or nil if absent.
func (v Values) Strings(name string) []string {
	return v.slices[name]
}

var (
	validate = validator.New()

	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func compiledPattern(expr string) (*regexp.Regexp, error) {
	patternMu.Lock()
	defer patternMu.Unlock()

	if re, ok := patternCache[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache[expr] = re
	return re, nil
}

// Validate checks input against the schema. Fields are validated
// independently; every failure is collected. Keys present in the input but
// absent from the schema are rejected regardless of the rest.
func (s Schema) Validate(input map[string]string) (Values, Errors) {
	errs := Errors{}
	out := Values{
		scalars: map[string]string{},
		slices:  map[string][]string{},
	}

	for name := range input {
		if _, ok := s[name]; !ok {
			errs[name] = "field not accepted"
		}
	}

	for name, field := range s {
		raw, present := input[name]
		if !present {
			if field.Required {
				errs[name] = field.failure("is required")
			}
			continue
		}

		switch field.Type {
		case TypeStringSlice:
			var elems []string
			if err := json.Unmarshal([]byte(raw), &elems); err != nil {
				errs[name] = field.failure("must be a JSON array of strings")
				continue
			}
			if msg, ok := field.checkElems(elems); !ok {
				errs[name] = field.failure(msg)
				continue
			}
			out.slices[name] = elems
		default:
			if msg, ok := field.checkScalar(raw); !ok {
				errs[name] = field.failure(msg)
				continue
			}
			out.scalars[name] = raw
		}
	}

	if len(errs) > 0 {
		return Values{}, errs
	}
	return out, nil
}

// failure picks the field's own message when one is configured.
func (f Field) failure(generated string) string {
	if f.Message != "" {
		return f.Message
	}
	return generated
}

// checkScalar applies the scalar rules to one value. Length bounds and the
// allowed-value set go through go-playground/validator; the pattern rule
// has no validator tag and is checked directly.
func (f Field) checkScalar(val string) (string, bool) {
	if f.MinLen > 0 {
		if err := validate.Var(val, fmt.Sprintf("min=%d", f.MinLen)); err != nil {
			return fmt.Sprintf("must be at least %d characters", f.MinLen), false
		}
	}
	if f.MaxLen > 0 {
		if err := validate.Var(val, fmt.Sprintf("max=%d", f.MaxLen)); err != nil {
			return fmt.Sprintf("must be at most %d characters", f.MaxLen), false
		}
	}

	if f.Pattern != "" {
		re, err := compiledPattern(f.Pattern)
		if err != nil || !re.MatchString(val) {
			return "has an invalid format", false
		}
	}

	if len(f.In) > 0 && !slices.Contains(f.In, val) {
		return "must be one of: " + strings.Join(f.In, ", "), false
	}

	return "", true
}

// checkElems applies the scalar rules to every element of a slice field.
func (f Field) checkElems(elems []string) (string, bool) {
	for _, e := range elems {
		if msg, ok := f.checkScalar(e); !ok {
			return msg, false
		}
	}
	return "", true
}
