package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError describes one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error joins the violations into one line.
func (r *ValidationResult) Error() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

func MustCompile(source string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("invalid schema: %v", err))
	}
	return &Schema{schema: s}
}

// Validate checks a decoded JSON document (maps, slices, scalars) or any Go
// value that marshals to JSON.
func (s *Schema) Validate(document interface{}) (*ValidationResult, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return out, nil
}

const recipientsSchema = `{
	"type": "object",
	"minProperties": 1,
	"properties": {
		"email": {"type": "string", "maxLength": 500},
		"phone": {"type": "string", "maxLength": 32},
		"push":  {"type": "string", "maxLength": 500}
	},
	"additionalProperties": false
}`

// LocalePattern accepts BCP 47 shaped tags such as "en", "en-IN" and
// "zh-Hans-CN".
const LocalePattern = `^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`

// SendRequestSchema validates the body of a send call, whether it arrives
// over HTTP or as Zeebe job variables.
var SendRequestSchema = MustCompile(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["templateKey", "recipients"],
	"properties": {
		"templateKey": {"type": "string", "minLength": 1, "maxLength": 255},
		"recipients":  ` + recipientsSchema + `,
		"payload":     {"type": ["object", "null"]},
		"locale":      {"type": ["string", "null"], "maxLength": 35, "pattern": "` + LocalePattern + `"},
		"service":     {"type": ["string", "null"], "minLength": 1, "maxLength": 100}
	}
}`)
