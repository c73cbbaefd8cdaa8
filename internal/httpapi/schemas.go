package httpapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const loginSchema = `{
  "type": "object",
  "required": ["email", "password"],
  "properties": {
    "email":    {"type": "string", "minLength": 3},
    "password": {"type": "string", "minLength": 1}
  }
}`

const registerSchema = `{
  "type": "object",
  "required": ["email", "password", "full_name", "major", "current_cycle"],
  "properties": {
    "email":         {"type": "string", "minLength": 3},
    "password":      {"type": "string", "minLength": 6},
    "full_name":     {"type": "string", "minLength": 1},
    "major":         {"type": "string"},
    "current_cycle": {"type": "integer", "minimum": 1, "maximum": 10}
  }
}`

const coursePatchSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name":             {"type": ["string", "null"]},
    "code":             {"type": ["string", "null"]},
    "credits":          {"type": ["integer", "null"], "minimum": 0},
    "difficulty_level": {"type": ["integer", "null"], "minimum": 1, "maximum": 5},
    "banner_url":       {"type": ["string", "null"]}
  }
}`

const profilePatchSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "full_name":     {"type": ["string", "null"]},
    "major":         {"type": ["string", "null"]},
    "current_cycle": {"type": ["integer", "null"], "minimum": 1, "maximum": 10},
    "avatar_url":    {"type": ["string", "null"]},
    "email":         {"type": ["string", "null"]}
  }
}`

const topicStatusSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"enum": ["PENDIENTE", "EN_PROGRESO", "DOMINADO"]}
  }
}`

const summarySchema = `{
  "type": "object",
  "properties": {
    "course_name": {"type": "string"}
  }
}`

// validator checks request bodies against compiled JSON schemas.
type validator struct {
	schemas map[string]*gojsonschema.Schema
}

func newValidator() (*validator, error) {
	sources := map[string]string{
		"login":         loginSchema,
		"register":      registerSchema,
		"course_patch":  coursePatchSchema,
		"profile_patch": profilePatchSchema,
		"topic_status":  topicStatusSchema,
		"summary":       summarySchema,
	}
	v := &validator{schemas: make(map[string]*gojsonschema.Schema, len(sources))}
	for name, src := range sources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// validate returns nil when body satisfies the named schema, or an error
// listing every violation.
func (v *validator) validate(name string, body []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
