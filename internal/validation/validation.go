package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"offer-api/internal/models"
	"offer-api/internal/schema"
)

// ErrMalformedRequest is returned when there is no payload to validate.
var ErrMalformedRequest = errors.New("request body is required")

// ViolationKind classifies a schema violation.
type ViolationKind string

const (
	ViolationRequired       ViolationKind = "required"
	ViolationNestedRequired ViolationKind = "nested_required"
	ViolationType           ViolationKind = "type"
	ViolationEmpty          ViolationKind = "empty"
	ViolationEnum           ViolationKind = "enum"
	ViolationUnique         ViolationKind = "unique"
	ViolationMinItems       ViolationKind = "min_items"
	ViolationDate           ViolationKind = "date"
	ViolationUnknownSchema  ViolationKind = "unknown_schema"
	ViolationImmutable      ViolationKind = "immutable"
)

// Violation is one failed constraint.
type Violation struct {
	// Schema is the name of the schema that reported the violation.
	Schema  string
	Field   string
	Kind    ViolationKind
	Message string
}

// ValidationError carries every violation found in a payload.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Fields returns the field paths that were rejected, in report order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.Field
	}
	return fields
}

// ValidateOffer checks a raw offer payload against the base schema and then
// against the schema of its type. Both stages always run and every violation
// is reported. The payload is returned unchanged on success.
func ValidateOffer(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, ErrMalformedRequest
	}

	violations := Check(schema.Base(), payload)

	typ, _ := payload["type"].(string)
	variant, err := schema.ForType(models.OfferType(typ))
	if err != nil {
		violations = append(violations, Violation{
			Schema:  "variant",
			Field:   "type",
			Kind:    ViolationUnknownSchema,
			Message: fmt.Sprintf("no schema for offer type %q", typ),
		})
	} else {
		violations = append(violations, Check(variant, payload)...)
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return payload, nil
}

// CheckImmutable rejects a payload that changes field from its stored value.
func CheckImmutable(stored, payload map[string]any, field string) error {
	was, now := stored[field], payload[field]
	if reflect.DeepEqual(was, now) {
		return nil
	}
	return &ValidationError{Violations: []Violation{{
		Schema:  "base",
		Field:   field,
		Kind:    ViolationImmutable,
		Message: fmt.Sprintf("%q cannot change from %v to %v", field, was, now),
	}}}
}

// Check evaluates a constraint table against an object and returns all
// violations. Keys not described by the schema are ignored.
func Check(s schema.Schema, obj map[string]any) []Violation {
	c := &checker{schema: s.Name}
	c.object(s.Fields, obj, "")
	return c.violations
}

type checker struct {
	schema     string
	violations []Violation
}

func (c *checker) add(field string, kind ViolationKind, format string, args ...any) {
	c.violations = append(c.violations, Violation{
		Schema:  c.schema,
		Field:   field,
		Kind:    kind,
		Message: fmt.Sprintf("%q ", field) + fmt.Sprintf(format, args...),
	})
}

func (c *checker) object(fields []schema.Field, obj map[string]any, prefix string) {
	for _, f := range fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}

		v, ok := obj[f.Name]
		if !ok {
			if f.Required {
				kind := ViolationRequired
				if prefix != "" {
					kind = ViolationNestedRequired
				}
				c.add(path, kind, "is required")
			}
			continue
		}
		c.value(f, v, path)
	}
}

func (c *checker) value(f schema.Field, v any, path string) {
	switch f.Kind {
	case schema.KindString:
		s, ok := v.(string)
		if !ok {
			c.add(path, ViolationType, "must be a %s", f.Kind)
			return
		}
		if s == "" {
			c.add(path, ViolationEmpty, "must not be empty")
			return
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			c.add(path, ViolationEnum, "must be one of [%s]", strings.Join(f.Enum, ", "))
		}

	case schema.KindNumber:
		if !isNumber(v) {
			c.add(path, ViolationType, "must be a %s", f.Kind)
		}

	case schema.KindBool:
		if _, ok := v.(bool); !ok {
			c.add(path, ViolationType, "must be a %s", f.Kind)
		}

	case schema.KindDate:
		s, ok := v.(string)
		if !ok {
			c.add(path, ViolationType, "must be an %s", f.Kind)
			return
		}
		if _, err := schema.ParseDate(s); err != nil {
			c.add(path, ViolationDate, "must be a valid ISO-8601 date")
		}

	case schema.KindArray:
		items, ok := v.([]any)
		if !ok {
			c.add(path, ViolationType, "must be an %s", f.Kind)
			return
		}
		if len(items) < f.MinItems {
			c.add(path, ViolationMinItems, "must contain at least %d item(s)", f.MinItems)
		}
		if f.Elem != nil {
			for i, item := range items {
				c.value(*f.Elem, item, fmt.Sprintf("%s[%d]", path, i))
			}
		}
		if f.Unique {
			c.unique(items, path)
		}

	case schema.KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			c.add(path, ViolationType, "must be an %s", f.Kind)
			return
		}
		c.object(f.Fields, obj, path)
	}
}

func (c *checker) unique(items []any, path string) {
	seen := make(map[any]int, len(items))
	for i, item := range items {
		switch item.(type) {
		case string, float64, bool:
		default:
			continue
		}
		if first, dup := seen[item]; dup {
			c.add(fmt.Sprintf("%s[%d]", path, i), ViolationUnique,
				"duplicates %s[%d]", path, first)
			continue
		}
		seen[item] = i
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
