package generation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"mealscore"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

const (
	maxBulletLength      = 90
	maxExplanationLength = 240
)

var requiredFields = []string{
	"headline",
	"metabolic_score",
	"tag_keys",
	"gets_right",
	"things_to_watch",
	"explanation_short",
	"confidence",
	"model_version",
}

// ValidationError lists everything wrong with one raw output. It never
// carries the raw text itself.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid assessment: " + strings.Join(e.Problems, "; ")
}

// Schema is the accepted assessment shape for one taxonomy snapshot.
type Schema struct {
	allowed  map[string]struct{}
	tags     []string
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewSchema builds the output schema with tag_keys restricted to allowed.
func NewSchema(allowed []string) (*Schema, error) {
	s := &Schema{
		allowed: make(map[string]struct{}, len(allowed)),
		tags:    make([]string, 0, len(allowed)),
	}
	for _, t := range allowed {
		if _, dup := s.allowed[t]; dup {
			continue
		}
		s.allowed[t] = struct{}{}
		s.tags = append(s.tags, t)
	}

	s.schema = assessmentSchema(s.tags)
	resolved, err := s.schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve assessment schema: %w", err)
	}
	s.resolved = resolved
	return s, nil
}

func assessmentSchema(tags []string) *jsonschema.Schema {
	// Resolve rejects shared subschemas, so each array gets its own.
	bullet := func() *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", MaxLength: intPtr(maxBulletLength)}
	}

	tagItems := &jsonschema.Schema{Type: "string"}
	if len(tags) > 0 {
		enum := make([]any, len(tags))
		for i, t := range tags {
			enum[i] = t
		}
		tagItems.Enum = enum
	}

	return &jsonschema.Schema{
		Type:     "object",
		Required: requiredFields,
		Properties: map[string]*jsonschema.Schema{
			"headline": {Type: "string"},
			"metabolic_score": {
				Type:       "number",
				Minimum:    floatPtr(0),
				Maximum:    floatPtr(10),
				MultipleOf: floatPtr(0.5),
			},
			"tag_keys": {Type: "array", Items: tagItems},
			"gets_right": {
				Type:     "array",
				Items:    bullet(),
				MinItems: intPtr(1),
				MaxItems: intPtr(3),
			},
			"things_to_watch": {
				Type:     "array",
				Items:    bullet(),
				MinItems: intPtr(1),
				MaxItems: intPtr(2),
			},
			"explanation_short": {Type: "string", MaxLength: intPtr(maxExplanationLength)},
			"confidence": {
				Type:    "number",
				Minimum: floatPtr(0),
				Maximum: floatPtr(1),
			},
			"model_version": {Type: "string"},
		},
	}
}

// AllowedTags returns the tag keys the schema accepts, in the order given.
func (s *Schema) AllowedTags() []string {
	out := make([]string, len(s.tags))
	copy(out, s.tags)
	return out
}

// Describe renders the schema as JSON for inclusion in a repair request.
func (s *Schema) Describe() string {
	b, err := json.Marshal(s.schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Validate parses raw model output and checks it against the schema and the
// allowed tags. Extra fields are dropped. Duplicate tags are collapsed,
// keeping the first occurrence.
func (s *Schema) Validate(raw string) (mealscore.Assessment, error) {
	body, ok := extractObject(raw)
	if !ok {
		return mealscore.Assessment{}, &ValidationError{Problems: []string{"output does not contain a JSON object"}}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return mealscore.Assessment{}, &ValidationError{Problems: []string{"output is not valid JSON: " + err.Error()}}
	}

	var problems []string
	if err := s.resolved.Validate(doc); err != nil {
		problems = append(problems, "schema: "+err.Error())
	}

	var a mealscore.Assessment
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		problems = append(problems, "decode: "+err.Error())
		return mealscore.Assessment{}, &ValidationError{Problems: problems}
	}

	problems = append(problems, s.check(doc, a)...)
	if len(problems) > 0 {
		return mealscore.Assessment{}, &ValidationError{Problems: problems}
	}

	a.TagKeys = dedupe(a.TagKeys)
	return a, nil
}

// check re-states the schema constraints that must hold regardless of how
// the schema library treats them (empty enum, rune counting, grid steps).
func (s *Schema) check(doc map[string]any, a mealscore.Assessment) []string {
	var problems []string

	for _, f := range requiredFields {
		if _, ok := doc[f]; !ok {
			problems = append(problems, fmt.Sprintf("missing field %q", f))
		}
	}

	score := a.MetabolicScore
	switch {
	case math.IsNaN(score) || math.IsInf(score, 0):
		problems = append(problems, "metabolic_score must be finite")
	case score < 0 || score > 10:
		problems = append(problems, fmt.Sprintf("metabolic_score %v out of range [0,10]", score))
	case math.Round(score*2) != score*2:
		problems = append(problems, fmt.Sprintf("metabolic_score %v is not a multiple of 0.5", score))
	}

	for _, t := range a.TagKeys {
		if _, ok := s.allowed[t]; !ok {
			problems = append(problems, fmt.Sprintf("tag %q is not allowed", t))
		}
	}

	problems = append(problems, checkBullets("gets_right", a.GetsRight, 1, 3)...)
	problems = append(problems, checkBullets("things_to_watch", a.ThingsToWatch, 1, 2)...)

	if n := utf8.RuneCountInString(a.ExplanationShort); n > maxExplanationLength {
		problems = append(problems, fmt.Sprintf("explanation_short has %d characters, max %d", n, maxExplanationLength))
	}

	if a.Confidence < 0 || a.Confidence > 1 || math.IsNaN(a.Confidence) {
		problems = append(problems, fmt.Sprintf("confidence %v out of range [0,1]", a.Confidence))
	}
	return problems
}

func checkBullets(field string, items []string, min, max int) []string {
	var problems []string
	if len(items) < min || len(items) > max {
		problems = append(problems, fmt.Sprintf("%s has %d entries, want %d..%d", field, len(items), min, max))
	}
	for i, item := range items {
		if n := utf8.RuneCountInString(item); n > maxBulletLength {
			problems = append(problems, fmt.Sprintf("%s[%d] has %d characters, max %d", field, i, n, maxBulletLength))
		}
	}
	return problems
}

func dedupe(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// extractObject pulls the first top-level JSON object out of model text,
// tolerating markdown fences and surrounding prose. Brace spans that are not
// JSON are skipped; when none parses, the first span is returned so the
// caller can report why.
func extractObject(raw string) (string, bool) {
	s := stripFences(strings.TrimSpace(raw))

	first := ""
	depth := 0
	start := -1
	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		b := s[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					span := s[start : i+1]
					if json.Valid([]byte(span)) {
						return span, true
					}
					if first == "" {
						first = span
					}
				}
			}
		}
	}
	return first, first != ""
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
