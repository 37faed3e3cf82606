// Package mock provides deterministic text generators for offline runs and tests.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"mealscore"
)

const ModelVersion = "fake-1"

const allowedTagsMarker = "Allowed tags (use only tag_key values):\n"

// LLMClient always answers with the same well-formed assessment. It picks
// tags from the allowed list in the prompt when one is present.
type LLMClient struct{}

func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

func (m *LLMClient) Generate(ctx context.Context, req mealscore.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	slog.Info("LLM_CLIENT: Invoked", "provider", "mock", "images", len(req.Images))

	tags := []string{"balance_green"}
	if allowed, ok := allowedTags(req.User); ok {
		tags = pickTags(allowed)
	}

	b, err := json.Marshal(mealscore.Assessment{
		Headline:         "Balanced meal",
		MetabolicScore:   7.5,
		TagKeys:          tags,
		GetsRight:        []string{"Includes veggies"},
		ThingsToWatch:    []string{"Portion size"},
		ExplanationShort: "Seems balanced with some greens.",
		Confidence:       0.8,
		ModelVersion:     ModelVersion,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func allowedTags(user string) ([]string, bool) {
	i := strings.Index(user, allowedTagsMarker)
	if i < 0 {
		return nil, false
	}
	rest := user[i+len(allowedTagsMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	var tags []string
	if err := json.Unmarshal([]byte(rest), &tags); err != nil {
		return nil, false
	}
	return tags, true
}

func pickTags(allowed []string) []string {
	for _, t := range allowed {
		if t == "balance_green" {
			return []string{t}
		}
	}
	if len(allowed) > 0 {
		return []string{allowed[0]}
	}
	return []string{}
}

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.New("mock: no scripted replies left")

// ScriptedClient returns its replies in order and records every request.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []Reply
	requests []mealscore.GenerationRequest
}

func NewScriptedClient(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

func (s *ScriptedClient) Generate(ctx context.Context, req mealscore.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.replies) {
		return "", ErrScriptExhausted
	}
	r := s.replies[len(s.requests)-1]
	return r.Text, r.Err
}

// Requests returns a copy of the requests seen so far.
func (s *ScriptedClient) Requests() []mealscore.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mealscore.GenerationRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls reports how many requests were made.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
