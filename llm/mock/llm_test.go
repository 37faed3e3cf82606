package mock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"mealscore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMClient_Generate(t *testing.T) {
	llm := NewLLMClient()

	tests := []struct {
		name     string
		user     string
		wantTags []string
	}{
		{
			name:     "no tag list",
			user:     "Describe this meal",
			wantTags: []string{"balance_green"},
		},
		{
			name:     "balance_green allowed",
			user:     "Allowed tags (use only tag_key values):\n[\"energy_fast\",\"balance_green\"]\n\nMeal input:",
			wantTags: []string{"balance_green"},
		},
		{
			name:     "first allowed tag",
			user:     "Allowed tags (use only tag_key values):\n[\"energy_steady\"]\n\n",
			wantTags: []string{"energy_steady"},
		},
		{
			name:     "empty allowed list",
			user:     "Allowed tags (use only tag_key values):\n[]\n\n",
			wantTags: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := llm.Generate(context.Background(), mealscore.GenerationRequest{User: tt.user})
			require.NoError(t, err)

			var a mealscore.Assessment
			require.NoError(t, json.Unmarshal([]byte(raw), &a))
			assert.Equal(t, 7.5, a.MetabolicScore)
			assert.Equal(t, tt.wantTags, a.TagKeys)
			assert.Equal(t, ModelVersion, a.ModelVersion)
		})
	}

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := llm.Generate(ctx, mealscore.GenerationRequest{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestScriptedClient(t *testing.T) {
	boom := errors.New("boom")
	s := NewScriptedClient(Reply{Text: "one"}, Reply{Err: boom})

	got, err := s.Generate(context.Background(), mealscore.GenerationRequest{User: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	_, err = s.Generate(context.Background(), mealscore.GenerationRequest{User: "b"})
	assert.ErrorIs(t, err, boom)

	_, err = s.Generate(context.Background(), mealscore.GenerationRequest{User: "c"})
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, "b", s.Requests()[1].User)
}
