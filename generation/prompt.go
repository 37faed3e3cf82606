package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"mealscore"
)

const defaultLocale = "en-US"

const repairSystemPrompt = "You are a JSON repair tool. Output valid JSON only matching the provided schema. Do not add keys. Do not add commentary."

// RepairRequest builds the single corrective request for a rejected output.
func RepairRequest(schema *Schema, bad string) mealscore.GenerationRequest {
	return mealscore.GenerationRequest{
		System: repairSystemPrompt,
		User: fmt.Sprintf("Schema (JSON):\n%s\n\nBad output:\n%s\n\nFix it to match the schema exactly. Output JSON only.",
			schema.Describe(), bad),
	}
}

const outputRules = `OUTPUT CONTRACT
- Output ONE valid JSON object only. No markdown, no code fences, no extra keys.
- metabolic_score: number from 0.0 to 10.0 in 0.5 increments.
- tag_keys: chosen ONLY from the allowed tag_key list. Fewer tags is better than invented ones.
- gets_right: 1-3 short bullets, max 90 characters each.
- things_to_watch: 1-2 short bullets, max 90 characters each.
- explanation_short: 1-2 sentences, max 240 characters.
- confidence: number from 0 to 1.

TONE
- No medical advice, diagnoses, or treatment claims. Use cautious language (may, tends to).
- Do not mention models or uncertainty in user-facing text. Express uncertainty only through confidence.`

const manualSystemPrompt = `You are a meal assessment assistant for a wellness tracking app.

GOAL
Read a meal description and summarize how it supports steady energy, balance, and easy digestion.

` + outputRules

const scanSystemPrompt = `You are a meal assessment assistant for a wellness tracking app.

GOAL
Look at the attached meal photo and summarize how it supports steady energy, balance, and easy digestion.
If the photo is unclear, return fewer tags and a lower confidence.

` + outputRules

// ManualMealInput describes a meal the user typed in.
type ManualMealInput struct {
	AllowedTags     []string
	MealName        string
	MealDescription string
	MealType        string
	EnergyLevel     string
	Locale          string
}

// ScanInput describes a meal photo.
type ScanInput struct {
	AllowedTags  []string
	ImageURL     string
	MealType     string
	EnergyLevel  string
	EatenAtLocal string
	Locale       string
}

func manualRequest(in ManualMealInput) mealscore.GenerationRequest {
	var b strings.Builder
	writeAllowedTags(&b, in.AllowedTags)
	b.WriteString("Meal input:\n")
	fmt.Fprintf(&b, "- meal_name: %s\n", in.MealName)
	fmt.Fprintf(&b, "- meal_description: %s\n", in.MealDescription)
	fmt.Fprintf(&b, "- meal_type: %s\n", orNull(in.MealType))
	fmt.Fprintf(&b, "- energy_level: %s\n", orNull(in.EnergyLevel))
	fmt.Fprintf(&b, "- locale: %s\n\n", localeOrDefault(in.Locale))
	b.WriteString("Task:\nProduce the JSON response.")

	return mealscore.GenerationRequest{System: manualSystemPrompt, User: b.String()}
}

func scanRequest(in ScanInput) mealscore.GenerationRequest {
	var b strings.Builder
	writeAllowedTags(&b, in.AllowedTags)
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- meal_type: %s\n", orNull(in.MealType))
	fmt.Fprintf(&b, "- energy_level: %s\n", orNull(in.EnergyLevel))
	fmt.Fprintf(&b, "- locale: %s\n", localeOrDefault(in.Locale))
	fmt.Fprintf(&b, "- eaten_at_local: %s\n\n", orNull(in.EatenAtLocal))
	b.WriteString("Task:\nAnalyze the attached meal photo and produce the JSON response.")

	return mealscore.GenerationRequest{
		System: scanSystemPrompt,
		User:   b.String(),
		Images: []mealscore.ImageRef{{URL: in.ImageURL}},
	}
}

func writeAllowedTags(b *strings.Builder, tags []string) {
	if tags == nil {
		tags = []string{}
	}
	encoded, _ := json.Marshal(tags)
	b.WriteString("Allowed tags (use only tag_key values):\n")
	b.Write(encoded)
	b.WriteString("\n\n")
}

func orNull(s string) string {
	if strings.TrimSpace(s) == "" {
		return "null"
	}
	return s
}

func localeOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return defaultLocale
	}
	return s
}
