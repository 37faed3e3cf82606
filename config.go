package mealscore

import "time"

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type ServiceConfig struct {
	Provider           string        `env:"PROVIDER,default=bedrock"`
	OllamaEndpoint     string        `env:"OLLAMA_ENDPOINT,default=http://localhost:11434"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	CatalogPath        string        `env:"CATALOG_PATH,default=artifacts/tags.json"`
	CatalogS3Bucket    string        `env:"CATALOG_S3_BUCKET"`
	CatalogS3Key       string        `env:"CATALOG_S3_KEY,default=catalog/tags.json"`
	DBPath             string        `env:"DB_PATH,default=mealscore.db"`
	BaselineWindowDays int           `env:"BASELINE_WINDOW_DAYS,default=30"`
	GenerationTimeout  time.Duration `env:"GENERATION_TIMEOUT,default=30s"`
}

// BaselineWindow converts the configured day count into a duration.
func (c ServiceConfig) BaselineWindow() time.Duration {
	days := c.BaselineWindowDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
