// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "report-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the retrieval backend.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the maximum number of searched papers kept per run (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// SnippetsPerPaper caps the passages kept for one searched paper (default 5).
	SnippetsPerPaper int `json:"snippets_per_paper" yaml:"snippets_per_paper"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// EnablePaperSearch adds the keyword paper-search backend next to snippet search.
	EnablePaperSearch bool `json:"enable_paper_search" yaml:"enable_paper_search"`

	// EnableOpenAlex adds OpenAlex abstracts as a third backend.
	EnableOpenAlex bool `json:"enable_openalex" yaml:"enable_openalex"`

	// OpenAlexEmail joins the OpenAlex polite pool when set.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	HTTPConfig `yaml:",inline"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxTokens bounds each completion (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// RequestsPerSecond limits outbound model calls; zero disables limiting.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// PipelineConfig holds settings that shape one synthesis or edit run.
type PipelineConfig struct {
	// ExtractWorkers bounds concurrent per-paper quote extraction (default 4).
	ExtractWorkers int `json:"extract_workers" yaml:"extract_workers"`

	// PreviewChars is the per-section preview length in report digests (default 200).
	PreviewChars int `json:"preview_chars" yaml:"preview_chars"`
}

// StoreConfig holds settings for the report store.
type StoreConfig struct {
	// DataDir is the base directory for report data (contains index/, exports/).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// ModelPrice is the USD price per 1K tokens for one model.
type ModelPrice struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// PricingConfig maps model identifiers to token prices.
type PricingConfig struct {
	// Models holds explicit per-model prices.
	Models map[string]ModelPrice `json:"models" yaml:"models"`

	// DefaultPer1K applies to both input and output of unlisted models.
	DefaultPer1K float64 `json:"default_per_1k" yaml:"default_per_1k"`
}

// EngineConfig groups all configuration for the engine.
type EngineConfig struct {
	Search   SearchConfig   `json:"search" yaml:"search"`
	AI       AIConfig       `json:"ai" yaml:"ai"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Pricing  PricingConfig  `json:"pricing" yaml:"pricing"`
}
