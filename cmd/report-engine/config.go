// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/ledger"
	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/pipeline"
	"github.com/pdiddy/report-engine/internal/search"
	"github.com/pdiddy/report-engine/internal/secrets"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

func setConfigDefaults() {
	viper.SetDefault("secrets_dir", ".secrets/")
	viper.SetDefault("user_agent", "report-engine/"+version)
	viper.SetDefault("timeout", 120*time.Second)

	viper.SetDefault("ai.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("ai.max_retries", 3)
	viper.SetDefault("ai.max_tokens", 8192)
	viper.SetDefault("ai.requests_per_second", 0)

	viper.SetDefault("search.max_results", 20)
	viper.SetDefault("search.snippets_per_paper", 5)
	viper.SetDefault("search.enable_paper_search", false)
	viper.SetDefault("search.enable_openalex", false)

	viper.SetDefault("pipeline.extract_workers", 4)
	viper.SetDefault("pipeline.preview_chars", 200)

	viper.SetDefault("store.data_dir", "reports")

	viper.SetDefault("pricing.file", "")
	viper.SetDefault("pricing.default_per_1k", 0.01)
}

// engineConfig assembles configuration from viper, falling back to the
// secrets directory for API keys.
func engineConfig() (types.EngineConfig, error) {
	httpCfg := types.HTTPConfig{
		Timeout:   viper.GetDuration("timeout"),
		UserAgent: viper.GetString("user_agent"),
	}
	cfg := types.EngineConfig{
		Search: types.SearchConfig{
			HTTPConfig:            httpCfg,
			MaxResults:            viper.GetInt("search.max_results"),
			SnippetsPerPaper:      viper.GetInt("search.snippets_per_paper"),
			SemanticScholarAPIKey: loadedSecrets.Get(secrets.SemanticScholarAPIKey, viper.GetString("search.semantic_scholar_api_key")),
			EnablePaperSearch:     viper.GetBool("search.enable_paper_search"),
			EnableOpenAlex:        viper.GetBool("search.enable_openalex"),
			OpenAlexEmail:         viper.GetString("search.openalex_email"),
		},
		AI: types.AIConfig{
			HTTPConfig:        httpCfg,
			Model:             viper.GetString("ai.model"),
			APIKey:            loadedSecrets.Get(secrets.AnthropicAPIKey, viper.GetString("ai.api_key")),
			MaxRetries:        viper.GetInt("ai.max_retries"),
			MaxTokens:         viper.GetInt("ai.max_tokens"),
			RequestsPerSecond: viper.GetFloat64("ai.requests_per_second"),
		},
		Pipeline: types.PipelineConfig{
			ExtractWorkers: viper.GetInt("pipeline.extract_workers"),
			PreviewChars:   viper.GetInt("pipeline.preview_chars"),
		},
		Store: types.StoreConfig{
			DataDir: viper.GetString("store.data_dir"),
		},
	}

	if path := viper.GetString("pricing.file"); path != "" {
		p, err := ledger.LoadPricing(path)
		if err != nil {
			return cfg, err
		}
		cfg.Pricing = p
	}
	if cfg.Pricing.DefaultPer1K == 0 {
		cfg.Pricing.DefaultPer1K = viper.GetFloat64("pricing.default_per_1k")
	}
	return cfg, nil
}

// openStore opens the report store named by configuration.
func openStore() (*store.Store, error) {
	return store.NewStore(types.StoreConfig{DataDir: viper.GetString("store.data_dir")})
}

// newPipeline wires the Claude backend, Semantic Scholar retrieval, and the
// report store into a pipeline. The caller closes the returned store.
func newPipeline() (*pipeline.Pipeline, *store.Store, error) {
	cfg, err := engineConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("no Anthropic API key configured", zap.String("secret", secrets.AnthropicAPIKey))
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	p := pipeline.New(
		llm.NewClaudeBackend(cfg.AI),
		search.NewSemanticScholarRetriever(cfg.Search, logger),
		st,
		cfg,
		logger,
	)
	return p, st, nil
}
