// Package catalog binds the closed provider id set to client constructors.
package catalog

import (
	"fmt"
	"net/http"
	"time"

	"sketchgen/internal/infra"
	"sketchgen/internal/providers"
	"sketchgen/internal/providers/gemini"
	"sketchgen/internal/providers/openai"
	"sketchgen/internal/providers/qwen"
	"sketchgen/internal/providers/synthetic"
)

// Options carries the per-provider settings taken from configuration.
type Options struct {
	QwenBaseURL      string
	QwenModel        string
	OpenAIBaseURL    string
	OpenAIModel      string
	GeminiBaseURL    string
	GeminiModel      string
	SyntheticLatency time.Duration
	HTTPClient       *http.Client
	Logger           *infra.Logger
}

// OptionsFromConfig maps the environment configuration onto catalog options.
func OptionsFromConfig(cfg *infra.Config, logger *infra.Logger) Options {
	return Options{
		QwenBaseURL:   cfg.QwenBaseURL,
		QwenModel:     cfg.QwenModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		GeminiBaseURL: cfg.GeminiBaseURL,
		GeminiModel:   cfg.GeminiModel,
		Logger:        logger,
	}
}

// New returns the client for id.
func New(id providers.ID, opts Options) (providers.Client, error) {
	switch id {
	case providers.Qwen:
		return qwen.NewClient(qwen.Options{
			BaseURL:    opts.QwenBaseURL,
			Model:      opts.QwenModel,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		}), nil
	case providers.OpenAI:
		return openai.NewClient(openai.Options{
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.OpenAIModel,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		}), nil
	case providers.Gemini:
		return gemini.NewClient(gemini.Options{
			BaseURL:    opts.GeminiBaseURL,
			Model:      opts.GeminiModel,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		}), nil
	case providers.Synthetic:
		return synthetic.NewClient(synthetic.Options{
			Latency: opts.SyntheticLatency,
			Logger:  opts.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("catalog: unknown provider %q", id)
	}
}

// All builds a client for every provider in the capability table.
func All(opts Options) (map[providers.ID]providers.Client, error) {
	clients := make(map[providers.ID]providers.Client, len(providers.IDs()))
	for _, id := range providers.IDs() {
		client, err := New(id, opts)
		if err != nil {
			return nil, err
		}
		clients[id] = client
	}
	return clients, nil
}
