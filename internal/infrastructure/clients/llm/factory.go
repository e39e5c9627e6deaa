// Package llm selects the configured language-model client.
package llm

import (
	"fmt"

	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/anthropic"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/openai"
	"github.com/zatekoja/clinicalorders/pkg/config"
)

// NewJSONModel returns the client named by cfg.Model.Provider. An empty provider picks
// whichever vendor has an API key, OpenAI first. It returns nil, nil when no model is
// configured so the caller can run pattern-only.
func NewJSONModel(cfg *config.Config) (providers.JSONModel, error) {
	provider := cfg.Model.Provider
	if provider == "" {
		switch {
		case cfg.OpenAI.APIKey != "":
			provider = "openai"
		case cfg.Anthropic.APIKey != "":
			provider = "anthropic"
		default:
			return nil, nil
		}
	}

	switch provider {
	case "openai":
		client, err := openai.NewClient(&cfg.OpenAI, cfg.Model.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "anthropic":
		client, err := anthropic.NewClient(&cfg.Anthropic, cfg.Model.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", provider)
	}
}
