package openaicompat

import (
	"fmt"
	"strings"

	"github.com/nvasilev/mobpilot"
)

// Default base URLs per provider kind. A profile's BaseURL always wins.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"xai":        "https://api.x.ai/v1",
	"ollama":     "http://localhost:11434/v1",
}

// Factory builds a retry-wrapped Provider from a profile. It satisfies
// mobpilot.ProviderFactory and is the standard wiring for
// mobpilot.WithProviderFactory.
func Factory(p mobpilot.Profile) (mobpilot.Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(p.Provider))
	if kind == "" {
		kind = "openai"
	}

	baseURL := p.BaseURL
	if baseURL == "" {
		var ok bool
		baseURL, ok = defaultBaseURLs[kind]
		if !ok {
			return nil, fmt.Errorf("provider %q: no base URL known, set base_url in the profile", p.Provider)
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	prov := NewProvider(p.APIKey, p.Model, baseURL, WithName(kind))
	return mobpilot.WithRetry(prov), nil
}
