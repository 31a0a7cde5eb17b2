package mobpilot

import (
	"fmt"
	"strings"
)

// Profile selects the model a given agent talks to. A profile names a
// provider backend, a model, and optionally a fallback profile used when the
// primary call fails or refuses structured output.
type Profile struct {
	// Name is the profile identifier ("default", "fast", "vision", …).
	Name string
	// Provider is the backend kind ("openai", "openrouter", "xai", "groq",
	// or any OpenAI-compatible endpoint).
	Provider string
	// Model is the backend model identifier.
	Model string
	// BaseURL overrides the backend endpoint; empty uses the provider default.
	BaseURL string
	// APIKey authenticates against the backend.
	APIKey string
	// Temperature, when non-nil, overrides the backend default.
	Temperature *float64
	// Fallback names another profile to retry on once after an LLM error or
	// a null structured-output document. Empty disables fallback.
	Fallback string
}

// AgentName identifies one of the graph agents for profile lookup.
type AgentName string

const (
	AgentPlanner      AgentName = "planner"
	AgentOrchestrator AgentName = "orchestrator"
	AgentContextor    AgentName = "contextor"
	AgentCortex       AgentName = "cortex"
	AgentExecutor     AgentName = "executor"
	AgentSummarizer   AgentName = "summarizer"
	AgentHopper       AgentName = "hopper"
	AgentOutputter    AgentName = "outputter"
)

// ProfileSet maps agents to profiles. Lookup falls back to the "default"
// profile when no per-agent entry exists.
type ProfileSet struct {
	// Profiles is keyed by profile name.
	Profiles map[string]Profile
	// Agents maps agent name → profile name. Missing agents use Default.
	Agents map[AgentName]string
	// Default is the profile name used when an agent has no mapping.
	Default string
}

// For resolves the profile for the given agent. Returns ErrProfileNotFound
// when neither a per-agent mapping nor a default profile resolves.
func (ps *ProfileSet) For(agent AgentName) (Profile, error) {
	name := ps.Default
	if n, ok := ps.Agents[agent]; ok && n != "" {
		name = n
	}
	return ps.ByName(name)
}

// ByName resolves a profile by its name.
func (ps *ProfileSet) ByName(name string) (Profile, error) {
	if p, ok := ps.Profiles[name]; ok {
		return p, nil
	}
	return Profile{}, &ErrProfileNotFound{Name: name}
}

// Validate checks that every agent mapping and every declared fallback
// resolves to a known profile, and that the default profile exists.
func (ps *ProfileSet) Validate() error {
	if _, ok := ps.Profiles[ps.Default]; !ok {
		return &ErrProfileNotFound{Name: ps.Default}
	}
	for agent, name := range ps.Agents {
		if _, ok := ps.Profiles[name]; !ok {
			return fmt.Errorf("agent %s: %w", agent, &ErrProfileNotFound{Name: name})
		}
	}
	for _, p := range ps.Profiles {
		if p.Fallback == "" {
			continue
		}
		if _, ok := ps.Profiles[p.Fallback]; !ok {
			return fmt.Errorf("profile %s fallback: %w", p.Name, &ErrProfileNotFound{Name: p.Fallback})
		}
	}
	return nil
}

// ProviderFactory builds a Provider for a profile. The default factory
// (openaicompat) is injected by the Agent; tests swap in fakes.
type ProviderFactory func(p Profile) (Provider, error)

// providerCache memoizes Provider construction per profile name so all
// agents mapped to the same profile share one backend client.
type providerCache struct {
	factory ProviderFactory
	built   map[string]Provider
}

func newProviderCache(factory ProviderFactory) *providerCache {
	return &providerCache{factory: factory, built: make(map[string]Provider)}
}

func (c *providerCache) get(p Profile) (Provider, error) {
	if prov, ok := c.built[p.Name]; ok {
		return prov, nil
	}
	prov, err := c.factory(p)
	if err != nil {
		return nil, err
	}
	c.built[p.Name] = prov
	return prov, nil
}

// normalizeProviderKind lowercases and trims a provider kind string.
func normalizeProviderKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
