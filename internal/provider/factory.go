package provider

import (
	"log"
	"sort"

	"cherry2k/internal/cherryerr"
	"cherry2k/internal/config"
)

// Factory holds every provider cherry2k could construct from the active
// config, keyed by provider id, plus the name to use when none is named
// explicitly. Grounded on original_source's factory module: each
// configured provider is validated at startup rather than lazily, so a
// missing API key or Ollama host surfaces immediately instead of
// mid-conversation. Validation makes no network call, so a key that is
// present but wrong is only detected by the first request.
type Factory struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewFactory constructs every provider present in cfg, skipping (with a
// warning) any whose ValidateConfig fails, and errors only if none are
// usable at all.
func NewFactory(cfg *config.Config) (*Factory, error) {
	f := &Factory{providers: make(map[string]Provider)}

	if cfg.OpenAI != nil {
		f.register(NewOpenAIProvider(cfg.OpenAI))
	}
	if cfg.Anthropic != nil {
		f.register(NewAnthropicProvider(cfg.Anthropic))
	}
	if cfg.Ollama != nil {
		f.register(NewOllamaProvider(cfg.Ollama))
	}

	if len(f.providers) == 0 {
		return nil, &cherryerr.ConfigError{
			Kind:    cherryerr.ConfigNoProviderAvailable,
			Message: "no provider passed validation; check credentials in config or environment",
		}
	}

	f.defaultProvider = cfg.General.DefaultProvider
	if _, ok := f.providers[f.defaultProvider]; !ok {
		fallback := f.firstByName()
		log.Printf("[provider] WARNING: configured default provider %q is unavailable, falling back to %q", f.defaultProvider, fallback)
		f.defaultProvider = fallback
	}

	return f, nil
}

func (f *Factory) register(p Provider) {
	if err := p.ValidateConfig(); err != nil {
		log.Printf("[provider] WARNING: skipping %s, failed validation: %v", p.ProviderID(), err)
		return
	}
	f.providers[p.ProviderID()] = p
}

func (f *Factory) firstByName() string {
	names := f.List()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Get returns the provider registered under name.
func (f *Factory) Get(name string) (Provider, bool) {
	p, ok := f.providers[name]
	return p, ok
}

// GetDefault returns the resolved default provider.
func (f *Factory) GetDefault() Provider {
	return f.providers[f.defaultProvider]
}

// DefaultProviderName returns the name GetDefault resolves to.
func (f *Factory) DefaultProviderName() string {
	return f.defaultProvider
}

// Contains reports whether name is a registered, validated provider.
func (f *Factory) Contains(name string) bool {
	_, ok := f.providers[name]
	return ok
}

// List returns every registered provider name, sorted for stable output.
func (f *Factory) List() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
