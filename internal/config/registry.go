package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/aikyo-ai/aikyo/pkg/provider/embeddings"
	olembed "github.com/aikyo-ai/aikyo/pkg/provider/embeddings/ollama"
	oaembed "github.com/aikyo-ai/aikyo/pkg/provider/embeddings/openai"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm/anyllm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider role. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] for unknown names.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory
// registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// RegisterBuiltins installs the factories for every provider this build
// ships with: the any-llm-go backends for the LLM roles, plus the OpenAI and
// Ollama embeddings clients.
func (r *Registry) RegisterBuiltins() {
	for _, name := range []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		providerName := name
		r.RegisterLLM(providerName, func(entry ProviderEntry) (llm.Provider, error) {
			var backendOpts []anyllmlib.Option
			if entry.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, backendOpts,
				anyllm.WithPricing(entry.InputPerMTok, entry.OutputPerMTok))
		})
	}

	r.RegisterEmbeddings("openai", func(entry ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
	r.RegisterEmbeddings("ollama", func(entry ProviderEntry) (embeddings.Provider, error) {
		var opts []olembed.Option
		if entry.Dimensions > 0 {
			opts = append(opts, olembed.WithDimensions(entry.Dimensions))
		}
		return olembed.New(entry.BaseURL, entry.Model, opts...)
	})
}
