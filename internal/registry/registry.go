// Package registry holds the immutable model routing table. A Registry is
// built once at startup and shared read-only by every request.
package registry

import (
	"sort"
	"strings"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/config"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// SecretSource resolves a named secret.
type SecretSource interface {
	Lookup(name string) (string, bool)
}

// Options carries the model substitution settings.
type Options struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// ForceModel replaces whatever model a request names.
	ForceModel string
}

type Registry struct {
	routes       map[string]domain.RouteEntry
	models       []string
	defaultModel string
	forceModel   string
}

// Build validates the routing table, resolves every secret it references, and
// returns the registry. Any problem is a *domain.ConfigError.
func Build(table map[string]config.Route, secrets SecretSource, opts Options) (*Registry, error) {
	if len(table) == 0 {
		return nil, &domain.ConfigError{Reason: "routing table is empty"}
	}

	r := &Registry{
		routes: make(map[string]domain.RouteEntry, len(table)),
		models: make([]string, 0, len(table)),
	}

	for rawName, route := range table {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return nil, &domain.ConfigError{Reason: "model name is empty"}
		}
		if _, dup := r.routes[name]; dup {
			return nil, &domain.ConfigError{Model: name, Reason: "model is listed more than once"}
		}

		entry, err := buildEntry(name, route, secrets)
		if err != nil {
			return nil, err
		}
		r.routes[name] = entry
		r.models = append(r.models, name)
	}
	sort.Strings(r.models)

	for _, m := range []struct{ setting, model string }{
		{"default model", opts.DefaultModel},
		{"forced model", opts.ForceModel},
	} {
		name := strings.TrimSpace(m.model)
		if name == "" {
			continue
		}
		if _, ok := r.routes[name]; !ok {
			return nil, &domain.ConfigError{Model: name, Reason: m.setting + " is not in the routing table"}
		}
	}
	r.defaultModel = strings.TrimSpace(opts.DefaultModel)
	r.forceModel = strings.TrimSpace(opts.ForceModel)

	return r, nil
}

func buildEntry(name string, route config.Route, secrets SecretSource) (domain.RouteEntry, error) {
	kind, err := domain.ParseEgressKind(route.Adapter)
	if err != nil {
		return domain.RouteEntry{}, &domain.ConfigError{Model: name, Reason: "invalid adapter", Err: err}
	}

	entry := domain.RouteEntry{
		Model:         name,
		Kind:          kind,
		CredentialRef: route.APIKeyName,
		EndpointRef:   route.BaseURLName,
	}

	if route.APIKeyName == "" {
		return domain.RouteEntry{}, &domain.ConfigError{Model: name, Reason: "api_key_name is required"}
	}
	key, ok := secrets.Lookup(route.APIKeyName)
	if !ok {
		return domain.RouteEntry{}, &domain.ConfigError{Model: name, Reason: "secret " + route.APIKeyName + " is not set"}
	}
	entry.APIKey = key

	// Anthropic backends default to the public endpoint; OpenAI-compatible
	// backends have no sensible default.
	if route.BaseURLName == "" {
		if kind == domain.EgressAnthropic {
			return entry, nil
		}
		return domain.RouteEntry{}, &domain.ConfigError{Model: name, Reason: "base_url_name is required"}
	}
	base, ok := secrets.Lookup(route.BaseURLName)
	if !ok {
		return domain.RouteEntry{}, &domain.ConfigError{Model: name, Reason: "secret " + route.BaseURLName + " is not set"}
	}
	entry.BaseURL = strings.TrimRight(base, "/")
	return entry, nil
}

// Resolve looks up a model by its exact, case-sensitive name. Surrounding
// whitespace is ignored.
func (r *Registry) Resolve(model string) (domain.RouteEntry, bool) {
	e, ok := r.routes[strings.TrimSpace(model)]
	return e, ok
}

// Route applies the forced and default model settings to a requested name.
func (r *Registry) Route(requested string) string {
	if r.forceModel != "" {
		return r.forceModel
	}
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	return r.defaultModel
}

// Models returns the configured model names in sorted order.
func (r *Registry) Models() []string {
	out := make([]string, len(r.models))
	copy(out, r.models)
	return out
}

// DefaultModel returns the configured fallback model, if any.
func (r *Registry) DefaultModel() string { return r.defaultModel }
