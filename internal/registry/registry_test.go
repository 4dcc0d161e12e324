package registry

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/config"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

type mapSecrets map[string]string

func (m mapSecrets) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

var testSecrets = mapSecrets{
	"OPENAI_API_KEY":    "sk-openai",
	"OPENAI_BASE_URL":   "https://api.openai.example/v1/",
	"ANTHROPIC_API_KEY": "sk-ant",
}

var testTable = map[string]config.Route{
	"gpt-4o":                  {Adapter: "OpenAICompatibleAdapter", APIKeyName: "OPENAI_API_KEY", BaseURLName: "OPENAI_BASE_URL"},
	"meta-llama/llama-3.1-8b": {Adapter: "openai", APIKeyName: "OPENAI_API_KEY", BaseURLName: "OPENAI_BASE_URL"},
	"claude-3.5-sonnet":       {Adapter: "anthropic", APIKeyName: "ANTHROPIC_API_KEY"},
}

func TestBuild(t *testing.T) {
	reg, err := Build(testTable, testSecrets, Options{DefaultModel: "gpt-4o"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"claude-3.5-sonnet", "gpt-4o", "meta-llama/llama-3.1-8b"}
	if got := reg.Models(); !reflect.DeepEqual(got, want) {
		t.Errorf("Models() = %v, want %v", got, want)
	}

	e, ok := reg.Resolve("gpt-4o")
	if !ok {
		t.Fatal("Resolve(gpt-4o) not found")
	}
	if e.Kind != domain.EgressOpenAICompatible || e.APIKey != "sk-openai" || e.BaseURL != "https://api.openai.example/v1" {
		t.Errorf("entry = %+v", e)
	}
	if e.CredentialRef != "OPENAI_API_KEY" || e.EndpointRef != "OPENAI_BASE_URL" {
		t.Errorf("refs = %+v", e)
	}

	if e, ok := reg.Resolve("claude-3.5-sonnet"); !ok || e.Kind != domain.EgressAnthropic || e.BaseURL != "" {
		t.Errorf("anthropic entry = %+v, %v", e, ok)
	}
	if _, ok := reg.Resolve(" meta-llama/llama-3.1-8b "); !ok {
		t.Error("Resolve did not trim whitespace")
	}
	if _, ok := reg.Resolve("GPT-4O"); ok {
		t.Error("Resolve matched a differently cased name")
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		table  map[string]config.Route
		opts   Options
		reason string
	}{
		{"empty table", map[string]config.Route{}, Options{}, "empty"},
		{"unknown adapter", map[string]config.Route{"m": {Adapter: "GeminiAdapter", APIKeyName: "OPENAI_API_KEY", BaseURLName: "OPENAI_BASE_URL"}}, Options{}, "adapter"},
		{"missing key secret", map[string]config.Route{"m": {Adapter: "openai", APIKeyName: "NOPE", BaseURLName: "OPENAI_BASE_URL"}}, Options{}, "NOPE"},
		{"missing url secret", map[string]config.Route{"m": {Adapter: "openai", APIKeyName: "OPENAI_API_KEY", BaseURLName: "NOPE_URL"}}, Options{}, "NOPE_URL"},
		{"no key name", map[string]config.Route{"m": {Adapter: "openai", BaseURLName: "OPENAI_BASE_URL"}}, Options{}, "api_key_name"},
		{"openai without url", map[string]config.Route{"m": {Adapter: "openai", APIKeyName: "OPENAI_API_KEY"}}, Options{}, "base_url_name"},
		{"unknown default", testTable, Options{DefaultModel: "gpt-5"}, "default model"},
		{"unknown forced", testTable, Options{ForceModel: "gpt-5"}, "forced model"},
		{"duplicate after trim", map[string]config.Route{
			"gpt-4o":  testTable["gpt-4o"],
			"gpt-4o ": testTable["gpt-4o"],
		}, Options{}, "more than once"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.table, testSecrets, tt.opts)
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error = %v, want *domain.ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error = %q, want it to mention %q", err, tt.reason)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	reg, err := Build(testTable, testSecrets, Options{DefaultModel: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Route(""); got != "gpt-4o" {
		t.Errorf("Route(\"\") = %q, want default", got)
	}
	if got := reg.Route("  "); got != "gpt-4o" {
		t.Errorf("Route(blank) = %q, want default", got)
	}
	if got := reg.Route("claude-3.5-sonnet"); got != "claude-3.5-sonnet" {
		t.Errorf("Route(named) = %q", got)
	}

	forced, err := Build(testTable, testSecrets, Options{DefaultModel: "gpt-4o", ForceModel: "claude-3.5-sonnet"})
	if err != nil {
		t.Fatal(err)
	}
	if got := forced.Route("gpt-4o"); got != "claude-3.5-sonnet" {
		t.Errorf("forced Route = %q", got)
	}
}

func TestModelsReturnsCopy(t *testing.T) {
	reg, err := Build(testTable, testSecrets, Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := reg.Models()
	m[0] = "mutated"
	if reg.Models()[0] == "mutated" {
		t.Error("Models() exposed internal slice")
	}
}

func TestResolveDoesNotAllocate(t *testing.T) {
	reg, err := Build(testTable, testSecrets, Options{})
	if err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = reg.Resolve("gpt-4o")
	})
	if allocs != 0 {
		t.Errorf("Resolve allocs = %v, want 0", allocs)
	}
}
