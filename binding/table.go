// Package binding resolves a merged model configuration into a model binding:
// the provider route, transport model string, credentials, endpoint and
// generation parameters. Factory turns a binding into a model.Model.
package binding

import (
	"maps"
	"slices"
)

// Family selects the transport adapter for a route.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyBedrock   Family = "bedrock"
	FamilyGemini    Family = "gemini"
	FamilyAzure     Family = "azure"
)

// Route describes how one provider is reached.
type Route struct {
	Provider string
	// Prefix is prepended to the model string ("<prefix>/<model>"); empty
	// for providers that take the model string verbatim.
	Prefix string
	// CredentialEnv names the environment variable holding the API key.
	CredentialEnv string
	// AltCredentials marks providers with credential chains beyond one key;
	// a missing key is not reported for them.
	AltCredentials bool
	Family         Family
	// BaseURL is the default endpoint for openai-compatible families.
	BaseURL string
}

// Table is an immutable provider routing table.
type Table struct {
	routes map[string]Route
}

// NewTable builds a table from routes. The input is copied.
func NewTable(routes []Route) Table {
	m := make(map[string]Route, len(routes))
	for _, r := range routes {
		m[r.Provider] = r
	}
	return Table{routes: m}
}

// DefaultTable returns the built-in routes.
func DefaultTable() Table {
	return NewTable([]Route{
		{Provider: "openai", Prefix: "openai", CredentialEnv: "OPENAI_API_KEY", Family: FamilyOpenAI},
		{Provider: "openai_compatible", Prefix: "openai", Family: FamilyOpenAI},
		{Provider: "google_ai_studio", Prefix: "gemini", CredentialEnv: "GEMINI_API_KEY", Family: FamilyGemini,
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/"},
		{Provider: "anthropic", Prefix: "anthropic", CredentialEnv: "ANTHROPIC_API_KEY", Family: FamilyAnthropic},
		{Provider: "bedrock", Prefix: "bedrock", CredentialEnv: "AWS_ACCESS_KEY_ID", AltCredentials: true, Family: FamilyBedrock},
		{Provider: "meta_llama", Prefix: "meta_llama", CredentialEnv: "LLAMA_API_KEY", Family: FamilyOpenAI,
			BaseURL: "https://api.llama.com/compat/v1/"},
		{Provider: "mistral", Prefix: "mistral", CredentialEnv: "MISTRAL_API_KEY", Family: FamilyOpenAI,
			BaseURL: "https://api.mistral.ai/v1/"},
		{Provider: "watsonx", Prefix: "watsonx", CredentialEnv: "WATSONX_APIKEY", AltCredentials: true, Family: FamilyOpenAI},
		{Provider: "deepseek", Prefix: "deepseek", CredentialEnv: "DEEPSEEK_API_KEY", Family: FamilyOpenAI,
			BaseURL: "https://api.deepseek.com/v1/"},
		{Provider: "deepinfra", Prefix: "deepinfra", CredentialEnv: "DEEPINFRA_API_KEY", Family: FamilyOpenAI,
			BaseURL: "https://api.deepinfra.com/v1/openai/"},
		{Provider: "replicate", Prefix: "replicate", CredentialEnv: "REPLICATE_API_KEY", Family: FamilyOpenAI},
		{Provider: "together_ai", Prefix: "together_ai", CredentialEnv: "TOGETHER_AI_API_KEY", Family: FamilyOpenAI,
			BaseURL: "https://api.together.xyz/v1/"},
		{Provider: "azure", Prefix: "azure", CredentialEnv: "AZURE_API_KEY", Family: FamilyAzure},
		{Provider: "custom", Family: FamilyOpenAI},
	})
}

// Lookup returns the route of a provider.
func (t Table) Lookup(provider string) (Route, bool) {
	r, ok := t.routes[provider]
	return r, ok
}

// Providers returns the known provider ids, sorted.
func (t Table) Providers() []string {
	return slices.Sorted(maps.Keys(t.routes))
}
