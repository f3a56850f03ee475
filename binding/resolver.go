package binding

import (
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/definition"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/model"
)

const component = "binding"

// Binding is a resolved model configuration for one agent node.
type Binding struct {
	Provider string
	Family   Family
	// Model is the prefixed transport model string, e.g. "openai/gpt-4o".
	Model string
	// BaseModel is the configured model string without the route prefix.
	BaseModel string
	APIBase   string
	APIKey    string
	// APIVersion is set for azure from AZURE_API_VERSION.
	APIVersion string
	ProjectID  string
	SpaceID    string

	GenerateConfig *model.GenerateConfig
}

// HasKey reports whether a key is available or the provider resolves
// credentials by other means.
func (b *Binding) HasKey(t Table) bool {
	if b.APIKey != "" {
		return true
	}
	r, _ := t.Lookup(b.Provider)
	return r.AltCredentials
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Table Table
	// Getenv reads environment variables; defaults to os.Getenv.
	Getenv func(string) string
	Logger logging.Logger
}

// Resolver resolves merged configurations into bindings.
type Resolver struct {
	table  Table
	getenv func(string) string
	logger logging.Logger
}

// NewResolver returns a Resolver using DefaultTable unless overridden.
func NewResolver(optFns ...func(o *ResolverOptions)) *Resolver {
	opts := ResolverOptions{
		Table:  DefaultTable(),
		Getenv: os.Getenv,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Resolver{table: opts.Table, getenv: opts.Getenv, logger: opts.Logger}
}

// Table returns the routing table in use.
func (r *Resolver) Table() Table { return r.table }

// Resolve builds the binding for a merged (model + node) configuration.
// Missing credentials and unparsable parameters are diagnostics; a missing or
// unknown provider is a configuration error.
func (r *Resolver) Resolve(cfg map[string]any, node string) (*Binding, core.Diagnostics, error) {
	var diags core.Diagnostics

	m, err := definition.DecodeModel(cfg)
	if err != nil {
		return nil, nil, core.NewConfigError(node, "resolve model", err)
	}

	if m.Provider == "" {
		return nil, nil, core.NewConfigError(node, "resolve model", fmt.Errorf("%w: missing provider", core.ErrUnknownProvider))
	}

	route, ok := r.table.Lookup(m.Provider)
	if !ok {
		return nil, nil, core.NewConfigError(node, "resolve model", fmt.Errorf("%w: %q", core.ErrUnknownProvider, m.Provider))
	}

	if m.ModelString == "" {
		diags.Warnf(component, node, "missing modelString for provider %q", m.Provider)
	}

	b := &Binding{
		Provider:  m.Provider,
		Family:    route.Family,
		Model:     transportModel(route, m.ModelString),
		BaseModel: m.ModelString,
		APIBase:   m.APIBase,
		APIKey:    m.APIKey,
	}

	if route.Prefix != "" {
		b.BaseModel = strings.TrimPrefix(m.ModelString, route.Prefix+"/")
	}

	if b.APIKey == "" && route.CredentialEnv != "" {
		b.APIKey = r.getenv(route.CredentialEnv)
		if b.APIKey == "" && !route.AltCredentials {
			diags.Warnf(component, node, "API key env var %s for provider %q not set and no override provided", route.CredentialEnv, m.Provider)
		}
	}

	switch m.Provider {
	case "azure":
		if b.APIBase == "" {
			b.APIBase = r.getenv("AZURE_API_BASE")
			if b.APIBase == "" {
				diags.Errorf(component, node, "azure provider selected but AZURE_API_BASE is not set and no API base override provided")
			}
		}
		b.APIVersion = r.getenv("AZURE_API_VERSION")
		if b.APIVersion == "" {
			diags.Warnf(component, node, "azure provider selected but AZURE_API_VERSION is not set")
		}
	case "watsonx":
		if b.APIBase == "" {
			b.APIBase = r.getenv("WATSONX_URL")
			if b.APIBase == "" {
				diags.Errorf(component, node, "watsonx provider: WATSONX_URL not set and no API base override provided")
			}
		}
		b.ProjectID = m.ProjectID
		if b.ProjectID == "" {
			b.ProjectID = r.getenv("WATSONX_PROJECT_ID")
		}
		if b.ProjectID == "" {
			diags.Warnf(component, node, "watsonx provider: no project_id in config and WATSONX_PROJECT_ID not set")
		}
		if strings.HasPrefix(m.ModelString, "deployment/") {
			b.SpaceID = m.SpaceID
			if b.SpaceID == "" {
				b.SpaceID = r.getenv("WATSONX_DEPLOYMENT_SPACE_ID")
			}
			if b.SpaceID == "" {
				diags.Warnf(component, node, "watsonx deployment model used but space_id not found")
			}
		}
	}

	if b.APIBase == "" {
		b.APIBase = route.BaseURL
	}

	genCfg, genDiags := GenerateConfig(Flatten(m.Parameters), m.StopSequences, node)
	diags.Append(genDiags)
	b.GenerateConfig = genCfg

	r.logger.Info("binding.resolved",
		"node", node,
		"provider", b.Provider,
		"model", b.Model,
		"api_base", b.APIBase,
		"key_set", b.HasKey(r.table),
		"generate_config", genCfg != nil,
	)

	return b, diags, nil
}

func transportModel(route Route, modelString string) string {
	if route.Prefix == "" {
		return modelString
	}
	if !strings.HasPrefix(modelString, route.Prefix+"/") {
		return route.Prefix + "/" + modelString
	}
	return modelString
}
