package binding

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentforge/model"
	"github.com/hupe1980/agentforge/model/anthropic"
	"github.com/hupe1980/agentforge/model/bedrock"
	"github.com/hupe1980/agentforge/model/openai"
)

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	// BedrockRegion is used for bedrock bindings (default us-east-1).
	BedrockRegion string
	// Override, when set, replaces transport construction (tests, mock runs).
	Override func(b *Binding) (model.Model, error)
}

// Factory creates transport handles for bindings.
type Factory struct {
	opts FactoryOptions
}

// NewFactory returns a Factory.
func NewFactory(optFns ...func(o *FactoryOptions)) *Factory {
	opts := FactoryOptions{BedrockRegion: "us-east-1"}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Factory{opts: opts}
}

// New returns a model.Model for b. Sampling parameters are not baked in; the
// agent passes b.GenerateConfig per request.
func (f *Factory) New(ctx context.Context, b *Binding) (model.Model, error) {
	if f.opts.Override != nil {
		return f.opts.Override(b)
	}

	switch b.Family {
	case FamilyAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(b.BaseModel)
			o.APIKey = b.APIKey
			o.BaseURL = b.APIBase
		}), nil
	case FamilyBedrock:
		m, err := bedrock.NewModel(ctx, func(o *bedrock.Options) {
			o.Model = b.BaseModel
			if f.opts.BedrockRegion != "" {
				o.Region = f.opts.BedrockRegion
			}
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock model %s: %w", b.BaseModel, err)
		}
		return m, nil
	case FamilyAzure:
		if b.APIBase == "" {
			return nil, fmt.Errorf("azure model %s: no API base configured", b.BaseModel)
		}
		return openai.NewModel(func(o *openai.Options) {
			o.Model = b.BaseModel
			o.APIKey = b.APIKey
			o.BaseURL = strings.TrimRight(b.APIBase, "/") + "/openai/deployments/" + b.BaseModel + "/"
			o.AzureAPIVersion = b.APIVersion
			o.Provider = b.Provider
		}), nil
	case FamilyOpenAI, FamilyGemini:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = b.BaseModel
			o.APIKey = b.APIKey
			o.BaseURL = b.APIBase
			o.Provider = b.Provider
		}), nil
	default:
		return nil, fmt.Errorf("no transport for model family %q", b.Family)
	}
}
