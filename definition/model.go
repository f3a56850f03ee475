package definition

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Model is the model-related view of a merged (model + node) configuration.
type Model struct {
	Provider    string         `mapstructure:"provider"`
	ModelString string         `mapstructure:"modelString"`
	Parameters  map[string]any `mapstructure:"parameters"`
	// StopSequences is kept raw; only a list is honored.
	StopSequences any `mapstructure:"stopSequences"`

	APIBase    string `mapstructure:"litellm_api_base"`
	APIKey     string `mapstructure:"litellm_api_key"`
	AltAPIBase string `mapstructure:"apiBase"`
	AltAPIKey  string `mapstructure:"apiKey"`

	ProjectID string `mapstructure:"project_id"`
	SpaceID   string `mapstructure:"space_id"`
}

// DecodeModel extracts the model fields of a merged configuration. Unrelated
// fields are ignored.
func DecodeModel(cfg map[string]any) (*Model, error) {
	var m Model

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}

	if m.APIBase == "" {
		m.APIBase = m.AltAPIBase
	}
	if m.APIKey == "" {
		m.APIKey = m.AltAPIKey
	}

	return &m, nil
}
