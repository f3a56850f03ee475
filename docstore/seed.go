package docstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by Seed:
//
//	models:
//	  gpt:
//	    provider: openai
//	    modelString: gpt-4o-mini
//	agents:
//	  helper:
//	    name: helper
//	    agentType: Agent
//	    modelId: gpt
//	documents:
//	  chats/c1/messages/m1:
//	    participant: user
//	    parts: [{text: hello}]
type SeedFile struct {
	Models    map[string]map[string]any `yaml:"models"`
	Agents    map[string]map[string]any `yaml:"agents"`
	Documents map[string]map[string]any `yaml:"documents"`
}

// LoadSeed decodes a SeedFile from r.
func LoadSeed(r io.Reader) (*SeedFile, error) {
	var f SeedFile

	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	return &f, nil
}

// LoadSeedFile reads a SeedFile from path.
func LoadSeedFile(path string) (*SeedFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer fh.Close()

	return LoadSeed(fh)
}

// Seed writes every document of f into s and returns the number written.
// Documents are written in path order.
func Seed(ctx context.Context, s Store, f *SeedFile) (int, error) {
	docs := map[string]map[string]any{}

	for id, m := range f.Models {
		docs[ModelPath(id)] = m
	}
	for id, a := range f.Agents {
		docs[AgentPath(id)] = a
	}
	for path, d := range f.Documents {
		docs[strings.Trim(path, "/")] = d
	}

	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		data := docs[p]
		if data == nil {
			data = map[string]any{}
		}
		if err := s.Set(ctx, p, data); err != nil {
			return 0, fmt.Errorf("seed %s: %w", p, err)
		}
	}

	return len(paths), nil
}
