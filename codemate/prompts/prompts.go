// Package prompts loads the assistant profile: the upstream model, its
// sampling parameters and the system instruction sent ahead of every history.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed system.yaml
var defaultProfile []byte

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultPlaceholder = "(empty message)"
)

type Sampling struct {
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
	MaxTokens        int     `yaml:"max_tokens"`
}

type Profile struct {
	Model       string   `yaml:"model"`
	Sampling    Sampling `yaml:"sampling"`
	Placeholder string   `yaml:"placeholder"`
	Greeting    string   `yaml:"greeting"`
	System      string   `yaml:"system"`
}

// Load reads the profile at path, or the embedded default when path is empty.
func Load(path string) (*Profile, error) {
	data := defaultProfile
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt profile: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Default returns the embedded profile. It panics if the embedded file is
// broken, which only a bad build can cause.
func Default() *Profile {
	p, err := Parse(defaultProfile)
	if err != nil {
		panic(err)
	}
	return p
}

func Parse(data []byte) (*Profile, error) {
	p := &Profile{
		Model: DefaultModel,
		Sampling: Sampling{
			Temperature:      0.7,
			TopP:             0.9,
			FrequencyPenalty: 0.1,
			PresencePenalty:  0.1,
			MaxTokens:        2000,
		},
		Placeholder: DefaultPlaceholder,
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prompt profile: %w", err)
	}
	if strings.TrimSpace(p.System) == "" {
		return nil, fmt.Errorf("prompt profile has no system instruction")
	}
	if p.Sampling.MaxTokens <= 0 {
		return nil, fmt.Errorf("prompt profile max_tokens must be positive, got %d", p.Sampling.MaxTokens)
	}
	return p, nil
}
