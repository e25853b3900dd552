// Package persona describes who the agent is on a call: its instructions,
// greeting, language and the provider parameters that go with them.
//
// Built-in personas cover the ePacific Telecom receptionist in Vietnamese
// and English. A YAML file can define a new persona or extend a built-in:
//
//	extends: epacific-vi
//	greeting: "Xin chào, em có thể giúp gì cho anh chị?"
//	endpointing:
//	  max_delay: 3s
package persona

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/inbound-agent/pkg/tts"
	"github.com/teslashibe/inbound-agent/pkg/turn"
)

// ErrUnknownPersona is returned for names with no built-in persona.
var ErrUnknownPersona = errors.New("persona: unknown persona")

// Persona is one agent personality and its provider parameters.
type Persona struct {
	Name         string      `yaml:"name"`
	Extends      string      `yaml:"extends,omitempty"`
	Language     string      `yaml:"language"`
	Instructions string      `yaml:"instructions"`
	Greeting     string      `yaml:"greeting"`
	STT          STTConfig   `yaml:"stt"`
	LLM          LLMConfig   `yaml:"llm"`
	TTS          TTSConfig   `yaml:"tts"`
	Endpointing  Endpointing `yaml:"endpointing"`
}

// STTConfig holds Deepgram recognition parameters.
type STTConfig struct {
	Model           string   `yaml:"model"`
	Language        string   `yaml:"language"`
	InterimResults  bool     `yaml:"interim_results"`
	SmartFormat     bool     `yaml:"smart_format"`
	Punctuate       bool     `yaml:"punctuate"`
	FillerWords     bool     `yaml:"filler_words"`
	ProfanityFilter bool     `yaml:"profanity_filter"`
	Keywords        []string `yaml:"keywords,omitempty"`
}

// LLMConfig holds chat completion parameters.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// TTSConfig holds ElevenLabs synthesis parameters.
type TTSConfig struct {
	Model    string    `yaml:"model"`
	Language string    `yaml:"language"`
	Voice    tts.Voice `yaml:"voice"`
}

// Endpointing holds the turn-taking delays.
type Endpointing struct {
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// Turn converts to turn.Endpointing.
func (e Endpointing) Turn() turn.Endpointing {
	return turn.Endpointing{MinDelay: e.MinDelay, MaxDelay: e.MaxDelay}
}

// Validate checks that the persona can drive a call.
func (p Persona) Validate() error {
	switch {
	case p.Name == "":
		return errors.New("persona: name is required")
	case strings.TrimSpace(p.Instructions) == "":
		return fmt.Errorf("persona %q: instructions are required", p.Name)
	case strings.TrimSpace(p.Greeting) == "":
		return fmt.Errorf("persona %q: greeting is required", p.Name)
	case p.STT.Model == "":
		return fmt.Errorf("persona %q: stt.model is required", p.Name)
	case p.LLM.Model == "":
		return fmt.Errorf("persona %q: llm.model is required", p.Name)
	case p.TTS.Model == "":
		return fmt.Errorf("persona %q: tts.model is required", p.Name)
	case p.TTS.Voice.ID == "":
		return fmt.Errorf("persona %q: tts.voice.id is required", p.Name)
	}

	s := p.TTS.Voice.Settings
	for _, v := range []float64{s.Stability, s.SimilarityBoost, s.Style} {
		if v < 0 || v > 1 {
			return fmt.Errorf("persona %q: voice settings must be between 0 and 1", p.Name)
		}
	}
	if p.LLM.Temperature < 0 || p.LLM.Temperature > 2 {
		return fmt.Errorf("persona %q: llm.temperature must be between 0 and 2", p.Name)
	}
	if err := p.Endpointing.Turn().Validate(); err != nil {
		return fmt.Errorf("persona %q: %w", p.Name, err)
	}
	return nil
}

// Get returns a copy of a built-in persona.
func Get(name string) (Persona, error) {
	p, ok := builtins[name]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownPersona, name, strings.Join(Names(), ", "))
	}
	return p.clone(), nil
}

// Names lists the built-in personas.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a persona from a YAML file.
func Load(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a persona from YAML. When extends names a built-in, the
// document is applied on top of it.
func Parse(data []byte) (Persona, error) {
	var head struct {
		Extends string `yaml:"extends"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Persona{}, fmt.Errorf("failed to parse persona: %w", err)
	}

	var p Persona
	if head.Extends != "" {
		base, err := Get(head.Extends)
		if err != nil {
			return Persona{}, err
		}
		p = base
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("failed to parse persona: %w", err)
	}

	p.Instructions = strings.TrimSpace(p.Instructions)
	p.Greeting = strings.TrimSpace(p.Greeting)
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p, nil
}

// Resolve loads path when set, otherwise the built-in named name.
func Resolve(name, path string) (Persona, error) {
	if path != "" {
		return Load(path)
	}
	return Get(name)
}

func (p Persona) clone() Persona {
	p.STT.Keywords = append([]string(nil), p.STT.Keywords...)
	return p
}
