// Package config provides configuration helpers for the inbound agent worker.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for worker configuration.
const (
	DefaultEnvFile    = ".env.local"
	DefaultListenAddr = ":8081"
	DefaultAgentName  = "inbound-agent-test"
	DefaultPersona    = "epacific-vi"
	DefaultMaxJobs    = 8
)

// Credentials holds provider API credentials.
type Credentials struct {
	DeepgramKey   string
	OpenAIKey     string
	OpenAIBaseURL string
	ElevenLabsKey string
}

// Config is the worker process configuration, read from the environment.
type Config struct {
	ListenAddr         string
	AgentName          string
	LogLevel           string
	Persona            string
	PersonaFile        string
	ParticipantTimeout time.Duration
	MaxJobs            int

	Credentials Credentials
}

// LoadEnv loads environment variables from a dotenv file.
// A missing file is not an error; variables already set in the
// environment take precedence over the file.
func LoadEnv(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from environment variables.
// Credentials are read but not validated here.
func FromEnv() Config {
	return Config{
		ListenAddr:         Getenv("AGENT_LISTEN_ADDR", DefaultListenAddr),
		AgentName:          Getenv("AGENT_NAME", DefaultAgentName),
		LogLevel:           Getenv("LOG_LEVEL", "info"),
		Persona:            Getenv("AGENT_PERSONA", DefaultPersona),
		PersonaFile:        os.Getenv("AGENT_PERSONA_FILE"),
		ParticipantTimeout: DurationEnv("AGENT_PARTICIPANT_TIMEOUT", 0),
		MaxJobs:            IntEnv("AGENT_MAX_JOBS", DefaultMaxJobs),
		Credentials: Credentials{
			DeepgramKey:   os.Getenv("DEEPGRAM_API_KEY"),
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
			ElevenLabsKey: os.Getenv("ELEVENLABS_API_KEY"),
		},
	}
}

// Getenv returns the value of key, or def if it is unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// DurationEnv parses key as a time.Duration ("500ms", "30s").
// Falls back to def if unset or invalid.
func DurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// IntEnv parses key as an integer, falling back to def.
func IntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
