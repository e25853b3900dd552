package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing env file should not fail: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.local")
	if err := os.WriteFile(path, []byte("INBOUND_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("INBOUND_TEST_KEY") })

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("INBOUND_TEST_KEY"); got != "from-file" {
		t.Errorf("INBOUND_TEST_KEY = %q, want from-file", got)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("AGENT_LISTEN_ADDR", ":9999")
	t.Setenv("AGENT_PARTICIPANT_TIMEOUT", "45s")
	t.Setenv("AGENT_MAX_JOBS", "3")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("ELEVENLABS_API_KEY", "el")
	t.Setenv("AGENT_NAME", "")

	cfg := FromEnv()

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %s", cfg.ListenAddr)
	}
	if cfg.ParticipantTimeout != 45*time.Second {
		t.Errorf("ParticipantTimeout = %v", cfg.ParticipantTimeout)
	}
	if cfg.MaxJobs != 3 {
		t.Errorf("MaxJobs = %d", cfg.MaxJobs)
	}
	if cfg.AgentName != DefaultAgentName {
		t.Errorf("AgentName = %s, want default", cfg.AgentName)
	}
	if cfg.Credentials.DeepgramKey != "dg" || cfg.Credentials.ElevenLabsKey != "el" {
		t.Errorf("credentials not read: %+v", cfg.Credentials)
	}
}

func TestDurationEnvInvalid(t *testing.T) {
	t.Setenv("INBOUND_BAD_DURATION", "soon")
	if got := DurationEnv("INBOUND_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("DurationEnv = %v, want fallback", got)
	}
}

func TestIntEnvInvalid(t *testing.T) {
	t.Setenv("INBOUND_BAD_INT", "many")
	if got := IntEnv("INBOUND_BAD_INT", 7); got != 7 {
		t.Errorf("IntEnv = %d, want fallback", got)
	}
}
