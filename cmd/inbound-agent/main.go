// inbound-agent: voice agent answering inbound calls for ePacific Telecom.
// Each room gets one job: connect audio-only, wait for the caller, run the
// STT/LLM/TTS pipeline and greet.
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/inbound-agent/internal/config"
	"github.com/teslashibe/inbound-agent/internal/inbound"
	"github.com/teslashibe/inbound-agent/pkg/persona"
	"github.com/teslashibe/inbound-agent/pkg/worker"
)

func main() {
	if err := config.LoadEnv(config.DefaultEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg := config.FromEnv()

	p, err := persona.Resolve(cfg.Persona, cfg.PersonaFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	handler := &inbound.Handler{
		Persona:   p,
		Providers: inbound.CloudProviders(cfg.Credentials, nil),
	}

	worker.RunApp(worker.Options{
		AgentName:          cfg.AgentName,
		Prewarm:            inbound.Prewarm,
		Entrypoint:         handler.Entrypoint,
		ListenAddr:         cfg.ListenAddr,
		MaxJobs:            cfg.MaxJobs,
		ParticipantTimeout: cfg.ParticipantTimeout,
		LogLevel:           cfg.LogLevel,
	})
}
