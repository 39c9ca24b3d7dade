package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/coordination"
	"hivemind/internal/llm"
	"hivemind/internal/registry"
	"hivemind/internal/specialist"
	"hivemind/internal/tools"
)

// defaultChannelID is used when no coordination channel is configured. The
// in-memory hub materializes channels on first use, so any stable ID works
// for a local run.
const defaultChannelID = "C_COORDINATION"

// consoleChannelID is where locally typed requests are posted. It stands in
// for the general channel a deployment would mention the orchestrator in.
const consoleChannelID = "C_CONSOLE"

// localUserID identifies the human at the terminal on serve and console runs.
const localUserID = "ULOCAL"

// loadConfig reads the optional dotenv file, loads the YAML configuration,
// fills in the coordination channel for local runs, and validates the result.
func loadConfig() (*config.Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Coordination.Channel == "" {
		cfg.Coordination.Channel = defaultChannelID
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stack is one fully wired hive: the shared hub, the specialist registry,
// the orchestrator, and every specialist with its clients and tools.
type stack struct {
	cfg          *config.Config
	hub          *channel.Hub
	registry     *registry.Registry
	orchestrator *coordination.Orchestrator
	specialists  []*specialist.Specialist
	scheduler    *llm.Scheduler
}

// buildStack assembles the hive from configuration. Specialists share one
// LLM scheduler so concurrent evaluations cannot stampede a provider, and
// tool integrations share one HTTP client.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	hub := channel.NewHub()
	reg, err := registry.FromProfiles(cfg.Specialists)
	if err != nil {
		return nil, err
	}

	orch, err := coordination.New(coordination.Options{
		Adapter:  hub.Client(cfg.Orchestrator.UserID, cfg.Orchestrator.BotID),
		UserID:   cfg.Orchestrator.UserID,
		Name:     cfg.Orchestrator.Name,
		Channel:  cfg.Coordination.Channel,
		Registry: reg,
		Config:   cfg.Coordination,
	})
	if err != nil {
		return nil, err
	}

	st := &stack{cfg: cfg, hub: hub, registry: reg, orchestrator: orch}

	var shared llm.Client
	if cfg.LLM.Enabled() {
		shared, err = llm.New(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	search := tools.NewWebSearch(httpClient)
	weather := tools.NewOpenMeteo(httpClient)

	negotiators := make([]coordination.Negotiator, 0, len(cfg.Specialists))
	for _, p := range cfg.Specialists {
		opts := specialist.Options{
			Profile:      p,
			Adapter:      hub.Client(p.UserID, p.BotID),
			Channel:      cfg.Coordination.Channel,
			Orchestrator: cfg.Orchestrator.UserID,
			Directory:    orch,
			ContextLimit: cfg.Coordination.ContextLimit,
		}
		client := shared
		if p.LLM != nil {
			if p.LLM.Enabled() {
				client, err = llm.New(ctx, *p.LLM)
				if err != nil {
					return nil, fmt.Errorf("specialist %s: %w", p.Name, err)
				}
			} else {
				client = nil
			}
		}
		if client != nil {
			if st.scheduler == nil {
				st.scheduler = llm.NewScheduler(cfg.LLM.MaxConcurrent)
			}
			opts.LLM = llm.NewScheduled(st.scheduler, p.Name, client)
		}
		if p.HasTool("websearch") {
			opts.Search = search
		}
		if p.HasTool("weather") {
			opts.Weather = weather
		}
		sp, err := specialist.New(opts)
		if err != nil {
			return nil, fmt.Errorf("specialist %s: %w", p.Name, err)
		}
		st.specialists = append(st.specialists, sp)
		negotiators = append(negotiators, sp)
	}
	orch.SetNegotiators(negotiators)

	return st, nil
}

// Attach subscribes the orchestrator and every specialist to the hub and
// posts their readiness messages. The returned stop function detaches all
// agents in parallel, waits for their in-flight work, stops the scheduler,
// and closes the hub.
func (s *stack) Attach(ctx context.Context) (func(), error) {
	stops := make([]func(), 0, len(s.specialists)+1)
	stops = append(stops, s.orchestrator.Attach(ctx))
	for _, sp := range s.specialists {
		stops = append(stops, sp.Attach(ctx))
	}
	stop := func() {
		var g errgroup.Group
		for _, fn := range stops {
			g.Go(func() error {
				fn()
				return nil
			})
		}
		_ = g.Wait()
		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		s.hub.Close()
	}

	if err := s.orchestrator.Online(ctx); err != nil {
		stop()
		return nil, err
	}
	for _, sp := range s.specialists {
		if err := sp.Online(ctx); err != nil {
			stop()
			return nil, err
		}
	}
	return stop, nil
}
