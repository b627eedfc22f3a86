package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"flotilla/config"
	"flotilla/llm"
	"flotilla/mission"
	"flotilla/planner"
	"flotilla/plugin"
	"flotilla/retry"
	"flotilla/store"
	"flotilla/streamers"
	"flotilla/tools"
)

const toolPluginPrefix = "flotilla-tools-"

// app bundles the wired-up runtime components behind the CLI commands.
type app struct {
	cfg      *config.Config
	stores   *store.Bundle
	registry *planner.Registry
	profiler *planner.Profiler
	loader   *planner.Loader
	factory  *planner.Factory
	orch     *mission.Orchestrator

	toolClients []*plugin.Client
	logger      hclog.Logger
}

// newApp loads config and wires stores, models, tools, planners and the
// orchestrator together.
func newApp(configPath string, streamer streamers.MissionHandler) (*app, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "flotilla",
		Level: hclog.Warn,
	})

	stores, err := store.NewBundle(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{cfg: cfg, stores: stores, logger: logger}
	orch := cfg.Orchestrator

	completer, err := a.buildCompleter()
	if err != nil {
		stores.Close()
		return nil, err
	}

	toolRegistry, err := a.buildTools(completer, orch.PluginDirs)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = planner.NewRegistry(orch.PlannerWhitelist, orch.PluginDirs, logger)
	planner.RegisterBuiltins(a.registry, completer, orch.PlannerModel)
	if err := a.registry.Discover(); err != nil {
		a.Close()
		return nil, fmt.Errorf("discovering planners: %w", err)
	}

	a.profiler = planner.NewProfiler(orch.RingCapacity)
	a.loader = planner.NewLoader(a.registry, a.profiler, logger)
	a.factory = planner.NewFactory(a.registry, a.loader, a.profiler,
		*orch.MinReliability, policyFrom(orch.Heal), logger)

	emitter := mission.NewEventEmitter(stores.Events, logger)
	invoker := tools.NewInvoker(toolRegistry,
		time.Duration(orch.TaskTimeoutSeconds)*time.Second, logger)

	if streamer == nil {
		streamer = streamers.Noop{}
	}
	executor := mission.NewExecutor(stores.Tasks, emitter, invoker, streamer,
		mission.WithConcurrency(orch.TaskConcurrency),
		mission.WithTaskRetryPolicy(policyFrom(orch.TaskRetry)),
		mission.WithExecutorLogger(logger),
	)
	a.orch = mission.NewOrchestrator(stores, a.factory, a.profiler, executor, emitter,
		mission.WithMaxAdaptiveCycles(orch.MaxAdaptiveCycles),
		mission.WithStreamer(streamer),
		mission.WithOrchestratorLogger(logger),
	)

	return a, nil
}

// buildCompleter constructs the model client from the configured model
// blocks. Missions that never touch a model tool work without any.
func (a *app) buildCompleter() (llm.Completer, error) {
	var opts []llm.ClientOption
	wired := false

	for i := range a.cfg.Models {
		m := &a.cfg.Models[i]
		switch m.Provider {
		case config.ProviderAnthropic:
			opts = append(opts, llm.WithProvider("anthropic", llm.NewAnthropicProvider(m.APIKey)))
		case config.ProviderOpenAI:
			opts = append(opts, llm.WithProvider("openai", llm.NewOpenAIProvider(m.APIKey)))
		case config.ProviderGemini:
			p, err := llm.NewGeminiProvider(context.Background(), m.APIKey)
			if err != nil {
				return nil, fmt.Errorf("model '%s': %w", m.Name, err)
			}
			opts = append(opts, llm.WithProvider("gemini", p))
		default:
			return nil, fmt.Errorf("model '%s': unsupported provider '%s'", m.Name, m.Provider)
		}
		wired = true
	}

	if !wired {
		return nil, nil
	}
	opts = append(opts, llm.WithLogger(a.logger))
	return llm.NewClient(opts...), nil
}

// buildTools registers the builtin tools plus any tool plugins found in
// the plugin directories.
func (a *app) buildTools(completer llm.Completer, pluginDirs []string) (*tools.Registry, error) {
	registry := tools.NewRegistry(
		&tools.EchoTool{},
		&tools.SleepTool{},
		&tools.HTTPGetTool{},
		&tools.HTTPPostTool{},
	)
	if completer != nil {
		registry.Register(tools.NewCompletionTool(completer))
	}

	for _, dir := range pluginDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			a.logger.Warn("skipping unreadable plugin dir", "dir", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), toolPluginPrefix) {
				continue
			}
			client := plugin.NewClient(filepath.Join(dir, entry.Name()))
			loaded, err := tools.LoadPluginTools(client)
			if err != nil {
				a.logger.Warn("failed to load tool plugin", "binary", entry.Name(), "error", err)
				client.Close()
				continue
			}
			a.toolClients = append(a.toolClients, client)
			for _, t := range loaded {
				registry.Register(t)
			}
		}
	}

	return registry, nil
}

// Close releases plugin subprocesses and store handles.
func (a *app) Close() {
	if a.loader != nil {
		a.loader.Close()
	}
	for _, c := range a.toolClients {
		c.Close()
	}
	if a.stores != nil {
		a.stores.Close()
	}
}

func policyFrom(rc *config.RetryConfig) retry.Policy {
	if rc == nil {
		return retry.DefaultPolicy()
	}
	return retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   time.Duration(rc.BaseDelayMS) * time.Millisecond,
		Multiplier:  rc.Multiplier,
		MaxDelay:    time.Duration(rc.MaxDelayMS) * time.Millisecond,
		Jitter:      true,
	}
}
