package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"flotilla/plugin"
)

// Loader instantiates discovered planners in isolation. A panic inside a
// builtin constructor or a subprocess that fails its handshake is absorbed,
// recorded against the planner, and returned as an error so one broken
// planner never blocks selection of the rest.
type Loader struct {
	registry *Registry
	profiler *Profiler
	logger   hclog.Logger

	mu      sync.Mutex
	clients map[string]*plugin.Client
}

func NewLoader(registry *Registry, profiler *Profiler, logger hclog.Logger) *Loader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Loader{
		registry: registry,
		profiler: profiler,
		logger:   logger.Named("loader"),
		clients:  make(map[string]*plugin.Client),
	}
}

// Load instantiates the named planner. The outcome, success or failure,
// is recorded with the profiler.
func (l *Loader) Load(name string) (Planner, error) {
	entry, ok := l.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("planner %q is not in the registry", name)
	}

	var p Planner
	var err error
	switch entry.Kind {
	case KindBuiltin:
		p, err = l.loadBuiltin(name)
	case KindExternal:
		p, err = l.loadExternal(name, entry.Path)
	default:
		err = fmt.Errorf("planner %q has unknown kind %q", name, entry.Kind)
	}

	l.profiler.RecordInstantiation(name, err == nil)
	if err != nil {
		l.logger.Warn("planner instantiation failed", "planner", name, "error", err)
		return nil, err
	}
	return p, nil
}

func (l *Loader) loadBuiltin(name string) (p Planner, err error) {
	bp, ok := l.registry.Blueprint(name)
	if !ok {
		return nil, fmt.Errorf("no blueprint registered for builtin planner %q", name)
	}

	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("constructing planner %q panicked: %v", name, r)
		}
	}()

	p = bp.New()
	if p == nil {
		return nil, fmt.Errorf("blueprint for planner %q returned nil", name)
	}
	return p, nil
}

func (l *Loader) loadExternal(name, path string) (Planner, error) {
	l.mu.Lock()
	client, ok := l.clients[name]
	if !ok {
		client = plugin.NewClient(path)
		l.clients[name] = client
	}
	l.mu.Unlock()

	provider, err := client.Planner()
	if err != nil {
		l.mu.Lock()
		delete(l.clients, name)
		l.mu.Unlock()
		return nil, err
	}
	return &pluginPlanner{name: name, provider: provider}, nil
}

// Close kills all plugin subprocesses started by this loader.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, client := range l.clients {
		client.Close()
		delete(l.clients, name)
	}
}

// pluginPlanner adapts a plugin-served planner to the Planner interface.
// Context and plan cross the process boundary as JSON.
type pluginPlanner struct {
	name     string
	provider plugin.PlannerProvider
}

func (p *pluginPlanner) BuildPlan(_ context.Context, objective string, planCtx *Context) (*PlanDraft, error) {
	contextJSON := "{}"
	if planCtx != nil {
		data, err := json.Marshal(planCtx)
		if err != nil {
			return nil, fmt.Errorf("encoding planning context: %w", err)
		}
		contextJSON = string(data)
	}

	planJSON, err := p.provider.BuildPlan(objective, contextJSON)
	if err != nil {
		return nil, fmt.Errorf("plugin planner %s: %w", p.name, err)
	}

	var draft PlanDraft
	if err := json.Unmarshal([]byte(planJSON), &draft); err != nil {
		return nil, fmt.Errorf("plugin planner %s returned invalid plan: %w", p.name, err)
	}
	if draft.PlannerName == "" {
		draft.PlannerName = p.name
	}
	return &draft, nil
}
