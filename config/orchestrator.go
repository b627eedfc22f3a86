package config

import "fmt"

// RetryConfig tunes the backoff curve used for task retries, self-heal
// rediscovery and model calls.
type RetryConfig struct {
	MaxAttempts int     `hcl:"max_attempts,optional"`
	BaseDelayMS int     `hcl:"base_delay_ms,optional"`
	Multiplier  float64 `hcl:"multiplier,optional"`
	MaxDelayMS  int     `hcl:"max_delay_ms,optional"`
}

func (r *RetryConfig) Defaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.BaseDelayMS == 0 {
		r.BaseDelayMS = 200
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}
	if r.MaxDelayMS == 0 {
		r.MaxDelayMS = 30000
	}
}

// OrchestratorConfig tunes planner selection and task execution.
type OrchestratorConfig struct {
	PlannerWhitelist []string `hcl:"planner_whitelist,optional"`
	PluginDirs       []string `hcl:"plugin_dirs,optional"`

	// MinReliability is a pointer so an explicit 0 (admit every planner)
	// is distinguishable from an absent attribute.
	MinReliability     *float64 `hcl:"min_reliability,optional"`
	RingCapacity       int      `hcl:"ring_capacity,optional"`
	MaxAdaptiveCycles  int      `hcl:"max_adaptive_cycles,optional"`
	TaskConcurrency    int      `hcl:"task_concurrency,optional"`
	TaskTimeoutSeconds int      `hcl:"task_timeout_seconds,optional"`
	PlannerModel       string   `hcl:"planner_model,optional"`

	TaskRetry *RetryConfig `hcl:"task_retry,block"`
	Heal      *RetryConfig `hcl:"heal,block"`
}

func (o *OrchestratorConfig) Defaults() {
	if len(o.PlannerWhitelist) == 0 {
		o.PlannerWhitelist = []string{"sequential", "risk", "structural", "strategic"}
	}
	if o.MinReliability == nil {
		def := 0.25
		o.MinReliability = &def
	}
	if o.RingCapacity == 0 {
		o.RingCapacity = 1000
	}
	if o.MaxAdaptiveCycles == 0 {
		o.MaxAdaptiveCycles = 3
	}
	if o.TaskConcurrency == 0 {
		o.TaskConcurrency = 4
	}
	if o.TaskTimeoutSeconds == 0 {
		o.TaskTimeoutSeconds = 120
	}
	if o.TaskRetry == nil {
		o.TaskRetry = &RetryConfig{}
	}
	o.TaskRetry.Defaults()
	if o.Heal == nil {
		o.Heal = &RetryConfig{}
	}
	o.Heal.Defaults()
}

func (o *OrchestratorConfig) Validate() error {
	if o.MinReliability != nil && (*o.MinReliability < 0 || *o.MinReliability > 1) {
		return fmt.Errorf("min_reliability must be between 0 and 1, got %v", *o.MinReliability)
	}
	if o.TaskConcurrency < 1 {
		return fmt.Errorf("task_concurrency must be at least 1, got %d", o.TaskConcurrency)
	}
	if o.MaxAdaptiveCycles < 0 {
		return fmt.Errorf("max_adaptive_cycles must not be negative, got %d", o.MaxAdaptiveCycles)
	}
	return nil
}
