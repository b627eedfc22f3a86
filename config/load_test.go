package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/config"
)

var _ = Describe("Load", func() {

	It("loads an empty config with full defaults", func() {
		_, f := writeFixture("config.hcl", "")
		cfg, err := config.LoadAndValidate(f)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Storage.Backend).To(Equal("memory"))
		Expect(cfg.Orchestrator.PlannerWhitelist).To(Equal([]string{"sequential", "risk", "structural", "strategic"}))
		Expect(cfg.Orchestrator.MinReliability).To(HaveValue(Equal(0.25)))
		Expect(cfg.Orchestrator.RingCapacity).To(Equal(1000))
		Expect(cfg.Orchestrator.MaxAdaptiveCycles).To(Equal(3))
		Expect(cfg.Orchestrator.TaskConcurrency).To(Equal(4))
		Expect(cfg.Orchestrator.TaskRetry.MaxAttempts).To(Equal(3))
	})

	It("parses variables and resolves them into model blocks", func() {
		_, f := writeFixture("config.hcl", `
variable "api_key" {
  default     = "sk-test-default"
  description = "Anthropic key"
}

model "claude" {
  provider       = "anthropic"
  api_key        = vars.api_key
  allowed_models = ["claude_3_5_haiku"]
}
`)
		cfg, err := config.LoadAndValidate(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Variables).To(HaveLen(1))
		Expect(cfg.Models).To(HaveLen(1))
		Expect(cfg.Models[0].Provider).To(Equal(config.ProviderAnthropic))
		Expect(cfg.Models[0].APIKey).To(Equal("sk-test-default"))
	})

	It("parses storage and orchestrator blocks", func() {
		_, f := writeFixture("config.hcl", `
storage {
  backend = "sqlite"
  path    = "/tmp/flotilla-test.db"
}

orchestrator {
  planner_whitelist   = ["sequential", "risk"]
  min_reliability     = 0.4
  max_adaptive_cycles = 2
  task_concurrency    = 8

  task_retry {
    max_attempts  = 5
    base_delay_ms = 50
  }
}
`)
		cfg, err := config.LoadAndValidate(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.Backend).To(Equal("sqlite"))
		Expect(cfg.Storage.Path).To(Equal("/tmp/flotilla-test.db"))
		Expect(cfg.Orchestrator.PlannerWhitelist).To(Equal([]string{"sequential", "risk"}))
		Expect(cfg.Orchestrator.MinReliability).To(HaveValue(Equal(0.4)))
		Expect(cfg.Orchestrator.MaxAdaptiveCycles).To(Equal(2))
		Expect(cfg.Orchestrator.TaskConcurrency).To(Equal(8))
		Expect(cfg.Orchestrator.TaskRetry.MaxAttempts).To(Equal(5))
		Expect(cfg.Orchestrator.TaskRetry.BaseDelayMS).To(Equal(50))
		// Unset retry fields still default
		Expect(cfg.Orchestrator.TaskRetry.Multiplier).To(Equal(2.0))
	})

	It("merges blocks across multiple files in a directory", func() {
		dir, _ := writeFixture("vars.hcl", `
variable "api_key" {
  default = "sk-from-vars-file"
}
`)
		Expect(writeSecondFixture(dir, "models.hcl", `
model "claude" {
  provider       = "anthropic"
  api_key        = vars.api_key
  allowed_models = ["claude_3_5_sonnet"]
}
`)).To(Succeed())

		cfg, err := config.LoadAndValidate(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Models).To(HaveLen(1))
		Expect(cfg.Models[0].APIKey).To(Equal("sk-from-vars-file"))
	})

	It("rejects unsupported providers", func() {
		_, f := writeFixture("config.hcl", `
model "mystery" {
  provider       = "mystery"
  api_key        = "k"
  allowed_models = []
}
`)
		_, err := config.LoadAndValidate(f)
		Expect(err).To(MatchError(ContainSubstring("not supported")))
	})

	It("rejects unknown model names for a provider", func() {
		_, f := writeFixture("config.hcl", `
model "claude" {
  provider       = "anthropic"
  api_key        = "k"
  allowed_models = ["gpt_4o"]
}
`)
		_, err := config.LoadAndValidate(f)
		Expect(err).To(MatchError(ContainSubstring("not supported for provider")))
	})

	It("keeps an explicit zero reliability threshold", func() {
		_, f := writeFixture("config.hcl", `
orchestrator {
  min_reliability = 0
}
`)
		cfg, err := config.LoadAndValidate(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Orchestrator.MinReliability).To(HaveValue(Equal(0.0)))
	})

	It("rejects an out-of-range reliability threshold", func() {
		_, f := writeFixture("config.hcl", `
orchestrator {
  min_reliability = 1.5
}
`)
		_, err := config.LoadAndValidate(f)
		Expect(err).To(MatchError(ContainSubstring("min_reliability")))
	})

	It("looks up models by provider", func() {
		_, f := writeFixture("config.hcl", `
model "claude" {
  provider       = "anthropic"
  api_key        = "k"
  allowed_models = ["claude_3_5_haiku"]
}
`)
		cfg, err := config.LoadAndValidate(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ModelFor(config.ProviderAnthropic)).NotTo(BeNil())
		Expect(cfg.ModelFor(config.ProviderOpenAI)).To(BeNil())
	})
})
