package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Variable declares a named value settable from the vars file, with an
// optional default.
type Variable struct {
	Name        string `hcl:"name,label"`
	Default     string `hcl:"default,optional"`
	Description string `hcl:"description,optional"`
}

func (v *Variable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variable name must not be empty")
	}
	return nil
}

// Config holds all configuration
type Config struct {
	Variables    []Variable
	Models       []Model
	Storage      *StorageConfig
	Orchestrator *OrchestratorConfig

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	return nil
}

// ModelFor returns the model block configured for a provider, if any.
func (c *Config) ModelFor(provider Provider) *Model {
	for i := range c.Models {
		if c.Models[i].Provider == provider {
			return &c.Models[i]
		}
	}
	return nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables     []*hcl.Block
	Models        []*hcl.Block
	Storage       []*hcl.Block
	Orchestrators []*hcl.Block
}

// loadFromFiles implements staged loading: variables first, then every
// other block with the vars context in scope.
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		content, _, diags := hclFile.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
				{Type: "model", LabelNames: []string{"name"}},
				{Type: "storage"},
				{Type: "orchestrator"},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("partial content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "storage":
				pb.Storage = append(pb.Storage, block)
			case "orchestrator":
				pb.Orchestrators = append(pb.Orchestrators, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: Load variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: Load models with vars context
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode model %s: %w", m.Name, diags)
			}
			allModels = append(allModels, m)
		}
	}

	// Stage 3: Load storage and orchestrator blocks with vars context
	storage := &StorageConfig{}
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Storage {
			diags := gohcl.DecodeBody(block.Body, varsCtx, storage)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode storage block: %w", diags)
			}
		}
	}
	storage.Defaults()

	orchestrator := &OrchestratorConfig{}
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Orchestrators {
			diags := gohcl.DecodeBody(block.Body, varsCtx, orchestrator)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode orchestrator block: %w", diags)
			}
		}
	}
	orchestrator.Defaults()

	return &Config{
		Variables:    allVars,
		Models:       allModels,
		Storage:      storage,
		Orchestrator: orchestrator,
		ResolvedVars: resolvedVars,
	}, nil
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	fileVars, _ := LoadVarsFromFile()
	for _, v := range vars {
		if val, ok := fileVars[v.Name]; ok {
			varsMap[v.Name] = cty.StringVal(val)
		} else if v.Default != "" {
			varsMap[v.Name] = cty.StringVal(v.Default)
		} else {
			varsMap[v.Name] = cty.StringVal("")
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}
