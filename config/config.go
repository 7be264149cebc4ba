package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists (not present in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Component is a single named component entry in the config. The `_type`
// discriminator selects the registered builder; everything else in the block
// is passed to that builder untouched.
type Component struct {
	Type     string         `yaml:"_type"`
	Settings map[string]any `yaml:",inline"`
}

// General holds serve-mode and workflow-wide settings.
type General struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// KnowledgeBase names the retriever consulted when a request sets
	// use_knowledge_base. Empty means the flag is ignored.
	KnowledgeBase string  `yaml:"knowledge_base"`
	Logging       Logging `yaml:"logging"`
}

// Logging controls serve-mode log verbosity. An empty level leaves the
// process defaults alone.
type Logging struct {
	Level string `yaml:"level"` // "debug" or "release"
}

// EvalConfig configures the `aiq eval` harness.
type EvalConfig struct {
	Dataset          string      `yaml:"dataset"`
	OutputDir        string      `yaml:"output_dir"`
	MaxConcurrency   int         `yaml:"max_concurrency"`
	UseKnowledgeBase bool        `yaml:"use_knowledge_base"`
	Evaluators       []Component `yaml:"evaluators"`
}

// Schedule is a cron-triggered workflow run, active in serve mode.
type Schedule struct {
	Name             string `yaml:"name"`
	Cron             string `yaml:"cron"`
	Input            string `yaml:"input"`
	UseKnowledgeBase bool   `yaml:"use_knowledge_base"`
}

// Store configures trace persistence for workflow runs.
type Store struct {
	Type          string `yaml:"type"`       // "sqlite" or "postgres"
	Connection    string `yaml:"connection"` // file path or DSN
	RetentionDays int    `yaml:"retention_days"`
}

// Config is the full workflow configuration file.
type Config struct {
	General    General              `yaml:"general"`
	Functions  map[string]Component `yaml:"functions"`
	LLMs       map[string]Component `yaml:"llms"`
	Embedders  map[string]Component `yaml:"embedders"`
	Retrievers map[string]Component `yaml:"retrievers"`
	Workflow   Component            `yaml:"workflow"`
	Eval       EvalConfig           `yaml:"eval"`
	Schedules  []Schedule           `yaml:"schedules"`
	Store      Store                `yaml:"store"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses a workflow config file. ${VAR} references are
// replaced with environment values before parsing, so secrets stay out of
// config files.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	expanded := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}

	return &cfg, nil
}

// Validate checks structural requirements. Unknown component types are not
// caught here; the builder reports those against its registry.
func (c *Config) Validate() error {
	if c.Workflow.Type == "" {
		return fmt.Errorf("workflow section with a _type is required")
	}
	for name, comp := range c.Functions {
		if comp.Type == "" {
			return fmt.Errorf("function '%s' is missing _type", name)
		}
	}
	for name, comp := range c.LLMs {
		if comp.Type == "" {
			return fmt.Errorf("llm '%s' is missing _type", name)
		}
	}
	for name, comp := range c.Embedders {
		if comp.Type == "" {
			return fmt.Errorf("embedder '%s' is missing _type", name)
		}
	}
	for name, comp := range c.Retrievers {
		if comp.Type == "" {
			return fmt.Errorf("retriever '%s' is missing _type", name)
		}
	}
	if c.General.KnowledgeBase != "" {
		if _, ok := c.Retrievers[c.General.KnowledgeBase]; !ok {
			return fmt.Errorf("general.knowledge_base references unknown retriever '%s'", c.General.KnowledgeBase)
		}
	}
	for i, sched := range c.Schedules {
		if sched.Name == "" {
			return fmt.Errorf("schedule %d is missing a name", i)
		}
		if sched.Cron == "" {
			return fmt.Errorf("schedule '%s' is missing a cron expression", sched.Name)
		}
	}
	if c.Store.Type != "" && c.Store.Type != "sqlite" && c.Store.Type != "postgres" {
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}
	return nil
}

// Address returns the serve bind address, defaulting to the documented
// localhost:8000.
func (g General) Address() string {
	host := g.Host
	port := g.Port
	if port == 0 {
		port = 8000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Decode unmarshals a component's settings map into a typed config struct.
// Goes through JSON so struct tags match the wire format used everywhere else.
func Decode(settings map[string]any, out any) error {
	if settings == nil {
		settings = map[string]any{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal component settings: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode component settings: %w", err)
	}
	return nil
}
