package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Providers    []ProviderConfig   `json:"providers"`
	Embedding    EmbeddingConfig    `json:"embedding"`
	Memory       MemoryConfig       `json:"memory"`
	Pipeline     PipelineConfig     `json:"pipeline"`
	Database     DatabaseConfig     `json:"database"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	ProfilesDir  string             `json:"profiles_dir"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // api | local | hash
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	CacheSize int64  `json:"cache_size"`
}

// MemoryConfig selects the vector index backend and scoring constants.
type MemoryConfig struct {
	Backend     string        `json:"backend"` // chromem | qdrant | neo4j
	PersistPath string        `json:"persist_path"`
	Scoring     ScoringConfig `json:"scoring"`
}

type ScoringConfig struct {
	MinImportance   float64 `json:"min_importance"`
	MaxImportance   float64 `json:"max_importance"`
	ImportanceFloor float64 `json:"importance_floor"`
	HalfLifeTicks   float64 `json:"half_life_ticks"`
	Overfetch       int     `json:"overfetch"`
}

// StageConfig tunes a single LLM stage.
type StageConfig struct {
	Model       string   `json:"model"`
	MaxRetries  int      `json:"max_retries"`
	Timeout     Duration `json:"timeout"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

type PipelineConfig struct {
	MemoryQuery       StageConfig `json:"memory_query"`
	CognitiveUpdate   StageConfig `json:"cognitive_update"`
	ActionSelection   StageConfig `json:"action_selection"`
	MaxQueries        int         `json:"max_queries"`
	MemoriesPerQuery  int         `json:"memories_per_query"`
	MaxRetrieved      int         `json:"max_retrieved"`
	SeedImportance    float64     `json:"seed_importance"`
	ConversationLimit int         `json:"conversation_limit"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type OrchestratorConfig struct {
	PoolSize       int      `json:"pool_size"`
	SweepInterval  Duration `json:"sweep_interval"`
	SweepThreshold int      `json:"sweep_threshold"`
}

// Duration unmarshals from either a Go duration string ("30s") or seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Default returns a configuration that runs fully in-process.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080, LogLevel: "development"},
		Embedding: EmbeddingConfig{Provider: "hash", Dimension: 256, CacheSize: 4096},
		Memory: MemoryConfig{
			Backend: "chromem",
			Scoring: ScoringConfig{
				MinImportance:   1,
				MaxImportance:   10,
				ImportanceFloor: 0.5,
				HalfLifeTicks:   1440,
				Overfetch:       3,
			},
		},
		Pipeline: PipelineConfig{
			MemoryQuery:       StageConfig{MaxRetries: 1, Timeout: Duration{30 * time.Second}, Temperature: 0.7, MaxTokens: 512},
			CognitiveUpdate:   StageConfig{MaxRetries: 1, Timeout: Duration{60 * time.Second}, Temperature: 0.7, MaxTokens: 2048},
			ActionSelection:   StageConfig{MaxRetries: 2, Timeout: Duration{30 * time.Second}, Temperature: 0.3, MaxTokens: 512},
			MaxQueries:        5,
			MemoriesPerQuery:  2,
			MaxRetrieved:      5,
			SeedImportance:    5,
			ConversationLimit: 20,
		},
		Orchestrator: OrchestratorConfig{
			PoolSize:       8,
			SweepInterval:  Duration{5 * time.Minute},
			SweepThreshold: 10,
		},
		ProfilesDir: "profiles",
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and overlays the result onto Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	s := c.Memory.Scoring
	if s.MaxImportance <= s.MinImportance {
		return fmt.Errorf("memory.scoring: max_importance (%v) must exceed min_importance (%v)", s.MaxImportance, s.MinImportance)
	}
	if s.ImportanceFloor < 0 || s.ImportanceFloor > 1 {
		return fmt.Errorf("memory.scoring: importance_floor must be within [0,1], got %v", s.ImportanceFloor)
	}
	if s.HalfLifeTicks <= 0 {
		return fmt.Errorf("memory.scoring: half_life_ticks must be positive")
	}
	for name, sc := range map[string]StageConfig{
		"memory_query":     c.Pipeline.MemoryQuery,
		"cognitive_update": c.Pipeline.CognitiveUpdate,
		"action_selection": c.Pipeline.ActionSelection,
	} {
		if sc.MaxRetries < 0 {
			return fmt.Errorf("pipeline.%s: max_retries must not be negative", name)
		}
	}
	if c.Pipeline.ActionSelection.MaxRetries < 1 {
		return fmt.Errorf("pipeline.action_selection: max_retries must be at least 1")
	}
	switch c.Memory.Backend {
	case "chromem", "qdrant", "neo4j":
	default:
		return fmt.Errorf("memory.backend: unknown backend %q", c.Memory.Backend)
	}
	return nil
}
