package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed candidates.yaml
var candidatesYAML []byte

type Config struct {
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	Store      StoreConfig
	Ledger     LedgerConfig
	Candidates CandidatesConfig
}

type EmbeddingConfig struct {
	URL string // base URL of the face embedding service, defaults to http://localhost:8000
	Dim int    // embedding dimensionality, defaults to 512 (FaceNet/ResNet100)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty means file-backed storage
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type StoreConfig struct {
	DataDir   string // directory for the file-backed store and audit log (default ./data)
	AuditFile string // append-only vote audit log filename (default votes.txt)
}

type LedgerConfig struct {
	RPCURL          string // Ethereum JSON-RPC endpoint; empty means ledger unconfigured
	ContractAddress string // voting contract address
	PrivateKey      string // hex-encoded key for signing vote transactions
	ChainID         int64  // defaults to 11155111 (Sepolia)
	SubmitTimeout   time.Duration
}

type CandidatesConfig struct {
	Candidates []Candidate `yaml:"candidates"`
}

type Candidate struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Party string `yaml:"party"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 is envInt for int64 values.
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a number of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

// envString reads an environment variable with a default.
func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var candidates CandidatesConfig
	if err := yaml.Unmarshal(candidatesYAML, &candidates); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded candidates.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Store: StoreConfig{
			DataDir:   envString("DATA_DIR", "data"),
			AuditFile: envString("AUDIT_FILE", "votes.txt"),
		},
		Ledger: LedgerConfig{
			RPCURL:          os.Getenv("LEDGER_RPC_URL"),
			ContractAddress: os.Getenv("LEDGER_CONTRACT_ADDRESS"),
			PrivateKey:      os.Getenv("LEDGER_PRIVATE_KEY"),
			ChainID:         envInt64("LEDGER_CHAIN_ID", 11155111),
			SubmitTimeout:   envDuration("LEDGER_SUBMIT_TIMEOUT_SECONDS", 10*time.Second),
		},
		Candidates: candidates,
	}
}

// ValidCandidate reports whether the given candidate id is on the ballot.
func (c *Config) ValidCandidate(id string) bool {
	for _, cand := range c.Candidates.Candidates {
		if cand.ID == id {
			return true
		}
	}
	return false
}
