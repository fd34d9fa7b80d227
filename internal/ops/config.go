// Package ops loads the bot's JSON runtime configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"

	"main/internal/gateway"
)

const defaultBaseURL = "https://www.kookapp.cn/api/v3"

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Token     string          `json:"token"`
	BaseURL   string          `json:"baseUrl"`
	Compress  bool            `json:"compress"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Session   SessionConfig   `json:"session"`
	Postgres  *PostgresConfig `json:"postgres"`
}

// HeartbeatConfig selects the liveness policy.
type HeartbeatConfig struct {
	// Mode is "lax" or "strict". Optional; default lax.
	Mode string `json:"mode"`
}

// SessionConfig selects where the resumable session is persisted.
type SessionConfig struct {
	// Backend is "memory", "file" or "postgres". Optional; default memory.
	Backend string `json:"backend"`
	// Path is the session file location for the file backend.
	Path string `json:"path"`
	// BotID keys the session row for the postgres backend.
	BotID string `json:"botId"`
}

// PostgresConfig describes the database for the postgres session backend.
type PostgresConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
}

// Session backends.
const (
	SessionMemory   = "memory"
	SessionFile     = "file"
	SessionPostgres = "postgres"
)

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Token         string
	BaseURL       string
	Compress      bool
	HeartbeatMode gateway.HeartbeatMode
	Session       SessionConfig
	Postgres      *PostgresConfig
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Token == "" {
		return Loaded{}, fmt.Errorf("token is empty")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	mode, err := resolveHeartbeatMode(cfg.Heartbeat.Mode)
	if err != nil {
		return Loaded{}, err
	}

	sess, err := resolveSession(cfg.Session, cfg.Postgres)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Token:         cfg.Token,
		BaseURL:       baseURL,
		Compress:      cfg.Compress,
		HeartbeatMode: mode,
		Session:       sess,
		Postgres:      cfg.Postgres,
	}, nil
}

func resolveHeartbeatMode(mode string) (gateway.HeartbeatMode, error) {
	switch mode {
	case "", "lax":
		return gateway.HeartbeatLax, nil
	case "strict":
		return gateway.HeartbeatStrict, nil
	default:
		return 0, fmt.Errorf("unknown heartbeat mode: %s", mode)
	}
}

func resolveSession(cfg SessionConfig, pg *PostgresConfig) (SessionConfig, error) {
	switch cfg.Backend {
	case "":
		cfg.Backend = SessionMemory
	case SessionMemory:
	case SessionFile:
		if cfg.Path == "" {
			return SessionConfig{}, fmt.Errorf("session path is empty for file backend")
		}
	case SessionPostgres:
		if cfg.BotID == "" {
			return SessionConfig{}, fmt.Errorf("session botId is empty for postgres backend")
		}
		if pg == nil {
			return SessionConfig{}, fmt.Errorf("postgres config missing for postgres backend")
		}
	default:
		return SessionConfig{}, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
	return cfg, nil
}
