package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. ABACUS_DB_PATH.
const EnvPrefix = "ABACUS"

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRemote = "remote"
)

// Keys shared by the YAML file, the environment and command-line overrides.
const (
	KeyHTTPAddr         = "http_addr"
	KeyGRPCAddr         = "grpc_addr"
	KeyEnv              = "env"
	KeyBackend          = "backend"
	KeyDBPath           = "db_path"
	KeyRemoteAddr       = "remote_addr"
	KeyPrecision        = "precision"
	KeyRecorderBuffer   = "recorder_buffer"
	KeyReconnectBackoff = "reconnect_backoff_ms"
)

var ErrUnknownBackend = errors.New("unknown history backend")

type Config struct {
	HTTPAddr string
	GRPCAddr string

	Env     string // "dev" | "prod"
	Backend string // "sqlite" | "memory" | "remote"

	DBPath     string // e.g. "./data/abacus.db"
	RemoteAddr string // collection service, e.g. "localhost:9090"

	Precision        int // significant digits of every result
	RecorderBuffer   int // session write backlog that triggers a warning
	ReconnectBackoff time.Duration
}

// Options controls where Load looks besides the environment.
type Options struct {
	// ConfigFile is an optional YAML file. When set it must exist.
	ConfigFile string

	// DotEnv is loaded into the environment if it exists. Variables that
	// are already set win. Defaults to ".env".
	DotEnv string

	// Overrides beat every other source, typically command-line flags.
	Overrides map[string]any
}

func defaults(v *viper.Viper) {
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyGRPCAddr, ":9090")
	v.SetDefault(KeyEnv, "dev")
	v.SetDefault(KeyBackend, BackendSQLite)
	v.SetDefault(KeyDBPath, "./data/abacus.db")
	v.SetDefault(KeyRemoteAddr, "localhost:9090")
	v.SetDefault(KeyPrecision, 12)
	v.SetDefault(KeyRecorderBuffer, 64)
	v.SetDefault(KeyReconnectBackoff, 500)
}

// Load resolves the configuration from, lowest priority first: defaults, the
// YAML file, the environment and Overrides.
func Load(opts Options) (Config, error) {
	dotEnv := opts.DotEnv
	if dotEnv == "" {
		dotEnv = ".env"
	}
	// load .env if it exists (ignore if it does not)
	if _, err := os.Stat(dotEnv); err == nil {
		if err := godotenv.Load(dotEnv); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", dotEnv, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", dotEnv, err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendMemory, BackendRemote:
		return nil
	default:
		return fmt.Errorf("%w %q (want sqlite, memory or remote)", ErrUnknownBackend, c.Backend)
	}
}

func fromViper(v *viper.Viper) Config {
	env := strings.ToLower(strings.TrimSpace(v.GetString(KeyEnv)))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		HTTPAddr: stringDefault(v, KeyHTTPAddr, ":8080"),
		GRPCAddr: stringDefault(v, KeyGRPCAddr, ":9090"),

		Env:     env,
		Backend: strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),

		DBPath:     stringDefault(v, KeyDBPath, "./data/abacus.db"),
		RemoteAddr: stringDefault(v, KeyRemoteAddr, "localhost:9090"),

		Precision:        positiveInt(v, KeyPrecision, 12),
		RecorderBuffer:   positiveInt(v, KeyRecorderBuffer, 64),
		ReconnectBackoff: time.Duration(positiveInt(v, KeyReconnectBackoff, 500)) * time.Millisecond,
	}
}

func stringDefault(v *viper.Viper, key, def string) string {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	return s
}

func positiveInt(v *viper.Viper, key string, def int) int {
	n := v.GetInt(key)
	if n <= 0 {
		return def
	}
	return n
}
