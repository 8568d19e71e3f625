package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set
// explicitly. Flags win over env, env wins over the config file.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view the rest of the process runs
// on: the config plus the resolved listen address and DB path.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env", "config", or combinations
}

// ParseFlags defines and parses the shared command-line flags.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.inboxdb", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then INBOXDB_CONFIG, then the flag default.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if v := os.Getenv("INBOXDB_CONFIG"); v != "" {
		return v
	}
	return flagPath
}

// applyEnvOverrides layers INBOXDB_* environment variables onto cfg and
// reports whether any were present. MONGO_URI is honored bare because
// the historical deployments set it that way.
func applyEnvOverrides(cfg *Config) bool {
	used := false
	if v := os.Getenv("INBOXDB_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("INBOXDB_DB_PATH"); v != "" {
		used = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("INBOXDB_STORE_BACKEND"); v != "" {
		used = true
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("INBOXDB_MONGO_URI"); v != "" {
		used = true
		cfg.Storage.Mongo.URI = v
	} else if v := os.Getenv("MONGO_URI"); v != "" {
		used = true
		cfg.Storage.Mongo.URI = v
	}
	if v := os.Getenv("INBOXDB_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INBOXDB_SERVER_ENGINE"); v != "" {
		used = true
		cfg.Server.Engine = v
	}
	return used
}

// LoadEffective merges config file, environment, and flags into the
// effective config. A missing config file is fine; a malformed one is
// fatal.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	fileUsed := true
	if err != nil {
		if !os.IsNotExist(err) {
			return res, err
		}
		cfg = &Config{}
		fileUsed = false
	}

	envUsed := applyEnvOverrides(cfg)

	res.Config = cfg
	res.Addr = cfg.Addr()
	if flags.Set["addr"] {
		res.Addr = flags.Addr
	}
	res.DBPath = cfg.Storage.DBPath
	if flags.Set["db"] || res.DBPath == "" {
		res.DBPath = flags.DB
	}

	srcs := []string{}
	if len(flags.Set) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if fileUsed {
		srcs = append(srcs, "config")
	}
	for i, s := range srcs {
		if i > 0 {
			res.Source += ", "
		}
		res.Source += s
	}
	return res, nil
}
