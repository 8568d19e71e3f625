package app

import (
	"fmt"
	"os"

	"inboxdb/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	switch eff.Config.Storage.Backend {
	case "", "pebble":
		if eff.DBPath == "" {
			return fmt.Errorf("database path is empty: set --db flag, INBOXDB_DB_PATH env, or storage.db_path in config")
		}
	case "mongo":
		if eff.Config.Storage.Mongo.URI == "" {
			return fmt.Errorf("mongo backend selected but no URI: set MONGO_URI env or storage.mongo.uri in config")
		}
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if e := eff.Config.Server.Engine; e != "" && e != "nethttp" && e != "fasthttp" {
		return fmt.Errorf("unknown server engine: %q", e)
	}

	return nil
}
