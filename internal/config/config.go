// Package config loads the core server's TOML configuration: one
// sectioned struct per subsystem, matching the recognized key list in
// SPEC_FULL.md §6. Unknown keys are ignored with a logged warning rather
// than a hard failure, matching how the legacy INI loader behaved.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds core server.* keys.
type ServerConfig struct {
	Name                 string `toml:"name"`
	IP                   string `toml:"ip"`
	Port                 int    `toml:"port"`
	ThreadCount          int    `toml:"threadCount"`
	MaxConnections       int    `toml:"maxConnections"`
	MaxConnectionsPerIP  int    `toml:"maxConnectionsPerIP"`
	ConnectionTimeoutSec int    `toml:"connectionTimeout"`
	MaxPacketSize        int    `toml:"maxPacketSize"`
	TickRateMs           int    `toml:"tickRateMs"`
	MaxEventHistory      int    `toml:"maxEventHistory"`
}

// LoggingConfig holds logging.* keys.
type LoggingConfig struct {
	Level           string `toml:"level"`
	RotationSizeMB  int    `toml:"rotationSizeMB"`
}

// NetworkConfig holds network.* keys.
type NetworkConfig struct {
	AllowedIPs []string `toml:"allowedIPs"`
	BannedIPs  []string `toml:"bannedIPs"`
}

// SecurityConfig holds security.* keys.
type SecurityConfig struct {
	EnableEncryption bool   `toml:"enableEncryption"`
	EncryptionKey    string `toml:"encryptionKey"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the
// repository layer. Not part of the legacy recognized key list, but
// every subsystem that needs persistence needs somewhere to configure
// it — kept as its own section rather than overloading server.*.
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`

	MaxConns int32 `toml:"max_conns"`
	MinConns int32 `toml:"min_conns"`
}

// DSN returns the PostgreSQL connection string for this database config.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// CoreServer is the root configuration document, one section per
// subsystem per SPEC_FULL.md §6.
type CoreServer struct {
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Network  NetworkConfig  `toml:"network"`
	Security SecurityConfig `toml:"security"`
	Database DatabaseConfig `toml:"database"`
}

// DefaultCoreServer returns a CoreServer with sensible defaults, used as
// the base before a config file is applied and as the whole config when
// no file exists.
func DefaultCoreServer() CoreServer {
	return CoreServer{
		Server: ServerConfig{
			Name:                 "wydcore",
			IP:                   "0.0.0.0",
			Port:                 7514,
			ThreadCount:          4,
			MaxConnections:       4000,
			MaxConnectionsPerIP:  5,
			ConnectionTimeoutSec: 300,
			MaxPacketSize:        8192,
			TickRateMs:           50,
			MaxEventHistory:      1000,
		},
		Logging: LoggingConfig{
			Level:          "info",
			RotationSizeMB: 100,
		},
		Security: SecurityConfig{
			EnableEncryption: true,
		},
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "wydcore",
			Password: "wydcore",
			DBName:  "wydcore",
			SSLMode: "disable",
		},
	}
}

// LoadCoreServer loads configuration from a TOML file at path, applied on
// top of DefaultCoreServer. A missing file is not an error — the caller
// runs on defaults. Keys in the file with no matching field are reported
// by toml.MetaData.Undecoded and logged as warnings rather than failing
// the load, matching the legacy "unknown keys ignored with a warning"
// behavior.
func LoadCoreServer(path string) (CoreServer, error) {
	cfg := DefaultCoreServer()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for _, key := range meta.Undecoded() {
		slog.Warn("config: unrecognized key ignored", "key", key.String())
	}

	return cfg, nil
}
