package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file configuration
const (
	EnvSecretKey      = "SECRET_KEY"
	EnvNormalMasterPW = "CREATE_ACCOUNT_NORMAL_PW"
	EnvAdminMasterPW  = "CREATE_ACCOUNT_ADMIN_PW"
	EnvDebugMode      = "DEBUGMODE"
)

const DefaultJWTSecret = "changeme"

var ErrDefaultSecret = errors.New("refusing to sign tokens with the default secret, set " + EnvSecretKey + " or " + EnvDebugMode)

// Config holds the global service configuration
type Config struct {
	// General configuration
	General struct {
		// DataDir is the root for relative storage and portal paths
		DataDir string `yaml:"dataDir"`

		// LogLevel is the logging level
		LogLevel string `yaml:"logLevel"`

		// Development enables development mode
		Development bool `yaml:"development"`
	} `yaml:"general"`

	// Storage configuration for users and API tokens
	Storage struct {
		// Engine is one of memory, file, bolt, sqlite
		Engine string `yaml:"engine"`

		// Path to the storage directory
		Path string `yaml:"path"`

		// MachineIDFallback replaces the OS machine id where none exists (containers)
		MachineIDFallback string `yaml:"machineIdFallback"`
	} `yaml:"storage"`

	// Portal configuration
	Portal struct {
		// FactoriesDir holds one folder per factory with a desc.json
		FactoriesDir string `yaml:"factoriesDir"`

		// JobsDir holds one folder per job
		JobsDir string `yaml:"jobsDir"`

		// MaxUploadMB caps uploaded job files
		MaxUploadMB int `yaml:"maxUploadMB"`

		// WatchFactories reloads descriptors when the factories directory changes
		WatchFactories bool `yaml:"watchFactories"`
	} `yaml:"portal"`

	// HTTP server configuration
	HTTP struct {
		// Enabled enables the HTTP server
		Enabled bool `yaml:"enabled"`

		// Address to bind the HTTP server
		Address string `yaml:"address"`

		// Port to bind the HTTP server
		Port int `yaml:"port"`

		// TLS enables TLS
		TLS bool `yaml:"tls"`

		// CertFile is the TLS certificate path
		CertFile string `yaml:"certFile"`

		// KeyFile is the TLS private key path
		KeyFile string `yaml:"keyFile"`

		// CORS configuration
		CORS struct {
			// Enabled enables CORS
			Enabled bool `yaml:"enabled"`

			// AllowedOrigins is the list of allowed origins
			AllowedOrigins []string `yaml:"allowedOrigins"`
		} `yaml:"cors"`

		// JWT configuration
		JWT struct {
			// Secret is the signing key for tokens
			Secret string `yaml:"secret"`

			// DefaultExpirationMinutes applies when no lifetime is requested
			DefaultExpirationMinutes int `yaml:"defaultExpirationMinutes"`

			// LoginExpirationMinutes is the lifetime of tokens issued by the login endpoint
			LoginExpirationMinutes int `yaml:"loginExpirationMinutes"`
		} `yaml:"jwt"`
	} `yaml:"http"`

	// gRPC server configuration
	GRPC struct {
		// Enabled enables the gRPC server
		Enabled bool `yaml:"enabled"`

		// Address to bind the gRPC server
		Address string `yaml:"address"`

		// Port to bind the gRPC server
		Port int `yaml:"port"`
	} `yaml:"grpc"`

	// Security configuration
	Security struct {
		// MasterPasswords maps a registration role to its shared secret
		MasterPasswords map[string]string `yaml:"masterPasswords"`

		// PrivilegedRoles are the roles whose registrations become administrators
		PrivilegedRoles []string `yaml:"privilegedRoles"`

		// Argon2 tunes password hashing
		Argon2 struct {
			Time      uint32 `yaml:"time"`
			MemoryKiB uint32 `yaml:"memoryKiB"`
			Threads   uint8  `yaml:"threads"`
			KeyLength uint32 `yaml:"keyLength"`
		} `yaml:"argon2"`
	} `yaml:"security"`

	// Monitoring configuration
	Monitoring struct {
		// Prometheus exposes /metrics on the HTTP server
		Prometheus bool `yaml:"prometheus"`
	} `yaml:"monitoring"`

	Logging struct {
		ChannelSize int    `yaml:"channelSize"`
		Format      string `yaml:"format"` // "json", "text"
		Output      string `yaml:"output"` // "stdout", "stderr", "file"
		FilePath    string `yaml:"filePath"`
	} `yaml:"logging"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	c := &Config{}

	// General configuration
	c.General.DataDir = "./data"
	c.General.LogLevel = "info"
	c.General.Development = false

	// Storage configuration
	c.Storage.Engine = "file"
	c.Storage.Path = "storage"

	// Portal configuration
	c.Portal.FactoriesDir = "factories"
	c.Portal.JobsDir = "jobs"
	c.Portal.MaxUploadMB = 100
	c.Portal.WatchFactories = true

	// HTTP server configuration
	c.HTTP.Enabled = true
	c.HTTP.Address = "0.0.0.0"
	c.HTTP.Port = 8080
	c.HTTP.TLS = false
	c.HTTP.CORS.Enabled = false
	c.HTTP.CORS.AllowedOrigins = []string{"*"}
	c.HTTP.JWT.Secret = DefaultJWTSecret
	c.HTTP.JWT.DefaultExpirationMinutes = 15
	c.HTTP.JWT.LoginExpirationMinutes = 30

	// gRPC server configuration
	c.GRPC.Enabled = false
	c.GRPC.Address = "0.0.0.0"
	c.GRPC.Port = 50051

	// Security configuration, master passwords come from the environment by default
	c.Security.MasterPasswords = map[string]string{}
	c.Security.PrivilegedRoles = []string{"admin"}
	c.Security.Argon2.Time = 1
	c.Security.Argon2.MemoryKiB = 64 * 1024
	c.Security.Argon2.Threads = 4
	c.Security.Argon2.KeyLength = 32

	c.Monitoring.Prometheus = true

	// Logging configuration defaults
	c.Logging.ChannelSize = 1000
	c.Logging.Format = "json"
	c.Logging.Output = "stdout"
	c.Logging.FilePath = ""

	return c
}

// LoadConfig loads the configuration from a file, then applies the environment.
// An empty path means defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	baseDir := "."

	if path != "" {
		// Check if the file exists
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	ApplyEnv(config, os.LookupEnv)

	if err := config.resolvePaths(baseDir); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides secrets and debug mode from the environment
func ApplyEnv(config *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSecretKey); ok && v != "" {
		config.HTTP.JWT.Secret = v
	}

	if config.Security.MasterPasswords == nil {
		config.Security.MasterPasswords = map[string]string{}
	}
	if v, ok := lookup(EnvNormalMasterPW); ok {
		config.Security.MasterPasswords["normal"] = v
	}
	if v, ok := lookup(EnvAdminMasterPW); ok {
		config.Security.MasterPasswords["admin"] = v
	}

	if v, ok := lookup(EnvDebugMode); ok {
		if debug, err := strconv.ParseBool(v); err == nil && debug {
			config.General.Development = true
			config.General.LogLevel = "debug"
		}
	}
}

// resolvePaths makes relative paths absolute: DataDir against the config file, the rest against DataDir
func (c *Config) resolvePaths(baseDir string) error {
	if !filepath.IsAbs(c.General.DataDir) {
		dir, err := filepath.Abs(baseDir)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		c.General.DataDir = filepath.Join(dir, c.General.DataDir)
	}

	for _, p := range []*string{&c.Storage.Path, &c.Portal.FactoriesDir, &c.Portal.JobsDir} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(c.General.DataDir, *p)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// the file may carry secrets
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	logLevel := strings.ToLower(config.General.LogLevel)
	if logLevel != "debug" && logLevel != "info" && logLevel != "warn" && logLevel != "error" {
		return fmt.Errorf("invalid log level: %s", config.General.LogLevel)
	}

	engine := strings.ToLower(config.Storage.Engine)
	if engine != "memory" && engine != "file" && engine != "bolt" && engine != "sqlite" {
		return fmt.Errorf("invalid storage engine: %s", config.Storage.Engine)
	}

	if config.HTTP.Enabled && (config.HTTP.Port < 1 || config.HTTP.Port > 65535) {
		return fmt.Errorf("invalid HTTP port: %d", config.HTTP.Port)
	}

	if config.GRPC.Enabled && (config.GRPC.Port < 1 || config.GRPC.Port > 65535) {
		return fmt.Errorf("invalid gRPC port: %d", config.GRPC.Port)
	}

	if config.HTTP.JWT.Secret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}

	if config.Portal.MaxUploadMB < 1 {
		return fmt.Errorf("invalid max upload size: %d MB", config.Portal.MaxUploadMB)
	}

	switch config.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	switch config.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if config.Logging.FilePath == "" {
			return fmt.Errorf("log output is file but no file path is set")
		}
	default:
		return fmt.Errorf("invalid log output: %s", config.Logging.Output)
	}

	// Check the TLS configurations
	if config.HTTP.TLS {
		if config.HTTP.CertFile == "" || config.HTTP.KeyFile == "" {
			return fmt.Errorf("TLS enabled but certificate or key file not specified")
		}
		if _, err := os.Stat(config.HTTP.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("certificate file not found: %s", config.HTTP.CertFile)
		}
		if _, err := os.Stat(config.HTTP.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("key file not found: %s", config.HTTP.KeyFile)
		}
	}

	return nil
}

// CheckSigningSecret allows the placeholder secret only in development mode
func (c *Config) CheckSigningSecret() error {
	if c.UsesDefaultSecret() && !c.General.Development {
		return ErrDefaultSecret
	}
	return nil
}

// UsesDefaultSecret reports whether tokens are signed with the shipped placeholder secret
func (c *Config) UsesDefaultSecret() bool {
	return c.HTTP.JWT.Secret == DefaultJWTSecret
}
