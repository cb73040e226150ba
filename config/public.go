package config

import "sort"

// PublicConfig is the configuration without secrets, safe to return over the API
type PublicConfig struct {
	General struct {
		DataDir     string `yaml:"dataDir" json:"dataDir"`
		LogLevel    string `yaml:"logLevel" json:"logLevel"`
		Development bool   `yaml:"development" json:"development"`
	} `yaml:"general" json:"general"`

	Storage struct {
		Engine string `yaml:"engine" json:"engine"`
		Path   string `yaml:"path" json:"path"`
	} `yaml:"storage" json:"storage"`

	Portal struct {
		FactoriesDir   string `yaml:"factoriesDir" json:"factoriesDir"`
		JobsDir        string `yaml:"jobsDir" json:"jobsDir"`
		MaxUploadMB    int    `yaml:"maxUploadMB" json:"maxUploadMB"`
		WatchFactories bool   `yaml:"watchFactories" json:"watchFactories"`
	} `yaml:"portal" json:"portal"`

	HTTP struct {
		Address string `yaml:"address" json:"address"`
		Port    int    `yaml:"port" json:"port"`
		TLS     bool   `yaml:"tls" json:"tls"`

		JWT struct {
			DefaultExpirationMinutes int `yaml:"defaultExpirationMinutes" json:"defaultExpirationMinutes"`
			LoginExpirationMinutes   int `yaml:"loginExpirationMinutes" json:"loginExpirationMinutes"`
		} `yaml:"jwt" json:"jwt"`
	} `yaml:"http" json:"http"`

	GRPC struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
		Port    int  `yaml:"port" json:"port"`
	} `yaml:"grpc" json:"grpc"`

	Security struct {
		// role names only, never the secrets
		RegistrationRoles []string `yaml:"registrationRoles" json:"registrationRoles"`
		PrivilegedRoles   []string `yaml:"privilegedRoles" json:"privilegedRoles"`
		DefaultSecret     bool     `yaml:"defaultSecret" json:"defaultSecret"`
	} `yaml:"security" json:"security"`
}

// Public builds the secret-free view of c
func (c *Config) Public() *PublicConfig {
	p := &PublicConfig{}

	p.General.DataDir = c.General.DataDir
	p.General.LogLevel = c.General.LogLevel
	p.General.Development = c.General.Development

	p.Storage.Engine = c.Storage.Engine
	p.Storage.Path = c.Storage.Path

	p.Portal.FactoriesDir = c.Portal.FactoriesDir
	p.Portal.JobsDir = c.Portal.JobsDir
	p.Portal.MaxUploadMB = c.Portal.MaxUploadMB
	p.Portal.WatchFactories = c.Portal.WatchFactories

	p.HTTP.Address = c.HTTP.Address
	p.HTTP.Port = c.HTTP.Port
	p.HTTP.TLS = c.HTTP.TLS
	p.HTTP.JWT.DefaultExpirationMinutes = c.HTTP.JWT.DefaultExpirationMinutes
	p.HTTP.JWT.LoginExpirationMinutes = c.HTTP.JWT.LoginExpirationMinutes

	p.GRPC.Enabled = c.GRPC.Enabled
	p.GRPC.Port = c.GRPC.Port

	p.Security.RegistrationRoles = make([]string, 0, len(c.Security.MasterPasswords))
	for role, secret := range c.Security.MasterPasswords {
		if secret != "" {
			p.Security.RegistrationRoles = append(p.Security.RegistrationRoles, role)
		}
	}
	sort.Strings(p.Security.RegistrationRoles)
	p.Security.PrivilegedRoles = append([]string(nil), c.Security.PrivilegedRoles...)
	p.Security.DefaultSecret = c.UsesDefaultSecret()

	return p
}
