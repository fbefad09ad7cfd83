package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/timeledger/internal/flagx"
	"github.com/dmitrijs2005/timeledger/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. It uses
// timex.Duration so lifetimes can be written as "15m" or "168h".
type FileConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	LockoutThreshold             int            `json:"lockout_threshold" yaml:"lockout_threshold"`
	LockoutDuration              timex.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	PasswordHashCost             int            `json:"password_hash_cost" yaml:"password_hash_cost"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	TrustProxy                   bool           `json:"trust_proxy" yaml:"trust_proxy"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	S3AccessKey                  string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey                  string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket                     string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	ExportURLValidity            timex.Duration `json:"export_url_validity" yaml:"export_url_validity"`
}

// parseFile overlays values from the file named by -c/-config. Keys absent
// from the file keep their current value. YAML is used for .yaml/.yml files,
// JSON otherwise. An unreadable or malformed file panics: it is a startup
// error the operator has to fix.
func parseFile(config *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := toFileConfig(config)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, fc)
	default:
		err = json.Unmarshal(raw, fc)
	}
	if err != nil {
		panic(err)
	}

	fromFileConfig(config, fc)
}

func toFileConfig(c *Config) *FileConfig {
	return &FileConfig{
		EndpointAddrHTTP:             c.EndpointAddrHTTP,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		AccessTokenValidityDuration:  timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		LockoutThreshold:             c.LockoutThreshold,
		LockoutDuration:              timex.Duration{Duration: c.LockoutDuration},
		PasswordHashCost:             c.PasswordHashCost,
		LogLevel:                     c.LogLevel,
		CORSAllowedOrigins:           c.CORSAllowedOrigins,
		TrustProxy:                   c.TrustProxy,
		ShutdownTimeout:              timex.Duration{Duration: c.ShutdownTimeout},
		S3AccessKey:                  c.S3AccessKey,
		S3SecretKey:                  c.S3SecretKey,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
		ExportURLValidity:            timex.Duration{Duration: c.ExportURLValidity},
	}
}

func fromFileConfig(c *Config, fc *FileConfig) {
	c.EndpointAddrHTTP = fc.EndpointAddrHTTP
	c.DatabaseDSN = fc.DatabaseDSN
	c.SecretKey = fc.SecretKey
	c.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	c.RefreshTokenValidityDuration = fc.RefreshTokenValidityDuration.Duration
	c.LockoutThreshold = fc.LockoutThreshold
	c.LockoutDuration = fc.LockoutDuration.Duration
	c.PasswordHashCost = fc.PasswordHashCost
	c.LogLevel = fc.LogLevel
	c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	c.TrustProxy = fc.TrustProxy
	c.ShutdownTimeout = fc.ShutdownTimeout.Duration
	c.S3AccessKey = fc.S3AccessKey
	c.S3SecretKey = fc.S3SecretKey
	c.S3Bucket = fc.S3Bucket
	c.S3Region = fc.S3Region
	c.S3BaseEndpoint = fc.S3BaseEndpoint
	c.ExportURLValidity = fc.ExportURLValidity.Duration
}
