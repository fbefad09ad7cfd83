package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// ConfigKind names a tenant configuration document.
type ConfigKind string

const (
	ConfigKindCurrency ConfigKind = "currency"
	ConfigKindRate     ConfigKind = "rate"
)

// Current schema versions per kind.
const (
	CurrencyConfigVersion = 1
	RateConfigVersion     = 1
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// ConfigValue is implemented by every typed configuration document.
// Repositories call Validate before persisting and after loading.
type ConfigValue interface {
	Kind() ConfigKind
	SchemaVersion() int
	Validate() error
}

// CurrencyConfig controls how amounts are displayed for a tenant.
type CurrencyConfig struct {
	Version       int    `json:"version"`
	Code          string `json:"code"`
	Symbol        string `json:"symbol"`
	DecimalPlaces int    `json:"decimal_places"`
}

// DefaultCurrencyConfig is provisioned for each new tenant.
func DefaultCurrencyConfig() *CurrencyConfig {
	return &CurrencyConfig{Version: CurrencyConfigVersion, Code: "EUR", Symbol: "€", DecimalPlaces: 2}
}

func (c *CurrencyConfig) Kind() ConfigKind   { return ConfigKindCurrency }
func (c *CurrencyConfig) SchemaVersion() int { return c.Version }

func (c *CurrencyConfig) Validate() error {
	if c.Version != CurrencyConfigVersion {
		return fmt.Errorf("unsupported currency config version %d", c.Version)
	}
	if !currencyCode.MatchString(c.Code) {
		return fmt.Errorf("currency code %q is not an ISO 4217 code", c.Code)
	}
	if c.Symbol == "" {
		return fmt.Errorf("currency symbol is empty")
	}
	if c.DecimalPlaces < 0 || c.DecimalPlaces > 4 {
		return fmt.Errorf("decimal places %d out of range", c.DecimalPlaces)
	}
	return nil
}

// RateConfig holds the tenant's default billing rate.
type RateConfig struct {
	Version         int    `json:"version"`
	HourlyRateCents int64  `json:"hourly_rate_cents"`
	Currency        string `json:"currency"`
	RoundToMinutes  int    `json:"round_to_minutes"`
}

func (c *RateConfig) Kind() ConfigKind   { return ConfigKindRate }
func (c *RateConfig) SchemaVersion() int { return c.Version }

func (c *RateConfig) Validate() error {
	if c.Version != RateConfigVersion {
		return fmt.Errorf("unsupported rate config version %d", c.Version)
	}
	if c.HourlyRateCents < 0 {
		return fmt.Errorf("hourly rate is negative")
	}
	if !currencyCode.MatchString(c.Currency) {
		return fmt.Errorf("currency code %q is not an ISO 4217 code", c.Currency)
	}
	if c.RoundToMinutes < 0 || c.RoundToMinutes > 60 {
		return fmt.Errorf("rounding of %d minutes out of range", c.RoundToMinutes)
	}
	return nil
}

// NewConfigValue returns an empty document for kind, or an error for kinds
// the server does not know.
func NewConfigValue(kind ConfigKind) (ConfigValue, error) {
	switch kind {
	case ConfigKindCurrency:
		return &CurrencyConfig{}, nil
	case ConfigKindRate:
		return &RateConfig{}, nil
	}
	return nil, fmt.Errorf("unknown config kind %q", kind)
}

// DecodeConfigValue parses and validates a stored or submitted document.
func DecodeConfigValue(kind ConfigKind, raw []byte) (ConfigValue, error) {
	v, err := NewConfigValue(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// StoredConfig is a persisted tenant configuration document.
type StoredConfig struct {
	AccountID string
	Value     ConfigValue
	UpdatedAt time.Time
}
