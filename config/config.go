// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config loads the settings of the nektus tools from a TOML file,
// with NEKTUS_* environment variables taking precedence over file values.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type (
	// Config is the full configuration.
	Config struct {
		Relay   Relay   `toml:"relay"`
		BLE     BLE     `toml:"ble"`
		Motion  Motion  `toml:"motion"`
		Store   Store   `toml:"store"`
		Notify  Notify  `toml:"notify"`
		Logging Logging `toml:"logging"`
	}

	// Relay configures the server match channel and the reference relay.
	Relay struct {
		BaseURL            string   `toml:"base_url"`
		AuthToken          string   `toml:"auth_token"`
		PollInterval       Duration `toml:"poll_interval"`
		BaseTimeout        Duration `toml:"base_timeout"`
		PendingAuthTimeout Duration `toml:"pending_auth_timeout"`
		Listen             string   `toml:"listen"`
		MatchWindow        Duration `toml:"match_window"`
	}

	// BLE configures the radio match channel.
	BLE struct {
		ReadyTimeout    Duration `toml:"ready_timeout"`
		ExchangeTimeout Duration `toml:"exchange_timeout"`
		Debounce        Duration `toml:"debounce"`
	}

	// Motion configures the bump detector.
	Motion struct {
		SampleRateHz float64 `toml:"sample_rate_hz"`
	}

	// Store selects the exchange state store.
	Store struct {
		Type string   `toml:"type"`
		Path string   `toml:"path"`
		TTL  Duration `toml:"ttl"`
	}

	// Notify configures the MQTT match event sink. An empty broker disables
	// it.
	Notify struct {
		Broker      string `toml:"broker"`
		TopicPrefix string `toml:"topic_prefix"`
		ClientID    string `toml:"client_id"`
		Username    string `toml:"username"`
		Password    string `toml:"password"`
	}

	// Logging configures the log handler.
	Logging struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	}
)

// Store types.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NEKTUS_"

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Relay: Relay{
			BaseURL:            "http://localhost:8080/api/",
			PollInterval:       Duration(time.Second),
			BaseTimeout:        Duration(20 * time.Second),
			PendingAuthTimeout: Duration(60 * time.Second),
			Listen:             "localhost:8080",
			MatchWindow:        Duration(time.Second),
		},
		BLE: BLE{
			ReadyTimeout:    Duration(10 * time.Second),
			ExchangeTimeout: Duration(30 * time.Second),
			Debounce:        Duration(time.Second),
		},
		Motion: Motion{SampleRateHz: 60},
		Store: Store{
			Type: StoreMemory,
			TTL:  Duration(5 * time.Minute),
		},
		Notify: Notify{
			TopicPrefix: "nektus/users",
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides, and validates the result. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, &InvalidError{
				Field:   "file",
				Value:   path,
				Message: "could not decode",
				Err:     err,
			}
		default:
			if keys := md.Undecoded(); len(keys) > 0 {
				return nil, &InvalidError{
					Field:   keys[0].String(),
					Value:   path,
					Message: "unknown key",
				}
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides values from NEKTUS_<SECTION>_<KEY> variables found by
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, v := range c.vars() {
		val, ok := lookup(v.env())
		if !ok {
			continue
		}
		if err := v.set(val); err != nil {
			return &InvalidError{Field: v.env(), Value: val, Err: err}
		}
	}
	return nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if u, err := url.Parse(c.Relay.BaseURL); err != nil ||
		(u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &InvalidError{
			Field:   "relay.base_url",
			Value:   c.Relay.BaseURL,
			Message: "must be an absolute http or https URL",
		}
	}

	positive := []struct {
		field string
		value Duration
	}{
		{"relay.poll_interval", c.Relay.PollInterval},
		{"relay.base_timeout", c.Relay.BaseTimeout},
		{"relay.pending_auth_timeout", c.Relay.PendingAuthTimeout},
		{"relay.match_window", c.Relay.MatchWindow},
		{"ble.ready_timeout", c.BLE.ReadyTimeout},
		{"ble.exchange_timeout", c.BLE.ExchangeTimeout},
		{"store.ttl", c.Store.TTL},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &InvalidError{
				Field:   p.field,
				Value:   p.value,
				Message: "must be positive",
			}
		}
	}
	if c.BLE.Debounce < 0 {
		return &InvalidError{
			Field:   "ble.debounce",
			Value:   c.BLE.Debounce,
			Message: "must not be negative",
		}
	}

	if c.Motion.SampleRateHz <= 0 || c.Motion.SampleRateHz > 1000 {
		return &InvalidError{
			Field:   "motion.sample_rate_hz",
			Value:   c.Motion.SampleRateHz,
			Message: "must be in (0, 1000]",
		}
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return &InvalidError{
				Field:   "store.path",
				Value:   c.Store.Path,
				Message: "required for the sqlite store",
			}
		}
	default:
		return &InvalidError{
			Field:   "store.type",
			Value:   c.Store.Type,
			Message: "must be memory or sqlite",
		}
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, &InvalidError{
			Field: "logging.level",
			Value: c.Logging.Level,
			Err:   err,
		}
	}
	return level, nil
}

// SampleInterval is the motion sensor update interval for the configured
// rate.
func (m Motion) SampleInterval() time.Duration {
	return time.Duration(float64(time.Second) / m.SampleRateHz)
}

type envVar struct {
	section, key string
	set          func(string) error
}

func (v envVar) env() string {
	return EnvPrefix + strings.ToUpper(v.section+"_"+v.key)
}

func (c *Config) vars() []envVar {
	return []envVar{
		{"relay", "base_url", setString(&c.Relay.BaseURL)},
		{"relay", "auth_token", setString(&c.Relay.AuthToken)},
		{"relay", "poll_interval", setDuration(&c.Relay.PollInterval)},
		{"relay", "base_timeout", setDuration(&c.Relay.BaseTimeout)},
		{"relay", "pending_auth_timeout", setDuration(&c.Relay.PendingAuthTimeout)},
		{"relay", "listen", setString(&c.Relay.Listen)},
		{"relay", "match_window", setDuration(&c.Relay.MatchWindow)},
		{"ble", "ready_timeout", setDuration(&c.BLE.ReadyTimeout)},
		{"ble", "exchange_timeout", setDuration(&c.BLE.ExchangeTimeout)},
		{"ble", "debounce", setDuration(&c.BLE.Debounce)},
		{"motion", "sample_rate_hz", setFloat(&c.Motion.SampleRateHz)},
		{"store", "type", setString(&c.Store.Type)},
		{"store", "path", setString(&c.Store.Path)},
		{"store", "ttl", setDuration(&c.Store.TTL)},
		{"notify", "broker", setString(&c.Notify.Broker)},
		{"notify", "topic_prefix", setString(&c.Notify.TopicPrefix)},
		{"notify", "client_id", setString(&c.Notify.ClientID)},
		{"notify", "username", setString(&c.Notify.Username)},
		{"notify", "password", setString(&c.Notify.Password)},
		{"logging", "level", setString(&c.Logging.Level)},
		{"logging", "no_color", setBool(&c.Logging.NoColor)},
	}
}

func setString(dst *string) func(string) error {
	return func(val string) error {
		*dst = val
		return nil
	}
}

func setDuration(dst *Duration) func(string) error {
	return func(val string) error {
		return dst.UnmarshalText([]byte(val))
	}
}

func setFloat(dst *float64) func(string) error {
	return func(val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}
