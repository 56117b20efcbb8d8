// Package config loads client settings from a file and IGNITE_* environment variables and turns them
// into client options.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	ignite "github.com/source-c/go-gridgain-thin"
	"github.com/source-c/go-gridgain-thin/logger"
)

// Config holds all settings of a client.
type Config struct {
	Client ClientConfig
	TLS    TLSConfig
	Log    LogConfig
}

type ClientConfig struct {
	Addresses               []string
	ShuffleAddresses        bool
	Username                string
	Password                string
	RequestTimeout          time.Duration
	IdleTimeout             time.Duration
	RetryLimit              int
	PartitionAwareness      bool
	ProtocolVersion         string
	CompactFooter           bool
	AutoBinaryConfiguration bool
	Attributes              map[string]string
}

type TLSConfig struct {
	Enabled            bool
	CertFile           string // PEM client certificate, optional
	KeyFile            string // PEM client key, required with CertFile
	CAFile             string // PEM bundle of trusted roots, system roots when empty
	ServerName         string
	InsecureSkipVerify bool
}

type LogConfig struct {
	Level  string // trace, debug, info, warn, error or off
	Format string // json or console
}

// Load reads the configuration file at path, an empty path reads environment variables and defaults
// only. Environment variables take precedence, client.request_timeout is read from
// IGNITE_CLIENT_REQUEST_TIMEOUT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IGNITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Client: ClientConfig{
			Addresses:               addresses(v.GetStringSlice("client.addresses")),
			ShuffleAddresses:        v.GetBool("client.shuffle_addresses"),
			Username:                v.GetString("client.username"),
			Password:                v.GetString("client.password"),
			RequestTimeout:          v.GetDuration("client.request_timeout"),
			IdleTimeout:             v.GetDuration("client.idle_timeout"),
			RetryLimit:              v.GetInt("client.retry_limit"),
			PartitionAwareness:      v.GetBool("client.partition_awareness"),
			ProtocolVersion:         v.GetString("client.protocol_version"),
			CompactFooter:           v.GetBool("client.compact_footer"),
			AutoBinaryConfiguration: v.GetBool("client.auto_binary_configuration"),
			Attributes:              v.GetStringMapString("client.attributes"),
		},
		TLS: TLSConfig{
			Enabled:            v.GetBool("tls.enabled"),
			CertFile:           v.GetString("tls.cert_file"),
			KeyFile:            v.GetString("tls.key_file"),
			CAFile:             v.GetString("tls.ca_file"),
			ServerName:         v.GetString("tls.server_name"),
			InsecureSkipVerify: v.GetBool("tls.insecure_skip_verify"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.addresses", []string{"127.0.0.1:10800"})
	v.SetDefault("client.shuffle_addresses", true)
	v.SetDefault("client.request_timeout", "0s")
	v.SetDefault("client.idle_timeout", "0s")
	v.SetDefault("client.retry_limit", 0)
	v.SetDefault("client.partition_awareness", true)
	v.SetDefault("client.protocol_version", "")
	v.SetDefault("client.compact_footer", true)
	v.SetDefault("client.auto_binary_configuration", true)

	v.SetDefault("tls.enabled", false)

	v.SetDefault("log.level", "off")
	v.SetDefault("log.format", "json")
}

// addresses splits comma separated entries, IGNITE_CLIENT_ADDRESSES arrives as a single string.
func addresses(raw []string) []string {
	var ret []string
	for _, entry := range raw {
		for _, addr := range strings.Split(entry, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				ret = append(ret, addr)
			}
		}
	}
	return ret
}

// Validate checks settings that would otherwise fail only when the client starts.
func (cfg *Config) Validate() error {
	if len(cfg.Client.Addresses) == 0 {
		return errors.New("client.addresses is empty")
	}
	if cfg.Client.RetryLimit < 0 {
		return fmt.Errorf("client.retry_limit must not be negative: %d", cfg.Client.RetryLimit)
	}
	if cfg.Client.ProtocolVersion != "" {
		if _, ok := ignite.ParseVersion(cfg.Client.ProtocolVersion); !ok {
			return fmt.Errorf("invalid client.protocol_version %q", cfg.Client.ProtocolVersion)
		}
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log.format %q", cfg.Log.Format)
	}
	if cfg.TLS.Enabled && (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}

// ClientOptions converts the configuration into options of [ignite.Start]. Logs go to out, stderr
// when out is nil.
func (cfg *Config) ClientOptions(out io.Writer) ([]ignite.ClientConfigurationOption, error) {
	opts := []ignite.ClientConfigurationOption{
		ignite.WithAddresses(cfg.Client.Addresses...),
		ignite.WithShuffleAddresses(cfg.Client.ShuffleAddresses),
		ignite.WithPartitionAwareness(cfg.Client.PartitionAwareness),
		ignite.WithBinaryCompactFooter(cfg.Client.CompactFooter),
	}
	if cfg.Client.Username != "" {
		opts = append(opts, ignite.WithCredentials(cfg.Client.Username, cfg.Client.Password))
	}
	if cfg.Client.RequestTimeout > 0 {
		opts = append(opts, ignite.WithRequestTimeout(cfg.Client.RequestTimeout))
	}
	if cfg.Client.IdleTimeout > 0 {
		opts = append(opts, ignite.WithIdleTimeout(cfg.Client.IdleTimeout))
	}
	if cfg.Client.RetryLimit > 0 {
		opts = append(opts, ignite.WithRetryLimit(cfg.Client.RetryLimit))
	}
	if cfg.Client.ProtocolVersion != "" {
		ver, _ := ignite.ParseVersion(cfg.Client.ProtocolVersion)
		opts = append(opts, ignite.WithProtocolContext(ver, ignite.UserAttributesFeature, ignite.BinaryConfigurationFeature))
	}
	if !cfg.Client.AutoBinaryConfiguration {
		opts = append(opts, ignite.WithDisabledAutoBinaryConfiguration())
	}
	for key, value := range cfg.Client.Attributes {
		opts = append(opts, ignite.WithClientAttribute(key, value))
	}
	if cfg.TLS.Enabled {
		opts = append(opts, ignite.WithTls(cfg.TLS.Supplier()))
	}
	sink, err := cfg.Log.Sink(out)
	if err != nil {
		return nil, err
	}
	return append(opts, ignite.WithLoggingSink(sink)), nil
}

// Sink builds a zerolog backed logging sink.
func (cfg LogConfig) Sink(out io.Writer) (logger.Sink, error) {
	lvl, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}
	if strings.ToLower(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return logger.NewZerologSink(zerolog.New(out).With().Timestamp().Logger(), lvl)
}

// Supplier returns a TLS configuration supplier that loads the certificate files on every call.
func (cfg TLSConfig) Supplier() func() (*tls.Config, error) {
	return func() (*tls.Config, error) {
		ret := &tls.Config{
			ServerName:         cfg.ServerName,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
		if cfg.CAFile != "" {
			pem, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read tls.ca_file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
			}
			ret.RootCAs = pool
		}
		if cfg.CertFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			ret.Certificates = []tls.Certificate{cert}
		}
		return ret, nil
	}
}
