// Package config resolves the CLI configuration from defaults, an optional
// config file, SENDFILE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/1ureka/sendfile/internal/session"
	"github.com/1ureka/sendfile/internal/streamer"
	"github.com/1ureka/sendfile/internal/transport"
)

// Role represents the side the process plays in a session.
type Role string

const (
	RoleReceiver Role = "receiver"
	RoleSender   Role = "sender"
)

// EnvPrefix namespaces environment overrides, e.g. SENDFILE_TLS_CA.
const EnvPrefix = "SENDFILE"

type TLS struct {
	Cert       string `mapstructure:"cert"`
	Key        string `mapstructure:"key"`
	CA         string `mapstructure:"ca"`
	ServerName string `mapstructure:"server_name"`
}

// Policy bounds what a receiver accepts. Zero values mean unlimited.
type Policy struct {
	MaxFiles int    `mapstructure:"max_files"`
	MaxBytes uint64 `mapstructure:"max_bytes"`
	Confirm  bool   `mapstructure:"confirm"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Config stores every parameter of a run.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Transport   string        `mapstructure:"transport"`
	OutputDir   string        `mapstructure:"output_dir"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	TLS         TLS           `mapstructure:"tls"`
	Policy      Policy        `mapstructure:"policy"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Redis       Redis         `mapstructure:"redis"`
	SignalURL   string        `mapstructure:"signal_url"` // p2p sender: receiver's signaling URL
	Debug       bool          `mapstructure:"debug"`
}

var defaults = map[string]any{
	"addr":             "127.0.0.1:7878",
	"transport":        string(transport.KindTLS),
	"output_dir":       "out",
	"chunk_size":       session.DefaultChunkSize,
	"idle_timeout":     time.Duration(0),
	"tls.cert":         "",
	"tls.key":          "",
	"tls.ca":           "",
	"tls.server_name":  "localhost",
	"policy.max_files": 0,
	"policy.max_bytes": uint64(0),
	"policy.confirm":   false,
	"metrics_addr":     "",
	"redis.addr":       "",
	"redis.password":   "",
	"redis.db":         0,
	"signal_url":       "",
	"debug":            false,
}

// New returns a viper instance with every key defaulted and environment
// overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each flag whose name matches a key, with dashes standing
// for underscores and dots (e.g. --output-dir, --tls-ca).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKey(f.Name); ok {
			errs = append(errs, v.BindPFlag(key, f))
		}
	})
	return errors.Join(errs...)
}

func flagKey(name string) (string, bool) {
	for key := range defaults {
		if strings.NewReplacer(".", "-", "_", "-").Replace(key) == name {
			return key, true
		}
	}
	return "", false
}

// Load reads file when given and decodes the merged configuration.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Kind returns the parsed transport kind.
func (c Config) Kind() (transport.Kind, error) {
	return transport.ParseKind(c.Transport)
}

// Validate checks the settings role depends on.
func (c Config) Validate(role Role) error {
	kind, err := c.Kind()
	if err != nil {
		return err
	}
	if c.ChunkSize < 1 || c.ChunkSize > streamer.MaxPayloadSize {
		return fmt.Errorf("chunk_size %d out of range 1..%d", c.ChunkSize, streamer.MaxPayloadSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return errors.New("tls.cert and tls.key must be given together")
	}

	switch role {
	case RoleReceiver:
		if c.Addr == "" {
			return errors.New("addr is required")
		}
		if c.OutputDir == "" {
			return errors.New("output_dir is required")
		}
		if c.Policy.MaxFiles < 0 {
			return fmt.Errorf("policy.max_files must not be negative")
		}
	case RoleSender:
		if kind == transport.KindP2P {
			if c.SignalURL == "" {
				return errors.New("signal_url is required for the p2p transport")
			}
		} else if c.Addr == "" {
			return errors.New("addr is required")
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

// ReceiverPolicy builds the session policy from the configured limits.
// Operator confirmation is layered on by the caller.
func (c Config) ReceiverPolicy() session.Policy {
	var policies []session.Policy
	if c.Policy.MaxFiles > 0 {
		policies = append(policies, session.MaxFiles(c.Policy.MaxFiles))
	}
	if c.Policy.MaxBytes > 0 {
		policies = append(policies, session.MaxTotalBytes(c.Policy.MaxBytes))
	}
	return session.All(policies...)
}
