// Package config loads the player configuration from defaults, an optional
// config.yaml, an optional .env file, PRIMAL_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PRIMAL_WEB_ADDR.
const EnvPrefix = "PRIMAL"

// Audio backends.
const (
	BackendMPV  = "mpv"
	BackendMock = "mock"
)

// Config is the full player configuration.
type Config struct {
	App struct {
		ID   string `mapstructure:"id"`
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Audio struct {
		Backend      string        `mapstructure:"backend"`
		MPVPath      string        `mapstructure:"mpv_path"`
		SocketPath   string        `mapstructure:"socket_path"`
		StartTimeout time.Duration `mapstructure:"start_timeout"`
	} `mapstructure:"audio"`
	Metadata struct {
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		RotationDir    string        `mapstructure:"rotation_dir"`
	} `mapstructure:"metadata"`
	Web struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"web"`
	UI struct {
		Headless bool `mapstructure:"headless"`
	} `mapstructure:"ui"`
}

// Options controls where configuration is read from.
type Options struct {
	// ConfigFile is an explicit config file. When empty, config.yaml is
	// looked up in SearchPaths.
	ConfigFile string

	// SearchPaths are the directories searched for config.yaml
	SearchPaths []string

	// EnvFile is the dotenv file loaded before reading the environment
	EnvFile string

	// Flags are parsed command-line flags registered with RegisterFlags (optional)
	Flags *pflag.FlagSet
}

// Flag names registered by RegisterFlags.
const (
	FlagConfig    = "config"
	FlagHeadless  = "headless"
	FlagWeb       = "web"
	FlagWebAddr   = "web-addr"
	FlagBackend   = "audio-backend"
	FlagMockAudio = "mock-audio"
	FlagLogLevel  = "log-level"
)

// flagKeys maps flags onto the settings they override.
var flagKeys = map[string]string{
	FlagHeadless: "ui.headless",
	FlagWeb:      "web.enabled",
	FlagWebAddr:  "web.addr",
	FlagBackend:  "audio.backend",
	FlagLogLevel: "log.level",
}

// RegisterFlags adds the configuration flags to fs. Flags only override a
// setting when they are given on the command line.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagConfig, "c", "", "path to a config file (yaml, toml or json)")
	fs.Bool(FlagHeadless, false, "run without a window")
	fs.Bool(FlagWeb, false, "serve the HTTP and websocket surface")
	fs.String(FlagWebAddr, "", "listen address of the web surface")
	fs.String(FlagBackend, "", "audio backend: mpv or mock")
	fs.Bool(FlagMockAudio, false, "shorthand for --audio-backend=mock")
	fs.String(FlagLogLevel, "", "log level: debug, info, warn or error")
}

// DefaultOptions looks for config.yaml and .env in the working directory.
func DefaultOptions() Options {
	return Options{
		SearchPaths: []string{"."},
		EnvFile:     ".env",
	}
}

var keys = []string{
	"app.id", "app.name",
	"log.level", "log.format",
	"audio.backend", "audio.mpv_path", "audio.socket_path", "audio.start_timeout",
	"metadata.poll_interval", "metadata.request_timeout", "metadata.rotation_dir",
	"web.enabled", "web.addr",
	"ui.headless",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.id", "com.primalradio.player")
	v.SetDefault("app.name", "Primal Radio")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("audio.backend", BackendMPV)
	v.SetDefault("audio.mpv_path", "mpv")
	v.SetDefault("audio.socket_path", "")
	v.SetDefault("audio.start_timeout", 10*time.Second)
	v.SetDefault("metadata.poll_interval", 5*time.Second)
	v.SetDefault("metadata.request_timeout", 8*time.Second)
	v.SetDefault("metadata.rotation_dir", "")
	v.SetDefault("web.enabled", false)
	v.SetDefault("web.addr", "127.0.0.1:8090")
	v.SetDefault("ui.headless", false)
}

// Load reads the configuration. A missing config file or .env is not an error;
// a malformed one is.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		// Existing environment variables win over the file
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := bindFlags(v, opts.Flags); err != nil {
		return nil, err
	}
	if opts.Flags != nil {
		if f := opts.Flags.Lookup(FlagConfig); f != nil && f.Changed {
			opts.ConfigFile = f.Value.String()
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range opts.SearchPaths {
			v.AddConfigPath(p)
		}
	}

	if opts.ConfigFile != "" || len(opts.SearchPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindFlags wires the registered flags into v. Unregistered flags are skipped.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	if mock, err := fs.GetBool(FlagMockAudio); err == nil && mock {
		v.Set("audio.backend", BackendMock)
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Audio.Backend {
	case BackendMPV, BackendMock:
	default:
		return fmt.Errorf("invalid audio.backend %q: must be %q or %q", c.Audio.Backend, BackendMPV, BackendMock)
	}
	if c.Metadata.PollInterval <= 0 {
		return fmt.Errorf("invalid metadata.poll_interval %s: must be positive", c.Metadata.PollInterval)
	}
	if c.Metadata.RequestTimeout <= 0 {
		return fmt.Errorf("invalid metadata.request_timeout %s: must be positive", c.Metadata.RequestTimeout)
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		return errors.New("web.addr is required when web.enabled is set")
	}
	return nil
}
