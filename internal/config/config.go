package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/michaelbrown/cmdbox/internal/sandbox"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DockerConfig struct {
	Image   string `mapstructure:"image"`
	Memory  string `mapstructure:"memory"`
	Network bool   `mapstructure:"network"`
}

type SandboxConfig struct {
	Root           string       `mapstructure:"root"`
	Shell          string       `mapstructure:"shell"`
	MaxOutputBytes int          `mapstructure:"max_output_bytes"`
	Backend        string       `mapstructure:"backend"` // "shell" or "docker"
	Docker         DockerConfig `mapstructure:"docker"`
}

// ExecConfig holds timeouts in whole seconds.
type ExecConfig struct {
	DefaultTimeout int `mapstructure:"default_timeout"`
	MinTimeout     int `mapstructure:"min_timeout"`
	MaxTimeout     int `mapstructure:"max_timeout"`
}

type TutorialConfig struct {
	StepsFile string `mapstructure:"steps_file"`
}

type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	History bool   `mapstructure:"history"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Exec     ExecConfig     `mapstructure:"exec"`
	Tutorial TutorialConfig `mapstructure:"tutorial"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads cmdbox.yaml from path, or from . and $HOME/.cmdbox when path is
// empty. A missing file is not an error. CMDBOX_* environment variables and a
// .env file in the working directory override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cmdbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cmdbox")
	}

	v.SetEnvPrefix("CMDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Sandbox.Root = expandHome(cfg.Sandbox.Root)
	cfg.Storage.DBPath = expandHome(cfg.Storage.DBPath)
	cfg.Tutorial.StepsFile = expandHome(cfg.Tutorial.StepsFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("sandbox.root", filepath.Join(os.TempDir(), "cmdbox"))
	v.SetDefault("sandbox.shell", "/bin/sh")
	v.SetDefault("sandbox.max_output_bytes", 200000)
	v.SetDefault("sandbox.backend", "shell")
	v.SetDefault("sandbox.docker.image", "alpine:3.20")
	v.SetDefault("sandbox.docker.memory", "256m")
	v.SetDefault("sandbox.docker.network", false)
	v.SetDefault("exec.default_timeout", 5)
	v.SetDefault("exec.min_timeout", 1)
	v.SetDefault("exec.max_timeout", 60)
	v.SetDefault("tutorial.steps_file", "")
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".cmdbox", "cmdbox.db"))
	v.SetDefault("storage.history", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks values that would make the sandbox unusable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sandbox.Root) == "" {
		return errors.New("sandbox.root must not be empty")
	}
	if c.Sandbox.Backend != "shell" && c.Sandbox.Backend != "docker" {
		return fmt.Errorf("sandbox.backend must be shell or docker, got %q", c.Sandbox.Backend)
	}
	e := c.Exec
	if e.MinTimeout < 1 {
		return fmt.Errorf("exec.min_timeout must be at least 1, got %d", e.MinTimeout)
	}
	if e.MaxTimeout < e.MinTimeout {
		return fmt.Errorf("exec.max_timeout (%d) is below exec.min_timeout (%d)", e.MaxTimeout, e.MinTimeout)
	}
	if e.DefaultTimeout < e.MinTimeout || e.DefaultTimeout > e.MaxTimeout {
		return fmt.Errorf("exec.default_timeout (%d) outside [%d, %d]", e.DefaultTimeout, e.MinTimeout, e.MaxTimeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Policy converts the exec and sandbox settings into runner limits.
func (c *Config) Policy() sandbox.Policy {
	return sandbox.Policy{
		Shell:          c.Sandbox.Shell,
		MaxOutputBytes: c.Sandbox.MaxOutputBytes,
		DefaultTimeout: time.Duration(c.Exec.DefaultTimeout) * time.Second,
		MinTimeout:     time.Duration(c.Exec.MinTimeout) * time.Second,
		MaxTimeout:     time.Duration(c.Exec.MaxTimeout) * time.Second,
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
