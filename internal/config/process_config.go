package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRuntime      = "java"
	DefaultArtifact     = "server.jar"
	DefaultMinMemoryMB  = 1024
	DefaultMaxMemoryMB  = 2048
	DefaultStopCommand  = "stop"
	DefaultGracePeriod  = 30 * time.Second
	DefaultEncoding     = "utf-8"
	DefaultPollInterval = 500 * time.Millisecond
)

// ProcessConfig describes how the game server child is launched and stopped.
type ProcessConfig struct {
	Runtime     string            `yaml:"runtime"`
	Artifact    string            `yaml:"artifact"`
	MinMemoryMB int               `yaml:"min_memory_mb"`
	MaxMemoryMB int               `yaml:"max_memory_mb"`
	JVMArgs     []string          `yaml:"jvm_args,omitempty"`
	GUI         bool              `yaml:"gui"`
	Directory   string            `yaml:"directory,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	StopCommand string            `yaml:"stop_command"`
	GracePeriod time.Duration     `yaml:"grace_period"`
}

// ConsoleConfig controls how child output is decoded and queued.
type ConsoleConfig struct {
	Encoding     string        `yaml:"encoding"`
	MaxLines     int           `yaml:"max_lines"`
	ClearOnStart bool          `yaml:"clear_on_start"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SupervisorConfig struct {
	Process ProcessConfig `yaml:"process"`
	Console ConsoleConfig `yaml:"console"`
}

// DefaultSupervisorConfig returns the configuration used when no file is present.
func DefaultSupervisorConfig() *SupervisorConfig {
	cfg := &SupervisorConfig{}
	cfg.applyDefaults()
	return cfg
}

func LoadProcessConfig(path string) (*SupervisorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg SupervisorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *SupervisorConfig) applyDefaults() {
	p := &c.Process
	if p.Runtime == "" {
		p.Runtime = DefaultRuntime
	}
	if p.Artifact == "" {
		p.Artifact = DefaultArtifact
	}
	if p.MinMemoryMB == 0 {
		p.MinMemoryMB = DefaultMinMemoryMB
	}
	if p.MaxMemoryMB == 0 {
		p.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if p.StopCommand == "" {
		p.StopCommand = DefaultStopCommand
	}
	if p.GracePeriod == 0 {
		p.GracePeriod = DefaultGracePeriod
	}

	if c.Console.Encoding == "" {
		c.Console.Encoding = DefaultEncoding
	}
	if c.Console.PollInterval == 0 {
		c.Console.PollInterval = DefaultPollInterval
	}
}

func (c *SupervisorConfig) Validate() error {
	p := c.Process
	var errs []error
	if p.MinMemoryMB < 0 || p.MaxMemoryMB < 0 {
		errs = append(errs, errors.New("memory sizes must not be negative"))
	}
	if p.MinMemoryMB > p.MaxMemoryMB {
		errs = append(errs, fmt.Errorf("min_memory_mb (%d) exceeds max_memory_mb (%d)", p.MinMemoryMB, p.MaxMemoryMB))
	}
	if p.GracePeriod < 0 {
		errs = append(errs, errors.New("grace_period must not be negative"))
	}
	if c.Console.MaxLines < 0 {
		errs = append(errs, errors.New("console.max_lines must not be negative"))
	}
	if c.Console.PollInterval < 0 {
		errs = append(errs, errors.New("console.poll_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Argv is the full command line, runtime first.
func (p ProcessConfig) Argv() []string {
	argv := []string{
		p.Runtime,
		fmt.Sprintf("-Xms%dM", p.MinMemoryMB),
		fmt.Sprintf("-Xmx%dM", p.MaxMemoryMB),
	}
	argv = append(argv, p.JVMArgs...)
	argv = append(argv, "-jar", p.Artifact)
	if !p.GUI {
		argv = append(argv, "nogui")
	}
	return argv
}

// ArtifactPath resolves the artifact against the working directory the child runs in.
func (p ProcessConfig) ArtifactPath() string {
	if filepath.IsAbs(p.Artifact) || p.Directory == "" {
		return p.Artifact
	}
	return filepath.Join(p.Directory, p.Artifact)
}
