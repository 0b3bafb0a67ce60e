package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// FileName is the project-local config file name.
const FileName = "scenepack.yaml"

// Load loads configuration with priority: defaults < file < flags.
// f may be nil.
func Load(f *Flags) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ""
	if f != nil {
		configPath = f.ConfigPath
	}
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := LoadFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	if f != nil {
		f.apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		filepath.Join(".", FileName),
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "scenepack")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "scenepack")
		}
		return filepath.Join(home, "AppData", "Roaming", "scenepack")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "scenepack")
		}
		return filepath.Join(home, ".config", "scenepack")
	}
}

// LoadFile loads config from a YAML file, merging with existing values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks option values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.CompressTextures.Quality {
	case QualityHigh, QualityMedium, QualityLow:
	case "":
		c.CompressTextures.Quality = QualityMedium
	default:
		return fmt.Errorf("invalid compress_textures.quality %q (want high, medium or low)", c.CompressTextures.Quality)
	}
	if c.CompressTextures.Concurrency < 1 {
		c.CompressTextures.Concurrency = 1
	}
	switch c.Logging.Format {
	case LogFormatConsole, LogFormatJSON:
	case "":
		c.Logging.Format = LogFormatConsole
	default:
		return fmt.Errorf("invalid logging.format %q (want console or json)", c.Logging.Format)
	}
	if c.Base64.Threshold < 0 {
		return fmt.Errorf("invalid base64.threshold %d", c.Base64.Threshold)
	}
	if c.Publish.Enabled && c.Publish.Command == "" {
		return fmt.Errorf("publish.enabled requires publish.command")
	}
	for i, p := range c.Process.Processors {
		if p.Command == "" {
			return fmt.Errorf("process.processors[%d] has no command", i)
		}
	}
	return nil
}
