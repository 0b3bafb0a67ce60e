// Package config handles packer configuration loading and management.
package config

import "time"

// Quality tiers for texture compression.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// Log output formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds all packer settings.
type Config struct {
	// PublicPath prefixes every emitted URL.
	PublicPath       string                 `yaml:"public_path"`
	Compress         CompressConfig         `yaml:"compress"`
	CompressTextures CompressTexturesConfig `yaml:"compress_textures"`
	Base64           Base64Config           `yaml:"base64"`
	GLB              GLBConfig              `yaml:"glb"`
	Process          ProcessConfig          `yaml:"process"`
	Publish          PublishConfig          `yaml:"publish"`
	Logging          LoggingConfig          `yaml:"logging"`
}

// CompressConfig controls the geometry quantization step.
type CompressConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Excludes []string `yaml:"excludes"`
	// Quantization overrides bits per vertex attribute, e.g. POSITION: 13.
	Quantization map[string]int `yaml:"quantization"`
	// Command is the quantizer command line. See geometry.CommandQuantizer.
	Command string `yaml:"command"`
}

// CompressTexturesConfig controls GPU texture compression variants.
type CompressTexturesConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Quality  string   `yaml:"quality"`
	Excludes []string `yaml:"excludes"`
	// Concurrency bounds simultaneous encoder invocations per variant.
	Concurrency int `yaml:"concurrency"`
	// Timeout bounds a single encoder invocation.
	Timeout time.Duration `yaml:"timeout"`
	// Command is the encoder command line. See texture.CommandEncoder.
	Command string `yaml:"command"`

	ASTC     TargetConfig   `yaml:"astc"`
	PVRTC    TargetConfig   `yaml:"pvrtc"`
	ETC      TargetConfig   `yaml:"etc"`
	S3TC     TargetConfig   `yaml:"s3tc"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// TargetConfig customizes one compression target. Empty fields fall back to
// the target's decision table.
type TargetConfig struct {
	Enabled           *bool    `yaml:"enabled,omitempty"`
	FormatOpaque      string   `yaml:"format_opaque,omitempty"`
	FormatTransparent string   `yaml:"format_transparent,omitempty"`
	Quality           string   `yaml:"quality,omitempty"`
	Excludes          []string `yaml:"excludes,omitempty"`
}

// IsEnabled reports whether the target is switched on.
func (t TargetConfig) IsEnabled() bool {
	return t.Enabled != nil && *t.Enabled
}

// FallbackConfig controls the uncompressed fallback variant.
type FallbackConfig struct {
	UseRGBA4444 bool     `yaml:"use_rgba4444"`
	UseRGB565   bool     `yaml:"use_rgb565"`
	Excludes    []string `yaml:"excludes"`
}

// Base64Config controls inlining small resources as data URIs.
type Base64Config struct {
	Enabled bool `yaml:"enabled"`
	// Threshold is the exclusive byte size limit for inlining.
	Threshold   int      `yaml:"threshold"`
	IncludeGLTF bool     `yaml:"include_gltf"`
	Excludes    []string `yaml:"excludes"`
}

// GLBConfig controls packing into a binary container.
type GLBConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Excludes []string `yaml:"excludes"`
}

// ProcessConfig configures custom resource processors.
type ProcessConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Processors []ProcessorConfig `yaml:"processors"`
}

// ProcessorConfig is one processor: resources matching Test are piped
// through Command.
type ProcessorConfig struct {
	Test    string `yaml:"test"`
	Command string `yaml:"command"`
}

// PublishConfig configures a custom publisher for separate resources.
type PublishConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Excludes []string `yaml:"excludes"`
	Command  string   `yaml:"command"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	LogFile string `yaml:"log_file"`
}

func enabled(v bool) *bool { return &v }

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		PublicPath: "/",
		Compress: CompressConfig{
			Enabled:      false,
			Quantization: map[string]int{},
		},
		CompressTextures: CompressTexturesConfig{
			Enabled:     false,
			Quality:     QualityMedium,
			Concurrency: 4,
			Timeout:     2 * time.Minute,
			ASTC:        TargetConfig{Enabled: enabled(true)},
			PVRTC:       TargetConfig{Enabled: enabled(true)},
			ETC:         TargetConfig{Enabled: enabled(false)},
			S3TC:        TargetConfig{Enabled: enabled(false)},
			Fallback: FallbackConfig{
				UseRGBA4444: true,
				UseRGB565:   true,
			},
		},
		Base64: Base64Config{
			Enabled:   false,
			Threshold: 1000,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  LogFormatConsole,
			LogFile: "",
		},
	}
}

// Target returns the options of a named compression target and whether the
// name is known.
func (c *CompressTexturesConfig) Target(name string) (TargetConfig, bool) {
	switch name {
	case "astc":
		return c.ASTC, true
	case "pvrtc":
		return c.PVRTC, true
	case "etc":
		return c.ETC, true
	case "s3tc":
		return c.S3TC, true
	}
	return TargetConfig{}, false
}
