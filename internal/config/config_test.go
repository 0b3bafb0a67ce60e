package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.PublicPath != "/" {
		t.Errorf("expected public path '/', got %s", cfg.PublicPath)
	}

	// Texture compression defaults
	tc := cfg.CompressTextures
	if tc.Enabled {
		t.Error("expected texture compression to be disabled by default")
	}
	if tc.Quality != QualityMedium {
		t.Errorf("expected quality medium, got %s", tc.Quality)
	}
	if !tc.ASTC.IsEnabled() || !tc.PVRTC.IsEnabled() {
		t.Error("expected astc and pvrtc to be enabled by default")
	}
	if tc.ETC.IsEnabled() || tc.S3TC.IsEnabled() {
		t.Error("expected etc and s3tc to be disabled by default")
	}
	if !tc.Fallback.UseRGBA4444 || !tc.Fallback.UseRGB565 {
		t.Error("expected fallback to use RGBA4444 and RGB565")
	}
	if tc.Timeout != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", tc.Timeout)
	}

	// Base64 defaults
	if cfg.Base64.Enabled {
		t.Error("expected base64 to be disabled by default")
	}
	if cfg.Base64.Threshold != 1000 {
		t.Errorf("expected threshold 1000, got %d", cfg.Base64.Threshold)
	}

	if cfg.GLB.Enabled {
		t.Error("expected glb to be disabled by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "scenepack.yaml")

	yamlContent := `
public_path: "https://cdn.example.com/"

compress:
  enabled: true
  quantization:
    POSITION: 14

compress_textures:
  enabled: true
  quality: low
  excludes: ["ui/**"]
  timeout: 30s
  s3tc:
    enabled: true
    format_transparent: DXT5
  fallback:
    use_rgb565: false

base64:
  enabled: true
  threshold: 4096

glb:
  enabled: true

logging:
  level: "debug"
  log_file: "pack.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := LoadFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.PublicPath != "https://cdn.example.com/" {
		t.Errorf("unexpected public path %s", cfg.PublicPath)
	}
	if !cfg.Compress.Enabled || cfg.Compress.Quantization["POSITION"] != 14 {
		t.Errorf("unexpected compress config %+v", cfg.Compress)
	}

	tc := cfg.CompressTextures
	if !tc.Enabled || tc.Quality != QualityLow {
		t.Errorf("unexpected texture config enabled=%v quality=%s", tc.Enabled, tc.Quality)
	}
	if tc.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", tc.Timeout)
	}
	if !tc.S3TC.IsEnabled() || tc.S3TC.FormatTransparent != "DXT5" {
		t.Errorf("unexpected s3tc config %+v", tc.S3TC)
	}
	// Fields absent from the file keep their defaults.
	if !tc.ASTC.IsEnabled() {
		t.Error("expected astc to stay enabled")
	}
	if !tc.Fallback.UseRGBA4444 {
		t.Error("expected use_rgba4444 to keep its default")
	}
	if tc.Fallback.UseRGB565 {
		t.Error("expected use_rgb565 to be overridden to false")
	}

	if !cfg.Base64.Enabled || cfg.Base64.Threshold != 4096 {
		t.Errorf("unexpected base64 config %+v", cfg.Base64)
	}
	if !cfg.GLB.Enabled {
		t.Error("expected glb to be enabled")
	}
	if cfg.Logging.LogFile != "pack.log" {
		t.Errorf("expected log file 'pack.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
base64:
  threshold: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := LoadFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := LoadFile(cfg, "/nonexistent/path/scenepack.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad quality", func(c *Config) { c.CompressTextures.Quality = "ultra" }, true},
		{"negative threshold", func(c *Config) { c.Base64.Threshold = -1 }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"publish without command", func(c *Config) { c.Publish.Enabled = true }, true},
		{"processor without command", func(c *Config) {
			c.Process.Processors = []ProcessorConfig{{Test: "*.png"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Default()
	cfg.CompressTextures.Quality = ""
	cfg.CompressTextures.Concurrency = 0
	cfg.Logging.Format = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.CompressTextures.Quality != QualityMedium {
		t.Errorf("expected quality medium, got %s", cfg.CompressTextures.Quality)
	}
	if cfg.CompressTextures.Concurrency != 1 {
		t.Errorf("expected concurrency 1, got %d", cfg.CompressTextures.Concurrency)
	}
	if cfg.Logging.Format != LogFormatConsole {
		t.Errorf("expected log format console, got %s", cfg.Logging.Format)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("glb:\n  enabled: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Errorf("expected to find %s in current directory", FileName)
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(*testing.T, *Config)
	}{
		{
			name: "debug",
			args: []string{"-debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "textures and quality",
			args: []string{"-textures", "-quality", "high"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.CompressTextures.Enabled {
					t.Error("expected texture compression enabled")
				}
				if cfg.CompressTextures.Quality != QualityHigh {
					t.Errorf("expected quality high, got %s", cfg.CompressTextures.Quality)
				}
			},
		},
		{
			name: "glb and public path",
			args: []string{"-glb", "-public-path", "/static/"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.GLB.Enabled {
					t.Error("expected glb enabled")
				}
				if cfg.PublicPath != "/static/" {
					t.Errorf("expected public path /static/, got %s", cfg.PublicPath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet(tt.name, flag.ContinueOnError)
			f := RegisterFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}

			cfg := Default()
			f.apply(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "scenepack.yaml")

	yamlContent := `
compress_textures:
  enabled: true
  quality: low
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(&Flags{ConfigPath: configPath, Quality: QualityHigh})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Quality comes from the flag, enabled from the file.
	if cfg.CompressTextures.Quality != QualityHigh {
		t.Errorf("expected quality high from flag, got %s", cfg.CompressTextures.Quality)
	}
	if !cfg.CompressTextures.Enabled {
		t.Error("expected texture compression enabled from file")
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := Default()
	cfg.GLB.Enabled = true
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded := Default()
	if err := LoadFile(loaded, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !loaded.GLB.Enabled {
		t.Error("expected saved glb setting to load back")
	}
	if !loaded.CompressTextures.ASTC.IsEnabled() {
		t.Error("expected astc enabled after reload")
	}
}
