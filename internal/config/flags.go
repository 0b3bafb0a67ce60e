package config

import "flag"

// Flags holds command-line overrides for a packing run.
type Flags struct {
	ConfigPath string
	Debug      bool
	Textures   bool
	NoTextures bool
	GLB        bool
	Quality    string
	PublicPath string
}

// RegisterFlags binds the shared packing flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.Textures, "textures", false, "Enable texture compression variants")
	fs.BoolVar(&f.NoTextures, "no-textures", false, "Disable texture compression variants")
	fs.BoolVar(&f.GLB, "glb", false, "Pack variants as GLB")
	fs.StringVar(&f.Quality, "quality", "", "Texture quality: high, medium or low")
	fs.StringVar(&f.PublicPath, "public-path", "", "Prefix for emitted URLs")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Textures {
		cfg.CompressTextures.Enabled = true
	}
	if f.NoTextures {
		cfg.CompressTextures.Enabled = false
	}
	if f.GLB {
		cfg.GLB.Enabled = true
	}
	if f.Quality != "" {
		cfg.CompressTextures.Quality = f.Quality
	}
	if f.PublicPath != "" {
		cfg.PublicPath = f.PublicPath
	}
}
