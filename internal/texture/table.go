package texture

import (
	"github.com/jinzhu/copier"

	"github.com/Faultbox/scenepack/internal/config"
)

// Compression targets with an encoder behind them.
const (
	TargetASTC  = "astc"
	TargetPVRTC = "pvrtc"
	TargetETC   = "etc"
	TargetS3TC  = "s3tc"

	// TargetFallback marks images with a packed 16-bit texture type instead
	// of encoding them.
	TargetFallback = "fallback"
	// TargetNormal leaves every image as authored.
	TargetNormal = "normal"
)

// WebGL texture type codes written for the fallback target.
const (
	TypeRGBA4444 = 32819
	TypeRGB565   = 33635
)

// Preset is the outcome of the decision table for one target and quality
// tier, before transparency picks a format.
type Preset struct {
	FormatOpaque      string
	FormatTransparent string
	Quality           string
}

// Decision is the encoding chosen for one image.
type Decision struct {
	Format  string
	Quality string
}

// presets is keyed by target, then quality tier. A missing tier uses "".
var presets = map[string]map[string]Preset{
	TargetASTC: {
		config.QualityHigh:   {FormatTransparent: "ASTC_4x4", FormatOpaque: "ASTC_6x6", Quality: "astcthorough"},
		config.QualityMedium: {FormatTransparent: "ASTC_6x6", FormatOpaque: "ASTC_8x5", Quality: "astcmedium"},
		"":                   {FormatTransparent: "ASTC_8x5", FormatOpaque: "ASTC_8x6", Quality: "astcfast"},
	},
	TargetPVRTC: {
		config.QualityLow: {FormatTransparent: "PVRTC1_2", FormatOpaque: "PVRTC1_2_RGB", Quality: "pvrtcbest"},
		"":                {FormatTransparent: "PVRTC1_4", FormatOpaque: "PVRTC1_4_RGB", Quality: "pvrtcnormal"},
	},
	TargetETC: {
		config.QualityLow: {FormatTransparent: "ETC2_RGBA", FormatOpaque: "ETC2_RGB", Quality: "etcslow"},
		"":                {FormatTransparent: "ETC2_RGBA", FormatOpaque: "ETC2_RGB", Quality: "etcfast"},
	},
	TargetS3TC: {
		config.QualityLow: {FormatTransparent: "DXT1A", FormatOpaque: "DXT1", Quality: "better"},
		"":                {FormatTransparent: "DXT3", FormatOpaque: "DXT3", Quality: "fast"},
	},
}

// Lookup returns the preset of target at a quality tier with the non-empty
// fields of override layered on top.
func Lookup(target, quality string, override config.TargetConfig) (Preset, error) {
	tiers, ok := presets[target]
	if !ok {
		return Preset{}, &UnsupportedTargetError{Target: target}
	}
	p, ok := tiers[quality]
	if !ok {
		p = tiers[""]
	}
	if err := copier.CopyWithOption(&p, &override, copier.Option{IgnoreEmpty: true}); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Decide picks the encoding of one image. ASTC keeps alpha-capable formats
// for normal maps; the other targets only do so for transparent color maps.
func Decide(target, quality string, override config.TargetConfig, transparent, normalMap bool) (Decision, error) {
	p, err := Lookup(target, quality, override)
	if err != nil {
		return Decision{}, err
	}

	useTransparent := transparent && !normalMap
	if target == TargetASTC {
		useTransparent = transparent || normalMap
	}

	d := Decision{Format: p.FormatOpaque, Quality: p.Quality}
	if useTransparent {
		d.Format = p.FormatTransparent
	}
	return d, nil
}

// Fallback returns the texture type code for an image on the fallback
// target, or 0 when the image is left alone.
func Fallback(cfg config.FallbackConfig, transparent, normalMap bool) int {
	switch {
	case normalMap:
		return 0
	case transparent && cfg.UseRGBA4444:
		return TypeRGBA4444
	case !transparent && cfg.UseRGB565:
		return TypeRGB565
	}
	return 0
}
