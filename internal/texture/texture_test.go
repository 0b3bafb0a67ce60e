package texture

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/scenepack/internal/config"
	"github.com/Faultbox/scenepack/internal/resource"
	"github.com/Faultbox/scenepack/pkg/scene"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		target, quality     string
		transparent, normal bool
		want                Decision
	}{
		{TargetASTC, config.QualityHigh, true, false, Decision{"ASTC_4x4", "astcthorough"}},
		{TargetASTC, config.QualityHigh, false, true, Decision{"ASTC_4x4", "astcthorough"}},
		{TargetASTC, config.QualityMedium, false, false, Decision{"ASTC_8x5", "astcmedium"}},
		{TargetASTC, config.QualityLow, false, false, Decision{"ASTC_8x6", "astcfast"}},
		{TargetPVRTC, config.QualityLow, true, false, Decision{"PVRTC1_2", "pvrtcbest"}},
		{TargetPVRTC, config.QualityHigh, true, true, Decision{"PVRTC1_4_RGB", "pvrtcnormal"}},
		{TargetETC, config.QualityLow, true, false, Decision{"ETC2_RGBA", "etcslow"}},
		{TargetETC, config.QualityMedium, false, false, Decision{"ETC2_RGB", "etcfast"}},
		{TargetS3TC, config.QualityLow, true, false, Decision{"DXT1A", "better"}},
		{TargetS3TC, config.QualityLow, false, false, Decision{"DXT1", "better"}},
		{TargetS3TC, config.QualityHigh, true, false, Decision{"DXT3", "fast"}},
	}

	for _, tt := range tests {
		got, err := Decide(tt.target, tt.quality, config.TargetConfig{}, tt.transparent, tt.normal)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s transparent=%v normal=%v", tt.target, tt.quality, tt.transparent, tt.normal)
	}
}

func TestDecideOverride(t *testing.T) {
	override := config.TargetConfig{FormatTransparent: "DXT5"}

	got, err := Decide(TargetS3TC, config.QualityLow, override, true, false)
	require.NoError(t, err)
	assert.Equal(t, Decision{"DXT5", "better"}, got, "unset override fields keep the table value")

	got, err = Decide(TargetS3TC, config.QualityLow, config.TargetConfig{Quality: "best"}, false, false)
	require.NoError(t, err)
	assert.Equal(t, Decision{"DXT1", "best"}, got)
}

func TestDecideUnsupported(t *testing.T) {
	_, err := Decide("bc7", config.QualityHigh, config.TargetConfig{}, false, false)
	var unsupported *UnsupportedTargetError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "bc7", unsupported.Target)
}

func TestIsTransparent(t *testing.T) {
	tests := []struct {
		meta    scene.ImageMeta
		hasMeta bool
		ext     string
		want    bool
	}{
		{scene.ImageMeta{}, false, ".png", true},
		{scene.ImageMeta{}, false, ".jpg", false},
		{scene.ImageMeta{Format: "RGB"}, true, ".png", false},
		{scene.ImageMeta{Format: "RGBA"}, true, ".PNG", true},
		{scene.ImageMeta{Type: "HDR"}, true, ".exr", true},
		{scene.ImageMeta{Type: "HDR", Format: "RGBD"}, true, ".exr", false},
		{scene.ImageMeta{Type: "HDR"}, true, ".hdr", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTransparent(tt.meta, tt.hasMeta, tt.ext), "%+v %s", tt.meta, tt.ext)
	}
}

// recorder is a fake encoder that writes a KTX stub and records requests.
type recorder struct {
	mu   sync.Mutex
	reqs []Request
	fail map[string]bool
}

func (r *recorder) Encode(_ context.Context, req Request) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.fail[filepath.Base(req.Input)] {
		return errors.New("encoder crashed")
	}
	return os.WriteFile(req.Output, []byte("KTX:"+req.Format), 0644)
}

func loadScene(t *testing.T, doc string, files map[string]string) *scene.Graph {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	g, err := scene.Parse([]byte(doc))
	require.NoError(t, err)
	loc, err := resource.NewLocator(dir, nil)
	require.NoError(t, err)
	require.NoError(t, (&resource.Reader{Locator: loc}).Read(context.Background(), g))
	return g
}

const pngScene = `{
  "asset": {"version": "2.0"},
  "images": [{"uri": "textures/rock.png"}],
  "textures": [{"source": 0}, {"source": 0}]
}`

func compressorFor(t *testing.T, mutate func(*config.CompressTexturesConfig), enc Encoder) *Compressor {
	t.Helper()
	cfg := config.Default().CompressTextures
	cfg.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCompressor(cfg, enc)
	require.NoError(t, err)
	return c
}

func TestCompressS3TCLow(t *testing.T) {
	g := loadScene(t, pngScene, map[string]string{"textures/rock.png": "png"})
	enc := &recorder{}
	c := compressorFor(t, func(cfg *config.CompressTexturesConfig) { cfg.Quality = config.QualityLow }, enc)

	warnings, err := c.Compress(context.Background(), g, TargetS3TC)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, enc.reqs, 1)
	req := enc.reqs[0]
	assert.Equal(t, "DXT1A", req.Format)
	assert.Equal(t, "better", req.Quality)
	assert.True(t, req.Mipmap)
	assert.False(t, req.Square)
	assert.Equal(t, "rock.png", filepath.Base(req.Input))

	assert.Equal(t, "textures/rock-s3tc.ktx", g.Doc.Images[0].URI)
	rec := g.Record(scene.Ref{Kind: scene.KindImage})
	require.NotNil(t, rec)
	assert.Equal(t, "KTX:DXT1A", string(rec.Source))
	assert.Equal(t, "textures/rock-s3tc.ktx", rec.RelativePath)
	assert.Equal(t, ".ktx", rec.Ext)
}

func TestCompressPVRTCSquare(t *testing.T) {
	g := loadScene(t, `{
  "asset": {"version": "2.0"},
  "images": [{"uri": "a.jpg", "extras": {"useMipmaps": false}}]
}`, map[string]string{"a.jpg": "jpg"})
	enc := &recorder{}
	c := compressorFor(t, nil, enc)

	_, err := c.Compress(context.Background(), g, TargetPVRTC)
	require.NoError(t, err)

	require.Len(t, enc.reqs, 1)
	assert.True(t, enc.reqs[0].Square)
	assert.False(t, enc.reqs[0].Mipmap)
	assert.Equal(t, "PVRTC1_4_RGB", enc.reqs[0].Format)
	assert.Equal(t, "a-pvrtc.ktx", g.Doc.Images[0].URI)
}

func TestCompressFallback(t *testing.T) {
	g := loadScene(t, pngScene, map[string]string{"textures/rock.png": "png"})
	enc := &recorder{}
	c := compressorFor(t, nil, enc)

	_, err := c.Compress(context.Background(), g, TargetFallback)
	require.NoError(t, err)

	assert.Empty(t, enc.reqs, "fallback never invokes the encoder")
	assert.Equal(t, "textures/rock.png", g.Doc.Images[0].URI)
	assert.Contains(t, g.Doc.ExtensionsUsed, scene.ExtTextureImprove)

	out, err := g.Marshal()
	require.NoError(t, err)
	var doc struct {
		Textures []struct {
			Extensions map[string]struct {
				TextureType int `json:"textureType"`
			} `json:"extensions"`
		} `json:"textures"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc.Textures, 2)
	for _, tex := range doc.Textures {
		assert.Equal(t, TypeRGBA4444, tex.Extensions[scene.ExtTextureImprove].TextureType)
	}
}

func TestCompressFallbackSkipsNormalMaps(t *testing.T) {
	g := loadScene(t, `{
  "asset": {"version": "2.0"},
  "images": [{"uri": "n.jpg", "extras": {"isNormalMap": true}}, {"uri": "c.jpg"}],
  "textures": [{"source": 0}, {"source": 1}]
}`, map[string]string{"n.jpg": "n", "c.jpg": "c"})
	c := compressorFor(t, nil, nil)

	_, err := c.Compress(context.Background(), g, TargetFallback)
	require.NoError(t, err)

	assert.Nil(t, g.Doc.Textures[0].Extensions)
	require.NotNil(t, g.Doc.Textures[1].Extensions)
	ext := g.Doc.Textures[1].Extensions[scene.ExtTextureImprove].(map[string]any)
	assert.Equal(t, TypeRGB565, ext["textureType"])
}

func TestCompressExcluded(t *testing.T) {
	g := loadScene(t, pngScene, map[string]string{"textures/rock.png": "png"})
	enc := &recorder{}
	c := compressorFor(t, func(cfg *config.CompressTexturesConfig) {
		cfg.S3TC.Excludes = []string{"textures/**"}
	}, enc)

	_, err := c.Compress(context.Background(), g, TargetS3TC)
	require.NoError(t, err)

	assert.Empty(t, enc.reqs)
	assert.Equal(t, "textures/rock.png", g.Doc.Images[0].URI)
	assert.Equal(t, "png", string(g.Record(scene.Ref{Kind: scene.KindImage}).Source))
}

func TestCompressEncoderFailureKeepsImage(t *testing.T) {
	g := loadScene(t, `{
  "asset": {"version": "2.0"},
  "images": [{"uri": "bad.png"}, {"uri": "good.png"}]
}`, map[string]string{"bad.png": "b", "good.png": "g"})
	enc := &recorder{fail: map[string]bool{"bad.png": true}}
	c := compressorFor(t, nil, enc)

	warnings, err := c.Compress(context.Background(), g, TargetASTC)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "bad.png")
	assert.Equal(t, "bad.png", g.Doc.Images[0].URI)
	assert.Equal(t, "good-astc.ktx", g.Doc.Images[1].URI)
}

func TestCompressUnsupportedTarget(t *testing.T) {
	g := loadScene(t, pngScene, map[string]string{"textures/rock.png": "png"})
	enc := &recorder{}
	c := compressorFor(t, nil, enc)

	warnings, err := c.Compress(context.Background(), g, "bc7")
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Empty(t, enc.reqs)
	assert.Equal(t, "textures/rock.png", g.Doc.Images[0].URI)
}

func TestCompressSkipsNonLocal(t *testing.T) {
	g, err := scene.Parse([]byte(`{
  "asset": {"version": "2.0"},
  "images": [{"uri": "https://cdn.example.com/a.png"}, {"uri": "/abs/b.png"}]
}`))
	require.NoError(t, err)
	enc := &recorder{}
	c := compressorFor(t, nil, enc)

	_, err = c.Compress(context.Background(), g, TargetASTC)
	require.NoError(t, err)
	assert.Empty(t, enc.reqs)
}

func TestCompressWithoutEncoder(t *testing.T) {
	g := loadScene(t, pngScene, map[string]string{"textures/rock.png": "png"})
	c := compressorFor(t, nil, nil)

	_, err := c.Compress(context.Background(), g, TargetASTC)
	assert.ErrorIs(t, err, ErrNoEncoder)
}

func TestCompressCanceled(t *testing.T) {
	g := loadScene(t, pngScene, map[string]string{"textures/rock.png": "png"})
	c := compressorFor(t, nil, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Compress(ctx, g, TargetASTC)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompressManyImages(t *testing.T) {
	g := loadScene(t, `{
  "asset": {"version": "2.0"},
  "images": [{"uri": "a.png"}, {"uri": "b.jpg"}, {"uri": "c.png"}]
}`, map[string]string{"a.png": "a", "b.jpg": "b", "c.png": "c"})
	enc := &recorder{}
	c := compressorFor(t, func(cfg *config.CompressTexturesConfig) { cfg.Concurrency = 2 }, enc)

	warnings, err := c.Compress(context.Background(), g, TargetETC)
	require.NoError(t, err, "a clean pass reports no error")
	assert.Empty(t, warnings)
	assert.Len(t, enc.reqs, 3)
	for i, want := range []string{"a-etc.ktx", "b-etc.ktx", "c-etc.ktx"} {
		assert.Equal(t, want, g.Doc.Images[i].URI)
	}
}
