package texture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/scenepack/internal/config"
	"github.com/Faultbox/scenepack/internal/logger"
	"github.com/Faultbox/scenepack/internal/rules"
	"github.com/Faultbox/scenepack/pkg/scene"
)

// Compressor rewrites the images of a graph for one compression target.
type Compressor struct {
	cfg      config.CompressTexturesConfig
	encoder  Encoder
	excludes rules.Set
	targets  map[string]rules.Set
	log      *zap.Logger
}

// NewCompressor compiles the exclude rules of cfg. enc may be nil when only
// the fallback target is used.
func NewCompressor(cfg config.CompressTexturesConfig, enc Encoder) (*Compressor, error) {
	excludes, err := rules.CompileSet(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	c := &Compressor{
		cfg:      cfg,
		encoder:  enc,
		excludes: excludes,
		targets:  make(map[string]rules.Set),
		log:      logger.Named("texture"),
	}
	for _, name := range []string{TargetASTC, TargetPVRTC, TargetETC, TargetS3TC} {
		t, _ := cfg.Target(name)
		if c.targets[name], err = rules.CompileSet(t.Excludes); err != nil {
			return nil, err
		}
	}
	if c.targets[TargetFallback], err = rules.CompileSet(cfg.Fallback.Excludes); err != nil {
		return nil, err
	}
	return c, nil
}

type job struct {
	image int
	uri   string
	rec   *scene.Record
	req   Request
}

// Compress applies target to every local image of g that is not excluded.
// Per-image failures do not stop the pass; they are returned as warnings
// and the image keeps its original reference.
func (c *Compressor) Compress(ctx context.Context, g *scene.Graph, target string) ([]string, error) {
	if target == TargetNormal || len(g.Doc.Images) == 0 {
		return nil, nil
	}

	var (
		warnings []string
		jobs     []job
	)

	for i, img := range g.Doc.Images {
		uri := img.URI
		if !isLocal(img.URI, img.BufferView) || c.excludes.Match(uri) || c.targets[target].Match(uri) {
			continue
		}

		meta, hasMeta := g.ImageMeta(i)
		transparent := isTransparent(meta, hasMeta, path.Ext(uri))

		if target == TargetFallback {
			if code := Fallback(c.cfg.Fallback, transparent, meta.IsNormalMap); code != 0 {
				if err := setTextureType(g, i, code); err != nil {
					return nil, err
				}
				c.log.Debug("fallback texture type", zap.String("image", uri), zap.Int("type", code))
			}
			continue
		}

		override, _ := c.cfg.Target(target)
		d, err := Decide(target, c.cfg.Quality, override, transparent, meta.IsNormalMap)
		if err != nil {
			c.log.Warn("skipping image", zap.String("image", uri), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("%s: %v", uri, err))
			continue
		}

		rec := g.Record(scene.Ref{Kind: scene.KindImage, Index: i})
		if rec == nil || rec.Source == nil {
			continue
		}
		jobs = append(jobs, job{
			image: i,
			uri:   uri,
			rec:   rec,
			req: Request{
				Target:  target,
				Format:  d.Format,
				Quality: d.Quality,
				Mipmap:  meta.UseMipmaps == nil || *meta.UseMipmaps,
				Square:  target == TargetPVRTC,
			},
		})
	}

	if len(jobs) == 0 {
		return warnings, nil
	}
	if c.encoder == nil {
		return nil, ErrNoEncoder
	}

	tmp, err := os.MkdirTemp("", "scenepack-"+target+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(c.cfg.Concurrency, 1))

	for _, j := range jobs {
		eg.Go(func() error {
			if err := c.encode(egctx, g, tmp, j); err != nil {
				c.log.Error("compress error", zap.String("image", j.uri), zap.String("target", target), zap.Error(err))
				mu.Lock()
				warnings = append(warnings, err.Error())
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// encode runs one job and, on success, points the image at the encoded
// bytes under "<stem>-<target>.ktx".
func (c *Compressor) encode(ctx context.Context, g *scene.Graph, tmp string, j job) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	dest := variantPath(j.uri, j.req.Target)
	rel := dest
	if j.rec.RelativePath != "" {
		rel = variantPath(j.rec.RelativePath, j.req.Target)
	}

	req := j.req
	req.Input = j.rec.AbsolutePath
	if req.Input == "" {
		req.Input = filepath.Join(tmp, strconv.Itoa(j.image)+"-src"+path.Ext(j.uri))
		if err := os.WriteFile(req.Input, j.rec.Source, 0644); err != nil {
			return &EncoderError{Image: j.uri, Target: req.Target, Err: err}
		}
	}
	req.Output = filepath.Join(tmp, strconv.Itoa(j.image)+"-"+path.Base(dest))

	start := time.Now()
	if err := c.encoder.Encode(ctx, req); err != nil {
		return &EncoderError{Image: j.uri, Target: req.Target, Err: err}
	}
	out, err := os.ReadFile(req.Output)
	if err != nil {
		return &EncoderError{Image: j.uri, Target: req.Target, Err: err}
	}

	g.SetRecord(scene.Ref{Kind: scene.KindImage, Index: j.image}, &scene.Record{
		Source:       out,
		RelativePath: rel,
		Ext:          ".ktx",
	})
	img := g.Doc.Images[j.image]
	img.URI = dest
	img.MimeType = ""

	c.log.Info("packed",
		zap.String("image", dest),
		zap.String("format", req.Format),
		zap.Duration("took", time.Since(start)))
	return nil
}

func variantPath(p, target string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + "-" + target + ".ktx"
}

// isLocal reports whether an image is a relative file reference.
func isLocal(uri string, bufferView *int) bool {
	if bufferView != nil || uri == "" || scene.IsDataURI(uri) || scene.IsRemoteURI(uri) {
		return false
	}
	return !path.IsAbs(uri) && !filepath.IsAbs(uri)
}

// isTransparent infers alpha from authoring metadata, or from the file
// extension when there is none.
func isTransparent(meta scene.ImageMeta, hasMeta bool, ext string) bool {
	ext = strings.ToLower(ext)
	if !hasMeta {
		return ext == ".png"
	}
	if meta.Type == "HDR" {
		return meta.Format != "RGBD" && ext == ".exr"
	}
	if meta.Format == "RGB" {
		return false
	}
	return ext == ".png"
}

// setTextureType marks every texture sampling image with a packed type.
func setTextureType(g *scene.Graph, image, code int) error {
	for _, tex := range g.Doc.Textures {
		if tex.Source == nil || *tex.Source != image {
			continue
		}
		if tex.Extensions == nil {
			tex.Extensions = make(map[string]any)
		}
		ext := map[string]any{}
		if existing, ok := tex.Extensions[scene.ExtTextureImprove]; ok {
			raw, err := json.Marshal(existing)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &ext); err != nil {
				return fmt.Errorf("texture extension %s: %w", scene.ExtTextureImprove, err)
			}
		}
		ext["textureType"] = code
		tex.Extensions[scene.ExtTextureImprove] = ext

		if !slices.Contains(g.Doc.ExtensionsUsed, scene.ExtTextureImprove) {
			g.Doc.ExtensionsUsed = append(g.Doc.ExtensionsUsed, scene.ExtTextureImprove)
		}
	}
	return nil
}
