package pack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/scenepack/internal/config"
	"github.com/Faultbox/scenepack/internal/emit"
	"github.com/Faultbox/scenepack/internal/geometry"
	"github.com/Faultbox/scenepack/internal/logger"
	"github.com/Faultbox/scenepack/internal/resource"
	"github.com/Faultbox/scenepack/internal/rules"
	"github.com/Faultbox/scenepack/internal/texture"
	"github.com/Faultbox/scenepack/pkg/glb"
	"github.com/Faultbox/scenepack/pkg/scene"
	"github.com/Faultbox/scenepack/pkg/selector"
)

// ManifestSuffix is appended to the scene stem for the manifest file name.
const ManifestSuffix = ".variants.json"

// Option customizes an Assembler.
type Option func(*Assembler)

// WithEncoder sets the texture encoder, overriding the configured command.
func WithEncoder(enc texture.Encoder) Option {
	return func(a *Assembler) { a.encoder = enc }
}

// WithQuantizer sets the geometry quantizer, overriding the configured
// command.
func WithQuantizer(q geometry.Quantizer) Option {
	return func(a *Assembler) { a.quantizer = q }
}

// WithCache shares a file cache, e.g. across rebuilds in watch mode.
func WithCache(c *resource.FileCache) Option {
	return func(a *Assembler) { a.cache = c }
}

// WithRoot sets the directory dist paths are made relative to. Sources
// outside it are emitted at the top level.
func WithRoot(dir string) Option {
	return func(a *Assembler) { a.root = dir }
}

// Assembler builds every variant of a scene.
type Assembler struct {
	cfg  *config.Config
	sink emit.Sink
	root string

	encoder    texture.Encoder
	quantizer  geometry.Quantizer
	compressor *texture.Compressor
	chain      emit.Chain
	cache      *resource.FileCache

	compressExcludes rules.Set
	base64Excludes   rules.Set
	glbExcludes      rules.Set

	log *zap.Logger
}

// New creates an assembler that emits through sink.
func New(cfg *config.Config, sink emit.Sink, opts ...Option) (*Assembler, error) {
	a := &Assembler{cfg: cfg, sink: sink, log: logger.Named("pack")}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.encoder == nil && cfg.CompressTextures.Command != "" {
		if a.encoder, err = texture.NewCommandEncoder(cfg.CompressTextures.Command); err != nil {
			return nil, err
		}
	}
	if a.quantizer == nil && cfg.Compress.Command != "" {
		if a.quantizer, err = geometry.NewCommandQuantizer(cfg.Compress.Command); err != nil {
			return nil, err
		}
	}
	if a.compressor, err = texture.NewCompressor(cfg.CompressTextures, a.encoder); err != nil {
		return nil, err
	}
	if cfg.Process.Enabled {
		if a.chain, err = emit.NewChain(cfg.Process.Processors); err != nil {
			return nil, err
		}
	}
	if a.cache == nil {
		a.cache = resource.NewFileCache()
	}

	for _, s := range []struct {
		dst      *rules.Set
		patterns []string
	}{
		{&a.compressExcludes, cfg.Compress.Excludes},
		{&a.base64Excludes, cfg.Base64.Excludes},
		{&a.glbExcludes, cfg.GLB.Excludes},
	} {
		if *s.dst, err = rules.CompileSet(s.patterns); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Result is the outcome of assembling one source scene.
type Result struct {
	Source   string
	Variants []*Variant
	Manifest *selector.Manifest
	// ManifestURL is where the manifest was emitted.
	ManifestURL string
}

// Warnings collects the warnings and pass failures of every variant.
func (r *Result) Warnings() []string {
	var out []string
	for _, v := range r.Variants {
		for _, w := range v.Warnings {
			out = append(out, v.Name+": "+w)
		}
		if v.Err != nil {
			out = append(out, v.Err.Error())
		}
	}
	return out
}

// Assemble packs the scene at src for every target. Targets run in
// parallel on independent copies of the scene; a failed target is recorded
// on its variant and does not stop the others. The manifest is emitted
// once all passes are done and fails only when the requirement free
// variant could not be built.
func (a *Assembler) Assemble(ctx context.Context, src string) (*Result, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &resource.IOError{Path: src, Err: err}
	}

	res := &Result{Source: src}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

	if glb.IsGLB(data) {
		v := a.passthrough(ctx, src, stem, data)
		res.Variants = []*Variant{v}
	} else {
		targets := Targets(a.cfg.CompressTextures)
		res.Variants = make([]*Variant, len(targets))

		var eg errgroup.Group
		for i, t := range targets {
			eg.Go(func() error {
				res.Variants[i] = a.pass(ctx, src, stem, data, t)
				return nil
			})
		}
		_ = eg.Wait()
	}

	var (
		entries []selector.Entry
		failed  []error
	)
	for _, v := range res.Variants {
		if v.Err != nil {
			failed = append(failed, v.Err)
			continue
		}
		entries = append(entries, v.Entry())
	}
	m, err := selector.Generate(filepath.Base(src), entries)
	if err != nil {
		return res, errors.Join(append([]error{err}, failed...)...)
	}
	res.Manifest = m

	mdata, err := m.Marshal()
	if err != nil {
		return res, err
	}
	res.ManifestURL, err = a.sink.Emit(ctx, emit.Asset{
		Data:     mdata,
		DistPath: path.Join(a.distDir(src), stem+ManifestSuffix),
		FilePath: src,
	})
	if err != nil {
		return res, err
	}

	a.log.Info("assembled",
		zap.String("source", src),
		zap.Int("variants", len(entries)),
		zap.String("manifest", res.ManifestURL))
	return res, nil
}

// passthrough emits a binary source as is.
func (a *Assembler) passthrough(ctx context.Context, src, stem string, data []byte) *Variant {
	v := &Variant{
		Name:     texture.TargetNormal,
		Type:     TypeGLB,
		FileName: path.Join(a.distDir(src), stem+"-"+emit.Hash(data)+".glb"),
		Content:  data,
	}
	u, err := a.sink.Emit(ctx, emit.Asset{Data: data, DistPath: v.FileName, FilePath: src})
	if err != nil {
		v.Err = &TargetPassError{Target: v.Name, Err: err}
		return v
	}
	v.URL = u
	return v
}

func (a *Assembler) pass(ctx context.Context, src, stem string, data []byte, t Target) *Variant {
	v := &Variant{Name: t.Name, Required: t.Required}
	log := logger.Variant(src, t.Name)

	if err := a.build(ctx, src, stem, data, v, log); err != nil {
		log.Error("pass failed", zap.Error(err))
		v.Err = &TargetPassError{Target: t.Name, Err: err}
		v.Content = nil
		v.URL = ""
		return v
	}
	log.Info("packed", zap.String("file", v.FileName), zap.Int("bytes", len(v.Content)), zap.Int("assets", len(v.Assets)))
	return v
}

func (a *Assembler) build(ctx context.Context, src, stem string, data []byte, v *Variant, log *zap.Logger) error {
	g, err := scene.Parse(data)
	if err != nil {
		return err
	}

	loc, err := resource.NewLocator(filepath.Dir(src), a.cache)
	if err != nil {
		return err
	}
	reader := &resource.Reader{Locator: loc}
	if err := reader.Read(ctx, g); err != nil {
		return err
	}

	if a.cfg.Compress.Enabled && !a.compressExcludes.Match(src) {
		g = a.quantize(ctx, g, reader, v, log)
	}

	if a.cfg.CompressTextures.Enabled && v.Name != texture.TargetNormal {
		warnings, err := a.compressor.Compress(ctx, g, v.Name)
		v.Warnings = append(v.Warnings, warnings...)
		if err != nil {
			return err
		}
	}

	useGLB := a.cfg.GLB.Enabled && !a.glbExcludes.Match(src)
	distDir := a.distDir(src)

	var mu sync.Mutex
	opts := resource.WriterOptions{
		Name:          stem,
		BufferStorage: useGLB,
		Emit: func(ctx context.Context, rel string, b []byte) (string, error) {
			b, err := a.chain.Apply(ctx, rel, b)
			if err != nil {
				return "", err
			}
			u, err := a.sink.Emit(ctx, emit.Asset{
				Data:     b,
				DistPath: path.Join(distDir, emit.DistName(rel, b)),
				FilePath: rel,
			})
			if err != nil {
				return "", err
			}
			mu.Lock()
			v.Assets = append(v.Assets, u)
			mu.Unlock()
			return u, nil
		},
	}
	if len(a.chain) > 0 {
		opts.Embedded = a.chain.Apply
	}
	if useGLB {
		opts.Separate = func(rel string, _ int) bool { return a.glbExcludes.Match(rel) }
	} else {
		opts.DataURI = a.inline
		opts.Separate = func(rel string, size int) bool { return !a.inline(rel, size) }
	}

	bin, err := resource.NewWriter(opts).Write(ctx, g)
	if err != nil {
		return err
	}
	doc, err := g.Marshal()
	if err != nil {
		return err
	}

	if useGLB {
		v.Type = TypeGLB
		v.Content = glb.Encode(doc, bin)
	} else {
		v.Type = TypeGLTF
		v.Content = doc
	}
	v.FileName = path.Join(distDir, fmt.Sprintf("%s-%s-%s.%s", stem, v.Name, emit.Hash(v.Content), v.Type))

	if v.Type == TypeGLTF && a.cfg.Base64.IncludeGLTF && a.inline(v.FileName, len(v.Content)) {
		v.URL = scene.EncodeDataURI(v.Content, scene.MimeType(".gltf"))
		return nil
	}
	v.URL, err = a.sink.Emit(ctx, emit.Asset{Data: v.Content, DistPath: v.FileName, FilePath: src})
	return err
}

// quantize returns the quantized graph with its resources read, or g when
// quantization is unavailable or fails.
func (a *Assembler) quantize(ctx context.Context, g *scene.Graph, reader *resource.Reader, v *Variant, log *zap.Logger) *scene.Graph {
	if a.quantizer == nil {
		v.Warnings = append(v.Warnings, "geometry compression enabled without a quantizer command")
		return g
	}
	q, err := a.quantizer.Quantize(ctx, g, geometry.Bits(a.cfg.Compress.Quantization))
	if err == nil {
		err = reader.Read(ctx, q)
	}
	if err != nil {
		log.Warn("quantization failed, using original geometry", zap.Error(err))
		v.Warnings = append(v.Warnings, fmt.Sprintf("quantization failed: %v", err))
		return g
	}
	return q
}

// inline reports whether a resource becomes a data URI.
func (a *Assembler) inline(rel string, size int) bool {
	b := a.cfg.Base64
	return b.Enabled && size < b.Threshold && !a.base64Excludes.Match(rel)
}

// distDir is the slash-separated output directory of src.
func (a *Assembler) distDir(src string) string {
	if a.root == "" {
		return ""
	}
	rel, err := filepath.Rel(a.root, filepath.Dir(src))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}
