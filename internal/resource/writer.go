package resource

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/scenepack/internal/logger"
	"github.com/Faultbox/scenepack/pkg/scene"
)

// WriterOptions controls where each resource ends up.
type WriterOptions struct {
	// Name is the bundle name, used for the merged buffer and derived names.
	Name string

	SeparateBuffers  bool
	SeparateTextures bool
	SeparateShaders  bool

	// BufferStorage keeps the merged buffer out of the URI space; Write
	// returns its bytes for a binary container.
	BufferStorage bool

	// Separate forces a resource into its own file.
	Separate func(relativePath string, size int) bool
	// DataURI inlines a resource that is not separate.
	DataURI func(relativePath string, size int) bool

	// Embedded transforms the bytes of a resource that stays inside the
	// document, as a data URI or buffer view.
	Embedded func(ctx context.Context, relativePath string, src []byte) ([]byte, error)
	// Emit stores a separate resource and returns the URI to reference it by.
	// Without it the relative path is used as the URI.
	Emit func(ctx context.Context, relativePath string, src []byte) (string, error)
}

// Writer places every materialized resource of a graph.
type Writer struct {
	opts WriterOptions
	log  *zap.Logger
}

// NewWriter creates a writer.
func NewWriter(opts WriterOptions) *Writer {
	return &Writer{opts: opts, log: logger.Named("writer")}
}

// Write places images, compressed images, shaders and audio clips, prunes
// unreferenced elements, merges every buffer that has bytes and finally
// places the buffers. In buffer storage mode the merged buffer is returned
// instead of being placed. Records are cleared on success.
func (w *Writer) Write(ctx context.Context, g *scene.Graph) ([]byte, error) {
	taken := make(map[string]bool)

	for _, kind := range []scene.Kind{scene.KindImage, scene.KindCompressedImage, scene.KindShader, scene.KindAudio} {
		for _, ref := range g.Refs(kind) {
			if err := w.writeResource(ctx, g, ref, taken); err != nil {
				return nil, fmt.Errorf("writing %s: %w", ref, err)
			}
		}
	}

	g.RemoveUnused()
	if err := g.MergeBuffers(w.opts.Name); err != nil {
		return nil, fmt.Errorf("merging buffers: %w", err)
	}

	var bin []byte
	for _, ref := range g.Refs(scene.KindBuffer) {
		rec := g.Record(ref)
		if w.opts.BufferStorage && ref.Index == 0 && rec != nil && !rec.External {
			buf := g.Doc.Buffers[0]
			buf.URI = ""
			buf.Data = nil
			buf.ByteLength = len(rec.Source)
			bin = rec.Source
			continue
		}
		if err := w.writeResource(ctx, g, ref, taken); err != nil {
			return nil, fmt.Errorf("writing %s: %w", ref, err)
		}
	}

	g.ClearRecords()
	return bin, nil
}

func (w *Writer) writeResource(ctx context.Context, g *scene.Graph, ref scene.Ref, taken map[string]bool) error {
	rec := g.Record(ref)
	obj := g.Object(ref)
	if rec == nil || rec.External || obj == nil {
		return nil
	}

	ext := w.extension(ref, rec)
	rel := w.relativePath(g, ref, obj, rec, ext)
	src := rec.Source

	if w.separate(g, ref, rel) {
		rel = reserve(taken, rel)
		uri := rel
		if w.opts.Emit != nil {
			var err error
			if uri, err = w.opts.Emit(ctx, rel, src); err != nil {
				return err
			}
		}
		obj.SetBufferView(nil)
		obj.SetMimeType("")
		obj.SetURI(uri)
		w.setBufferLength(g, ref, len(src))
		w.log.Debug("separate resource", zap.Stringer("ref", ref), zap.String("path", rel))
		return nil
	}

	// Buffer bytes are addressed by view offsets and must not change size.
	if w.opts.Embedded != nil && ref.Kind != scene.KindBuffer {
		var err error
		if src, err = w.opts.Embedded(ctx, rel, src); err != nil {
			return err
		}
	}

	if ref.Kind == scene.KindBuffer || (w.opts.DataURI != nil && w.opts.DataURI(rel, len(src))) {
		if ref.Kind == scene.KindBuffer {
			g.Doc.Buffers[ref.Index].Data = src
		}
		obj.SetBufferView(nil)
		obj.SetMimeType("")
		obj.SetURI(scene.EncodeDataURI(src, scene.MimeType(ext)))
		w.setBufferLength(g, ref, len(src))
		return nil
	}

	obj.SetURI("")
	view := g.AddBuffer(src)
	obj.SetBufferView(&view)
	obj.SetMimeType(scene.MimeType(ext))
	return nil
}

// separate reports whether a resource goes to its own file. Buffers that
// are neither separate nor inlined have nowhere else to go.
func (w *Writer) separate(g *scene.Graph, ref scene.Ref, rel string) bool {
	if w.opts.Separate != nil && w.opts.Separate(rel, len(g.Record(ref).Source)) {
		return true
	}
	switch ref.Kind {
	case scene.KindBuffer:
		if w.opts.SeparateBuffers {
			return true
		}
		return w.opts.DataURI == nil || !w.opts.DataURI(rel, len(g.Record(ref).Source))
	case scene.KindImage, scene.KindCompressedImage:
		return w.opts.SeparateTextures
	case scene.KindShader:
		return w.opts.SeparateShaders
	case scene.KindAudio:
		return g.AudioClips[ref.Index].Streaming()
	}
	return false
}

func (w *Writer) setBufferLength(g *scene.Graph, ref scene.Ref, n int) {
	if ref.Kind == scene.KindBuffer {
		g.Doc.Buffers[ref.Index].ByteLength = n
	}
}

// extension is the extension of a derived name and the source of the MIME
// type. Sniffed image containers win over the recorded extension.
func (w *Writer) extension(ref scene.Ref, rec *scene.Record) string {
	switch ref.Kind {
	case scene.KindImage, scene.KindCompressedImage:
		if ext := scene.ImageExtension(rec.Source); ext != ".bin" {
			return ext
		}
	case scene.KindBuffer:
		return ".bin"
	case scene.KindShader:
		return ".glsl"
	}
	if rec.Ext != "" {
		return rec.Ext
	}
	return ".bin"
}

// relativePath keeps the path a resource was read from. Only derived names
// get the extension of their kind.
func (w *Writer) relativePath(g *scene.Graph, ref scene.Ref, obj scene.Resource, rec *scene.Record, ext string) string {
	if rec.RelativePath != "" {
		return strings.TrimPrefix(rec.RelativePath, "./")
	}
	return w.name(g, ref, obj) + ext
}

// name derives a file stem: the declared name, else the bundle name plus
// index, else a per-kind default plus index.
func (w *Writer) name(g *scene.Graph, ref scene.Ref, obj scene.Resource) string {
	if n := obj.Name(); n != "" {
		return n
	}
	idx := strconv.Itoa(ref.Index)

	switch ref.Kind {
	case scene.KindShader:
		stage := "VS"
		if g.Shaders[ref.Index].Type == scene.FragmentShader {
			stage = "FS"
		}
		program, pi := g.ProgramOf(ref.Index)
		switch {
		case program != nil && program.Name != "":
			return program.Name + stage
		case program == nil:
			pi = ref.Index
		}
		if w.opts.Name != "" {
			return w.opts.Name + stage + strconv.Itoa(pi)
		}
		return strings.ToLower(stage) + strconv.Itoa(pi)
	case scene.KindCompressedImage:
		key := g.Compressed[ref.Index][ref.Sub].Key
		if w.opts.Name != "" {
			return w.opts.Name + idx + "-" + key
		}
		return "image" + idx + "-" + key
	}

	if w.opts.Name != "" {
		return w.opts.Name + idx
	}
	switch ref.Kind {
	case scene.KindBuffer:
		return "buffer" + idx
	case scene.KindAudio:
		return "audio" + idx
	}
	return "image" + idx
}

// reserve returns rel, or rel with the first free "_N" suffix on its stem.
func reserve(taken map[string]bool, rel string) string {
	if !taken[rel] {
		taken[rel] = true
		return rel
	}
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	for n := 1; ; n++ {
		candidate := stem + "_" + strconv.Itoa(n) + ext
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}
