package resource

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/Faultbox/scenepack/pkg/scene"
)

// Locator resolves where the bytes of a resource come from.
type Locator struct {
	// Dir is the absolute resource directory relative URIs resolve against.
	// Empty means only absolute file URIs can be read.
	Dir   string
	Cache *FileCache
}

// NewLocator creates a locator rooted at dir. An empty dir is allowed.
func NewLocator(dir string, cache *FileCache) (*Locator, error) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving resource directory: %w", err)
		}
		dir = abs
	}
	return &Locator{Dir: dir, Cache: cache}, nil
}

// Locate returns the record of ref. Sources are tried in order: an already
// materialized record, a buffer view of an already materialized buffer, a
// data URI, a remote URI (kept as an external reference) and finally a file.
// A view into a remote buffer is external too.
func (l *Locator) Locate(ctx context.Context, g *scene.Graph, ref scene.Ref) (*scene.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec := g.Record(ref); rec != nil && (rec.Source != nil || rec.External) {
		return rec, nil
	}

	obj := g.Object(ref)
	if obj == nil {
		return nil, fmt.Errorf("%s: no such resource", ref)
	}

	if bv := obj.BufferView(); bv != nil {
		return l.fromBufferView(g, ref, *bv)
	}

	uri := obj.URI()
	switch {
	case uri == "":
		return nil, fmt.Errorf("%s: %w", ref, ErrNoSource)
	case scene.IsDataURI(uri):
		data, mimeType, err := scene.DecodeDataURI(uri)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		return &scene.Record{Source: data, Ext: extension(ref, "", mimeType)}, nil
	case scene.IsRemoteURI(uri):
		return &scene.Record{External: true, Ext: extension(ref, uri, "")}, nil
	}

	return l.fromFile(obj, ref, uri)
}

func (l *Locator) fromBufferView(g *scene.Graph, ref scene.Ref, bv int) (*scene.Record, error) {
	if bv < 0 || bv >= len(g.Doc.BufferViews) {
		return nil, &DanglingReferenceError{Ref: ref, BufferView: bv, Buffer: -1}
	}
	view := g.Doc.BufferViews[bv]
	parent := g.Record(scene.Ref{Kind: scene.KindBuffer, Index: view.Buffer})
	if parent != nil && parent.External {
		return &scene.Record{External: true, Ext: extension(ref, "", mimeTypeOf(g, ref))}, nil
	}
	if parent == nil || parent.Source == nil {
		return nil, &DanglingReferenceError{Ref: ref, BufferView: bv, Buffer: view.Buffer}
	}
	end := view.ByteOffset + view.ByteLength
	if view.ByteOffset < 0 || end > len(parent.Source) {
		return nil, fmt.Errorf("%s: bufferView %d [%d:%d] exceeds buffer %d length %d",
			ref, bv, view.ByteOffset, end, view.Buffer, len(parent.Source))
	}

	src := make([]byte, view.ByteLength)
	copy(src, parent.Source[view.ByteOffset:end])
	return &scene.Record{Source: src, Ext: extension(ref, "", mimeTypeOf(g, ref))}, nil
}

func (l *Locator) fromFile(obj scene.Resource, ref scene.Ref, uri string) (*scene.Record, error) {
	decoded, err := url.PathUnescape(uri)
	if err != nil {
		decoded = uri
	}
	native := filepath.FromSlash(decoded)

	var abs string
	switch {
	case filepath.IsAbs(native):
		abs = native
	case l.Dir == "":
		return nil, &MissingResourceDirectoryError{URI: uri}
	default:
		abs = filepath.Join(l.Dir, native)
	}

	data, err := l.Cache.Load(abs)
	if err != nil {
		return nil, &IOError{Path: abs, Err: err}
	}

	rel := path.Base(filepath.ToSlash(abs))
	if l.Dir != "" {
		if r, err := filepath.Rel(l.Dir, abs); err == nil && !strings.HasPrefix(r, "..") {
			rel = filepath.ToSlash(r)
		}
	}

	if obj.Name() == "" {
		base := path.Base(rel)
		obj.SetName(strings.TrimSuffix(base, path.Ext(base)))
	}

	return &scene.Record{
		Source:       data,
		AbsolutePath: abs,
		RelativePath: rel,
		Ext:          extension(ref, rel, ""),
	}, nil
}

// extension picks the file extension of a resource from its path, then its
// MIME type, then its kind.
func extension(ref scene.Ref, p, mimeType string) string {
	if ext := path.Ext(p); ext != "" {
		return strings.ToLower(ext)
	}
	if mimeType != "" {
		if ext := scene.ExtensionForMime(mimeType); ext != "" {
			return ext
		}
	}
	switch ref.Kind {
	case scene.KindBuffer:
		return ".bin"
	case scene.KindShader:
		return ".glsl"
	}
	return ""
}

func mimeTypeOf(g *scene.Graph, ref scene.Ref) string {
	switch ref.Kind {
	case scene.KindImage:
		return g.Doc.Images[ref.Index].MimeType
	case scene.KindCompressedImage:
		return g.Compressed[ref.Index][ref.Sub].MimeType
	case scene.KindAudio:
		return g.AudioClips[ref.Index].MimeType
	}
	return ""
}
