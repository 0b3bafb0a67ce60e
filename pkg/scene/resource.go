package scene

import (
	"github.com/qmuntal/gltf"
)

// Resource is the uniform view over elements that reference bytes by URI
// or by buffer view.
type Resource interface {
	URI() string
	SetURI(uri string)
	// BufferView returns nil for kinds that cannot live in a buffer view.
	BufferView() *int
	SetBufferView(idx *int)
	Name() string
	SetName(name string)
	SetMimeType(mimeType string)
}

// Object returns the resource addressed by ref, or nil when ref is out of range.
func (g *Graph) Object(ref Ref) Resource {
	switch ref.Kind {
	case KindBuffer:
		if ref.Index < len(g.Doc.Buffers) {
			return bufferResource{g.Doc.Buffers[ref.Index]}
		}
	case KindImage:
		if ref.Index < len(g.Doc.Images) {
			return imageResource{g.Doc.Images[ref.Index]}
		}
	case KindCompressedImage:
		if ref.Index < len(g.Compressed) && ref.Sub < len(g.Compressed[ref.Index]) {
			return compressedResource{g.Compressed[ref.Index][ref.Sub]}
		}
	case KindShader:
		if ref.Index < len(g.Shaders) {
			return shaderResource{g.Shaders[ref.Index]}
		}
	case KindAudio:
		if ref.Index < len(g.AudioClips) {
			return audioResource{g.AudioClips[ref.Index]}
		}
	}
	return nil
}

type bufferResource struct{ b *gltf.Buffer }

func (r bufferResource) URI() string { return r.b.URI }

// SetURI keeps Data in sync for embedded buffers, which the document
// encoder re-derives the URI from.
func (r bufferResource) SetURI(uri string) {
	r.b.URI = uri
	if !IsDataURI(uri) {
		r.b.Data = nil
	}
}
func (r bufferResource) BufferView() *int { return nil }
func (r bufferResource) SetBufferView(*int) {}
func (r bufferResource) Name() string { return r.b.Name }
func (r bufferResource) SetName(name string) { r.b.Name = name }
func (r bufferResource) SetMimeType(string) {}

type imageResource struct{ img *gltf.Image }

func (r imageResource) URI() string { return r.img.URI }
func (r imageResource) SetURI(uri string) { r.img.URI = uri }
func (r imageResource) BufferView() *int { return r.img.BufferView }
func (r imageResource) SetBufferView(idx *int) { r.img.BufferView = idx }
func (r imageResource) Name() string { return r.img.Name }
func (r imageResource) SetName(name string) { r.img.Name = name }
func (r imageResource) SetMimeType(mimeType string) { r.img.MimeType = mimeType }

type compressedResource struct{ c *CompressedImage }

func (r compressedResource) URI() string { return r.c.URI }
func (r compressedResource) SetURI(uri string) { r.c.URI = uri }
func (r compressedResource) BufferView() *int { return r.c.BufferView }
func (r compressedResource) SetBufferView(idx *int) { r.c.BufferView = idx }
func (r compressedResource) Name() string { return "" }
func (r compressedResource) SetName(string) {}
func (r compressedResource) SetMimeType(mimeType string) { r.c.MimeType = mimeType }

type shaderResource struct{ s *Shader }

func (r shaderResource) URI() string { return r.s.URI }
func (r shaderResource) SetURI(uri string) { r.s.URI = uri }
func (r shaderResource) BufferView() *int { return r.s.BufferView }
func (r shaderResource) SetBufferView(idx *int) { r.s.BufferView = idx }
func (r shaderResource) Name() string { return r.s.Name }
func (r shaderResource) SetName(name string) { r.s.Name = name }
func (r shaderResource) SetMimeType(string) {}

type audioResource struct{ a *AudioClip }

func (r audioResource) URI() string { return r.a.URI }
func (r audioResource) SetURI(uri string) { r.a.URI = uri }
func (r audioResource) BufferView() *int { return r.a.BufferView }
func (r audioResource) SetBufferView(idx *int) { r.a.BufferView = idx }
func (r audioResource) Name() string { return r.a.Name }
func (r audioResource) SetName(name string) { r.a.Name = name }
func (r audioResource) SetMimeType(mimeType string) { r.a.MimeType = mimeType }

// ProgramOf returns the first program using shader i and its index, or
// nil, -1.
func (g *Graph) ProgramOf(shader int) (*Program, int) {
	for i, p := range g.Programs {
		if p.FragmentShader == shader || p.VertexShader == shader {
			return p, i
		}
	}
	return nil, -1
}
