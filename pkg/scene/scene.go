// Package scene models a glTF scene graph as index-addressed arenas with an
// out-of-band record for every resource the packing pipeline touches.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/scenepack/pkg/glb"
)

// Extension names understood by the graph.
const (
	ExtTechniques     = "KHR_techniques_webgl"
	ExtAudioClips     = "Sein_audioClips"
	ExtTextureImprove = "Sein_textureImprove"
	ExtDraco          = "KHR_draco_mesh_compression"

	extrasCompressed = "compressedImage3DTiles"
)

// ErrInvalidDocument is returned when the input is neither glTF JSON nor GLB.
var ErrInvalidDocument = errors.New("invalid scene document")

// Kind identifies a resource arena.
type Kind int

// Resource kinds.
const (
	KindBuffer Kind = iota
	KindImage
	KindCompressedImage
	KindShader
	KindAudio
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	case KindCompressedImage:
		return "compressedImage"
	case KindShader:
		return "shader"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Ref addresses one resource. Sub is only meaningful for compressed images,
// where Index is the parent image and Sub the position in its variant list.
type Ref struct {
	Kind  Kind
	Index int
	Sub   int
}

func (r Ref) String() string {
	if r.Kind == KindCompressedImage {
		return fmt.Sprintf("%s[%d.%d]", r.Kind, r.Index, r.Sub)
	}
	return fmt.Sprintf("%s[%d]", r.Kind, r.Index)
}

// Record is the pipeline-private state of one resource. It is never
// serialized.
type Record struct {
	Source       []byte
	AbsolutePath string
	RelativePath string
	// Ext is the file extension (with dot) of the resource's encoding.
	Ext string
	// External marks a remote resource whose reference is kept verbatim.
	External bool
}

// Graph is a mutable working copy of a scene. Arrays are addressed by index;
// indices are only valid until the next RemoveUnused or MergeBuffers.
type Graph struct {
	Doc        *gltf.Document
	Shaders    []*Shader
	Programs   []*Program
	AudioClips []*AudioClip
	// Compressed holds nested alternate encodings, aligned with Doc.Images.
	Compressed [][]*CompressedImage

	techniques fields
	audio      fields

	mu      sync.Mutex
	records map[Ref]*Record
}

// Parse decodes a glTF JSON or GLB document. The BIN chunk of a GLB becomes
// the record source of buffer 0.
func Parse(data []byte) (*Graph, error) {
	var bin []byte
	if glb.IsGLB(data) {
		j, b, err := glb.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decoding GLB: %w", err)
		}
		data, bin = j, b
	}

	doc := new(gltf.Document)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	g := &Graph{Doc: doc, records: make(map[Ref]*Record)}
	if err := g.loadExtensions(); err != nil {
		return nil, err
	}
	if err := g.loadCompressedImages(); err != nil {
		return nil, err
	}

	for _, b := range doc.Buffers {
		if IsDataURI(b.URI) {
			data, _, err := DecodeDataURI(b.URI)
			if err != nil {
				return nil, fmt.Errorf("decoding buffer data URI: %w", err)
			}
			b.Data = data
		}
	}

	if bin != nil && len(doc.Buffers) > 0 && doc.Buffers[0].URI == "" {
		n := doc.Buffers[0].ByteLength
		if n > len(bin) {
			return nil, fmt.Errorf("%w: GLB buffer length %d exceeds BIN chunk %d", ErrInvalidDocument, n, len(bin))
		}
		g.records[Ref{Kind: KindBuffer}] = &Record{Source: bin[:n], Ext: ".bin"}
	}
	return g, nil
}

func (g *Graph) loadExtensions() error {
	if raw, ok := g.Doc.Extensions[ExtTechniques]; ok {
		g.techniques = objectFields(raw)
		if s, ok := g.techniques["shaders"]; ok {
			if err := json.Unmarshal(s, &g.Shaders); err != nil {
				return fmt.Errorf("decoding %s shaders: %w", ExtTechniques, err)
			}
		}
		if p, ok := g.techniques["programs"]; ok {
			if err := json.Unmarshal(p, &g.Programs); err != nil {
				return fmt.Errorf("decoding %s programs: %w", ExtTechniques, err)
			}
		}
	}
	if raw, ok := g.Doc.Extensions[ExtAudioClips]; ok {
		g.audio = objectFields(raw)
		if c, ok := g.audio["clips"]; ok {
			if err := json.Unmarshal(c, &g.AudioClips); err != nil {
				return fmt.Errorf("decoding %s clips: %w", ExtAudioClips, err)
			}
		}
	}
	return nil
}

func (g *Graph) loadCompressedImages() error {
	g.Compressed = make([][]*CompressedImage, len(g.Doc.Images))
	for i, img := range g.Doc.Images {
		raw, ok := objectFields(img.Extras)[extrasCompressed]
		if !ok {
			continue
		}
		var byKey map[string]*CompressedImage
		if err := json.Unmarshal(raw, &byKey); err != nil {
			return fmt.Errorf("decoding image %d compressed variants: %w", i, err)
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c := byKey[k]
			c.Key = k
			g.Compressed[i] = append(g.Compressed[i], c)
		}
	}
	return nil
}

// ImageMeta returns the authoring metadata of image i, and whether any was declared.
func (g *Graph) ImageMeta(i int) (ImageMeta, bool) {
	var m ImageMeta
	raw, err := rawJSON(g.Doc.Images[i].Extras)
	if err != nil || len(raw) == 0 || string(raw) == "null" {
		return m, false
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, false
	}
	return m, true
}

// Marshal serializes the graph. Records are never written; custom arenas
// are folded back into their extensions on a copy of the document.
func (g *Graph) Marshal() ([]byte, error) {
	doc := *g.Doc
	doc.Extensions = maps.Clone(g.Doc.Extensions)

	if g.techniques != nil || len(g.Shaders) > 0 || len(g.Programs) > 0 {
		f := maps.Clone(g.techniques)
		if f == nil {
			f = fields{}
		}
		if err := setMember(f, "shaders", g.Shaders); err != nil {
			return nil, err
		}
		if err := setMember(f, "programs", g.Programs); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		if doc.Extensions == nil {
			doc.Extensions = gltf.Extensions{}
		}
		doc.Extensions[ExtTechniques] = json.RawMessage(raw)
	}

	if g.audio != nil || len(g.AudioClips) > 0 {
		f := maps.Clone(g.audio)
		if f == nil {
			f = fields{}
		}
		if err := setMember(f, "clips", g.AudioClips); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		if doc.Extensions == nil {
			doc.Extensions = gltf.Extensions{}
		}
		doc.Extensions[ExtAudioClips] = json.RawMessage(raw)
	}

	if err := g.foldCompressedImages(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(&doc)
}

func (g *Graph) foldCompressedImages(doc *gltf.Document) error {
	dirty := false
	for i := range g.Compressed {
		if len(g.Compressed[i]) > 0 {
			dirty = true
			break
		}
	}
	if !dirty {
		return nil
	}
	images := make([]*gltf.Image, len(g.Doc.Images))
	for i, img := range g.Doc.Images {
		cp := *img
		images[i] = &cp
		if i >= len(g.Compressed) || len(g.Compressed[i]) == 0 {
			continue
		}
		byKey := make(map[string]*CompressedImage, len(g.Compressed[i]))
		for _, c := range g.Compressed[i] {
			byKey[c.Key] = c
		}
		raw, err := json.Marshal(byKey)
		if err != nil {
			return err
		}
		extras := objectFields(img.Extras)
		extras[extrasCompressed] = raw
		cp.Extras = extras
	}
	doc.Images = images
	return nil
}

func setMember[T any](f fields, key string, v []T) error {
	if len(v) == 0 {
		delete(f, key)
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f[key] = raw
	return nil
}

// Record returns the record of ref, or nil.
func (g *Graph) Record(ref Ref) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records[ref]
}

// SetRecord attaches rec to ref. Safe for concurrent use.
func (g *Graph) SetRecord(ref Ref, rec *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.records == nil {
		g.records = make(map[Ref]*Record)
	}
	g.records[ref] = rec
}

// ClearRecords drops every record.
func (g *Graph) ClearRecords() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = make(map[Ref]*Record)
}

// Refs lists the current resources of a kind in arena order.
func (g *Graph) Refs(kind Kind) []Ref {
	var refs []Ref
	switch kind {
	case KindBuffer:
		for i := range g.Doc.Buffers {
			refs = append(refs, Ref{Kind: kind, Index: i})
		}
	case KindImage:
		for i := range g.Doc.Images {
			refs = append(refs, Ref{Kind: kind, Index: i})
		}
	case KindCompressedImage:
		for i := range g.Compressed {
			for j := range g.Compressed[i] {
				refs = append(refs, Ref{Kind: kind, Index: i, Sub: j})
			}
		}
	case KindShader:
		for i := range g.Shaders {
			refs = append(refs, Ref{Kind: kind, Index: i})
		}
	case KindAudio:
		for i := range g.AudioClips {
			refs = append(refs, Ref{Kind: kind, Index: i})
		}
	}
	return refs
}

// Clone returns an independent copy of the graph. Records are copied
// shallowly; their byte slices are shared and must be treated as read-only.
func (g *Graph) Clone() (*Graph, error) {
	data, err := g.Marshal()
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for ref, rec := range g.records {
		cp := *rec
		c.records[ref] = &cp
	}
	return c, nil
}
