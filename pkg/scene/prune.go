package scene

import (
	"encoding/json"

	"github.com/qmuntal/gltf"
)

// remap maps old arena indices to new ones; -1 marks a removed element.
type remap []int

func newRemap(used []bool) (remap, int) {
	m := make(remap, len(used))
	n := 0
	for i, u := range used {
		if u {
			m[i] = n
			n++
		} else {
			m[i] = -1
		}
	}
	return m, n
}

func (m remap) ptr(p *int) *int {
	if p == nil || *p < 0 || *p >= len(m) || m[*p] < 0 {
		return nil
	}
	v := m[*p]
	return &v
}

func (m remap) index(i int) int {
	if i < 0 || i >= len(m) {
		return -1
	}
	return m[i]
}

func mark(used []bool, p *int) {
	if p != nil && *p >= 0 && *p < len(used) {
		used[*p] = true
	}
}

func intMember(f fields, key string) (int, bool) {
	raw, ok := f[key]
	if !ok {
		return 0, false
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// extensionIndices calls fn for each extension object carrying an integer
// member named key. fn returns the replacement value, or ok=false to leave
// it as is.
func extensionIndices(ext gltf.Extensions, key string, fn func(int) (int, bool)) {
	for name, v := range ext {
		f := objectFields(v)
		idx, ok := intMember(f, key)
		if !ok {
			continue
		}
		if n, change := fn(idx); change {
			raw, _ := json.Marshal(n)
			f[key] = raw
			b, _ := json.Marshal(f)
			ext[name] = json.RawMessage(b)
		}
	}
}

// RemoveUnused drops buffers, buffer views, images and shaders that no
// remaining element references. It marks reachable elements first, builds an
// old-to-new index table per arena, then rewrites every reference and record
// key in a single sweep.
func (g *Graph) RemoveUnused() {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc := g.Doc

	// Mark.
	usedImages := make([]bool, len(doc.Images))
	for _, t := range doc.Textures {
		mark(usedImages, t.Source)
		extensionIndices(t.Extensions, "source", func(i int) (int, bool) {
			mark(usedImages, &i)
			return 0, false
		})
	}

	usedShaders := make([]bool, len(g.Shaders))
	for _, p := range g.Programs {
		mark(usedShaders, &p.FragmentShader)
		mark(usedShaders, &p.VertexShader)
	}

	usedViews := make([]bool, len(doc.BufferViews))
	for _, a := range doc.Accessors {
		mark(usedViews, a.BufferView)
		if a.Sparse != nil {
			mark(usedViews, &a.Sparse.Indices.BufferView)
			mark(usedViews, &a.Sparse.Values.BufferView)
		}
	}
	for i, img := range doc.Images {
		if !usedImages[i] {
			continue
		}
		mark(usedViews, img.BufferView)
		if i < len(g.Compressed) {
			for _, c := range g.Compressed[i] {
				mark(usedViews, c.BufferView)
			}
		}
	}
	for i, s := range g.Shaders {
		if usedShaders[i] {
			mark(usedViews, s.BufferView)
		}
	}
	for _, a := range g.AudioClips {
		mark(usedViews, a.BufferView)
	}
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			extensionIndices(p.Extensions, "bufferView", func(i int) (int, bool) {
				mark(usedViews, &i)
				return 0, false
			})
		}
	}

	usedBuffers := make([]bool, len(doc.Buffers))
	for i, v := range doc.BufferViews {
		if usedViews[i] && v.Buffer >= 0 && v.Buffer < len(usedBuffers) {
			usedBuffers[v.Buffer] = true
		}
	}

	imageMap, _ := newRemap(usedImages)
	shaderMap, _ := newRemap(usedShaders)
	viewMap, _ := newRemap(usedViews)
	bufferMap, _ := newRemap(usedBuffers)

	// Rewrite references.
	for _, t := range doc.Textures {
		t.Source = imageMap.ptr(t.Source)
		extensionIndices(t.Extensions, "source", func(i int) (int, bool) {
			return imageMap.index(i), true
		})
	}
	for _, p := range g.Programs {
		p.FragmentShader = shaderMap.index(p.FragmentShader)
		p.VertexShader = shaderMap.index(p.VertexShader)
	}
	for _, a := range doc.Accessors {
		a.BufferView = viewMap.ptr(a.BufferView)
		if a.Sparse != nil {
			a.Sparse.Indices.BufferView = viewMap.index(a.Sparse.Indices.BufferView)
			a.Sparse.Values.BufferView = viewMap.index(a.Sparse.Values.BufferView)
		}
	}
	for _, img := range doc.Images {
		img.BufferView = viewMap.ptr(img.BufferView)
	}
	for i := range g.Compressed {
		for _, c := range g.Compressed[i] {
			c.BufferView = viewMap.ptr(c.BufferView)
		}
	}
	for _, s := range g.Shaders {
		s.BufferView = viewMap.ptr(s.BufferView)
	}
	for _, a := range g.AudioClips {
		a.BufferView = viewMap.ptr(a.BufferView)
	}
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			extensionIndices(p.Extensions, "bufferView", func(i int) (int, bool) {
				return viewMap.index(i), true
			})
		}
	}
	for _, v := range doc.BufferViews {
		v.Buffer = bufferMap.index(v.Buffer)
	}

	// Compact arenas.
	doc.Images = compact(doc.Images, usedImages)
	if len(g.Compressed) == len(usedImages) {
		g.Compressed = compact(g.Compressed, usedImages)
	}
	g.Shaders = compact(g.Shaders, usedShaders)
	doc.BufferViews = compact(doc.BufferViews, usedViews)
	doc.Buffers = compact(doc.Buffers, usedBuffers)

	// Move records.
	records := make(map[Ref]*Record, len(g.records))
	for ref, rec := range g.records {
		var m remap
		switch ref.Kind {
		case KindBuffer:
			m = bufferMap
		case KindImage, KindCompressedImage:
			m = imageMap
		case KindShader:
			m = shaderMap
		default:
			records[ref] = rec
			continue
		}
		if n := m.index(ref.Index); n >= 0 {
			ref.Index = n
			records[ref] = rec
		}
	}
	g.records = records
}

func compact[T any](s []T, keep []bool) []T {
	out := s[:0]
	for i, v := range s {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}
