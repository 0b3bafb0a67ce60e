package scene

import (
	"fmt"

	"github.com/qmuntal/gltf"
)

// mergeAlignment is the byte alignment of every slice in a merged buffer.
const mergeAlignment = 4

// AddBuffer stores src in a new buffer with a single view spanning it and
// returns the view index.
func (g *Graph) AddBuffer(src []byte) int {
	g.Doc.Buffers = append(g.Doc.Buffers, &gltf.Buffer{ByteLength: len(src)})
	g.SetRecord(Ref{Kind: KindBuffer, Index: len(g.Doc.Buffers) - 1}, &Record{Source: src, Ext: ".bin"})

	g.Doc.BufferViews = append(g.Doc.BufferViews, &gltf.BufferView{
		Buffer:     len(g.Doc.Buffers) - 1,
		ByteLength: len(src),
	})
	return len(g.Doc.BufferViews) - 1
}

// MergeBuffers concatenates every buffer view slice of every buffer that has
// bytes into one buffer at index 0 and rewrites the views' offsets. Slices
// are visited in buffer order, then view order, and aligned to 4 bytes.
// Views addressing the exact same slice keep sharing it. Buffers without
// bytes (remote references) are kept after the merged buffer.
func (g *Graph) MergeBuffers(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	buffers := g.Doc.Buffers
	if len(buffers) == 0 {
		return nil
	}

	sourced := make([]bool, len(buffers))
	anySourced := false
	for i := range buffers {
		rec := g.records[Ref{Kind: KindBuffer, Index: i}]
		sourced[i] = rec != nil && rec.Source != nil && !rec.External
		anySourced = anySourced || sourced[i]
	}
	if !anySourced {
		return nil
	}

	newIndex := make([]int, len(buffers))
	next := 1
	for i := range buffers {
		if sourced[i] {
			newIndex[i] = 0
		} else {
			newIndex[i] = next
			next++
		}
	}

	for i, v := range g.Doc.BufferViews {
		if v.Buffer < 0 || v.Buffer >= len(buffers) {
			return fmt.Errorf("bufferView %d references buffer %d out of range", i, v.Buffer)
		}
	}

	type slice struct{ buffer, offset, length int }
	seen := make(map[slice]int)
	var merged []byte
	moved := make([]bool, len(g.Doc.BufferViews))

	for bi := range buffers {
		if !sourced[bi] {
			continue
		}
		src := g.records[Ref{Kind: KindBuffer, Index: bi}].Source
		for vi, v := range g.Doc.BufferViews {
			if v.Buffer != bi || moved[vi] {
				continue
			}
			end := v.ByteOffset + v.ByteLength
			if v.ByteOffset < 0 || end > len(src) {
				return fmt.Errorf("bufferView %d [%d:%d] exceeds buffer %d length %d", vi, v.ByteOffset, end, bi, len(src))
			}
			key := slice{bi, v.ByteOffset, v.ByteLength}
			offset, ok := seen[key]
			if !ok {
				for len(merged)%mergeAlignment != 0 {
					merged = append(merged, 0)
				}
				offset = len(merged)
				merged = append(merged, src[v.ByteOffset:end]...)
				seen[key] = offset
			}
			v.ByteOffset = offset
			moved[vi] = true
		}
	}

	for vi, v := range g.Doc.BufferViews {
		if !moved[vi] {
			v.Buffer = newIndex[v.Buffer]
		} else {
			v.Buffer = 0
		}
	}

	out := []*gltf.Buffer{{Name: name, ByteLength: len(merged)}}
	records := make(map[Ref]*Record, len(g.records))
	for ref, rec := range g.records {
		if ref.Kind != KindBuffer {
			records[ref] = rec
		}
	}
	records[Ref{Kind: KindBuffer}] = &Record{Source: merged, Ext: ".bin"}
	for i, b := range buffers {
		if sourced[i] {
			continue
		}
		if rec, ok := g.records[Ref{Kind: KindBuffer, Index: i}]; ok {
			records[Ref{Kind: KindBuffer, Index: newIndex[i]}] = rec
		}
		out = append(out, b)
	}

	g.Doc.Buffers = out
	g.records = records
	return nil
}
