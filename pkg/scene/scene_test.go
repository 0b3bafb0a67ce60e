package scene

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/scenepack/pkg/glb"
)

const techniqueScene = `{
  "asset": {"version": "2.0"},
  "extensionsUsed": ["KHR_techniques_webgl", "Sein_audioClips"],
  "extensions": {
    "KHR_techniques_webgl": {
      "programs": [{"name": "lit", "fragmentShader": 1, "vertexShader": 0, "glExtensions": ["OES_standard_derivatives"]}],
      "shaders": [
        {"type": 35633, "uri": "lit.vert", "custom": 7},
        {"type": 35632, "uri": "lit.frag"},
        {"type": 35632, "uri": "orphan.frag"}
      ],
      "techniques": [{"program": 0}]
    },
    "Sein_audioClips": {
      "clips": [{"uri": "bgm.mp3", "isLazy": true, "mode": "Stream", "volume": 0.5}]
    }
  },
  "images": [
    {"uri": "albedo.png", "extras": {"isNormalMap": true, "useMipmaps": false,
      "compressedImage3DTiles": {"s3tc": {"uri": "albedo.dds"}, "etc1": {"uri": "albedo-etc.ktx"}}}}
  ],
  "textures": [{"source": 0}]
}`

func TestParsePreservesExtensions(t *testing.T) {
	g, err := Parse([]byte(techniqueScene))
	require.NoError(t, err)

	require.Len(t, g.Shaders, 3)
	require.Len(t, g.Programs, 1)
	require.Len(t, g.AudioClips, 1)
	assert.Equal(t, VertexShader, g.Shaders[0].Type)
	assert.True(t, g.AudioClips[0].Streaming())

	require.Len(t, g.Compressed, 1)
	require.Len(t, g.Compressed[0], 2)
	assert.Equal(t, "etc1", g.Compressed[0][0].Key, "compressed variants are sorted by key")

	meta, ok := g.ImageMeta(0)
	require.True(t, ok)
	assert.True(t, meta.IsNormalMap)
	require.NotNil(t, meta.UseMipmaps)
	assert.False(t, *meta.UseMipmaps)

	g.Shaders[1].URI = "changed.frag"

	out, err := g.Marshal()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	ext := doc["extensions"].(map[string]any)
	tech := ext["KHR_techniques_webgl"].(map[string]any)
	shaders := tech["shaders"].([]any)
	assert.Equal(t, float64(7), shaders[0].(map[string]any)["custom"], "unknown shader members survive")
	assert.Equal(t, "changed.frag", shaders[1].(map[string]any)["uri"])
	assert.NotNil(t, tech["techniques"], "unknown extension members survive")
	program := tech["programs"].([]any)[0].(map[string]any)
	assert.NotNil(t, program["glExtensions"])

	clip := ext["Sein_audioClips"].(map[string]any)["clips"].([]any)[0].(map[string]any)
	assert.Equal(t, 0.5, clip["volume"])
}

func TestParseGLB(t *testing.T) {
	jsonChunk := []byte(`{"asset":{"version":"2.0"},"buffers":[{"byteLength":3}]}`)
	g, err := Parse(glb.Encode(jsonChunk, []byte{1, 2, 3}))
	require.NoError(t, err)

	rec := g.Record(Ref{Kind: KindBuffer})
	require.NotNil(t, rec)
	assert.Equal(t, []byte{1, 2, 3}, rec.Source)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestMergeBuffersRoundTrip(t *testing.T) {
	g := &Graph{Doc: &gltf.Document{}}
	sources := [][]byte{
		{1, 2, 3},
		{4, 5, 6, 7, 8},
		bytes.Repeat([]byte{9}, 12),
		{10},
	}
	views := make([]int, len(sources))
	for i, src := range sources {
		views[i] = g.AddBuffer(src)
	}
	require.Len(t, g.Doc.Buffers, len(sources))

	require.NoError(t, g.MergeBuffers("merged"))

	require.Len(t, g.Doc.Buffers, 1)
	assert.Equal(t, "merged", g.Doc.Buffers[0].Name)
	merged := g.Record(Ref{Kind: KindBuffer}).Source

	// 3 (+1 pad) + 5 (+3 pad) + 12 + 1
	assert.Equal(t, 3+1+5+3+12+1, len(merged))
	assert.Equal(t, len(merged), g.Doc.Buffers[0].ByteLength)

	for i, src := range sources {
		v := g.Doc.BufferViews[views[i]]
		assert.Equal(t, 0, v.Buffer)
		assert.Zero(t, v.ByteOffset%mergeAlignment)
		assert.Equal(t, src, merged[v.ByteOffset:v.ByteOffset+v.ByteLength], "slice %d", i)
	}
}

func TestMergeBuffersSharesIdenticalSlices(t *testing.T) {
	g := &Graph{Doc: &gltf.Document{}}
	view := g.AddBuffer([]byte{1, 2, 3, 4})
	g.Doc.BufferViews = append(g.Doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteLength: 4})

	require.NoError(t, g.MergeBuffers(""))

	assert.Len(t, g.Record(Ref{Kind: KindBuffer}).Source, 4)
	assert.Equal(t, g.Doc.BufferViews[view].ByteOffset, g.Doc.BufferViews[1].ByteOffset)
}

func TestMergeBuffersKeepsRemoteBuffers(t *testing.T) {
	g := &Graph{Doc: &gltf.Document{
		Buffers:     []*gltf.Buffer{{URI: "https://cdn.example.com/a.bin", ByteLength: 8}},
		BufferViews: []*gltf.BufferView{{Buffer: 0, ByteLength: 8}},
	}}
	g.SetRecord(Ref{Kind: KindBuffer}, &Record{External: true})
	view := g.AddBuffer([]byte{1, 2})

	require.NoError(t, g.MergeBuffers("m"))

	require.Len(t, g.Doc.Buffers, 2)
	assert.Equal(t, "m", g.Doc.Buffers[0].Name)
	assert.Equal(t, "https://cdn.example.com/a.bin", g.Doc.Buffers[1].URI)
	assert.Equal(t, 1, g.Doc.BufferViews[0].Buffer)
	assert.Equal(t, 0, g.Doc.BufferViews[view].Buffer)
	assert.True(t, g.Record(Ref{Kind: KindBuffer, Index: 1}).External)
}

func TestMergeBuffersOutOfBounds(t *testing.T) {
	g := &Graph{Doc: &gltf.Document{
		Buffers:     []*gltf.Buffer{{ByteLength: 2}},
		BufferViews: []*gltf.BufferView{{Buffer: 0, ByteOffset: 1, ByteLength: 4}},
	}}
	g.SetRecord(Ref{Kind: KindBuffer}, &Record{Source: []byte{1, 2}})
	assert.Error(t, g.MergeBuffers(""))
}

func ptr(i int) *int { return &i }

func TestRemoveUnused(t *testing.T) {
	g, err := Parse([]byte(techniqueScene))
	require.NoError(t, err)

	// Image 0 unused, image 1 used by texture 0 through a view.
	g.Doc.Images = []*gltf.Image{{URI: "unused.png"}, {Name: "used"}}
	g.Compressed = make([][]*CompressedImage, 2)
	g.Doc.Textures = []*gltf.Texture{{Source: ptr(1)}}

	unusedView := g.AddBuffer([]byte{0})
	imageView := g.AddBuffer([]byte{1, 1})
	shaderView := g.AddBuffer([]byte{2})
	g.Doc.Images[1].BufferView = ptr(imageView)
	g.Shaders[1].BufferView = ptr(shaderView)
	g.Doc.Accessors = []*gltf.Accessor{{BufferView: ptr(imageView)}}
	g.SetRecord(Ref{Kind: KindImage, Index: 1}, &Record{RelativePath: "used.png"})
	g.SetRecord(Ref{Kind: KindImage, Index: 0}, &Record{RelativePath: "unused.png"})
	require.Equal(t, 0, unusedView)

	g.RemoveUnused()

	require.Len(t, g.Doc.Images, 1)
	assert.Equal(t, "used", g.Doc.Images[0].Name)
	assert.Equal(t, 0, *g.Doc.Textures[0].Source)
	assert.Equal(t, "used.png", g.Record(Ref{Kind: KindImage, Index: 0}).RelativePath)
	assert.Nil(t, g.Record(Ref{Kind: KindImage, Index: 1}))

	// orphan.frag is dropped; program indices still resolve.
	require.Len(t, g.Shaders, 2)
	assert.Equal(t, 1, g.Programs[0].FragmentShader)
	assert.Equal(t, 0, g.Programs[0].VertexShader)

	require.Len(t, g.Doc.BufferViews, 2)
	require.Len(t, g.Doc.Buffers, 2)
	assertReferencesInBounds(t, g)
	assert.Equal(t, []byte{1, 1}, g.Record(Ref{Kind: KindBuffer, Index: g.Doc.BufferViews[*g.Doc.Images[0].BufferView].Buffer}).Source)
}

func TestRemoveUnusedDracoAndSparse(t *testing.T) {
	g := &Graph{Doc: &gltf.Document{}}
	dead := g.AddBuffer([]byte{0})
	draco := g.AddBuffer([]byte{1})
	sparse := g.AddBuffer([]byte{2})
	require.Equal(t, 0, dead)

	g.Doc.Meshes = []*gltf.Mesh{{Primitives: []*gltf.Primitive{{
		Extensions: gltf.Extensions{ExtDraco: json.RawMessage(`{"bufferView":1,"attributes":{"POSITION":0}}`)},
	}}}}
	g.Doc.Accessors = []*gltf.Accessor{{Sparse: &gltf.Sparse{
		Indices: gltf.SparseIndices{BufferView: sparse},
		Values:  gltf.SparseValues{BufferView: sparse},
	}}}

	g.RemoveUnused()

	require.Len(t, g.Doc.BufferViews, 2)
	raw, err := rawJSON(g.Doc.Meshes[0].Primitives[0].Extensions[ExtDraco])
	require.NoError(t, err)
	var ext struct {
		BufferView int `json:"bufferView"`
	}
	require.NoError(t, json.Unmarshal(raw, &ext))
	assert.Equal(t, draco-1, ext.BufferView)
	assert.Equal(t, sparse-1, g.Doc.Accessors[0].Sparse.Indices.BufferView)
	assertReferencesInBounds(t, g)
}

func assertReferencesInBounds(t *testing.T, g *Graph) {
	t.Helper()
	inViews := func(p *int) {
		if p != nil {
			assert.True(t, *p >= 0 && *p < len(g.Doc.BufferViews), "bufferView %d out of range", *p)
		}
	}
	for _, v := range g.Doc.BufferViews {
		assert.True(t, v.Buffer >= 0 && v.Buffer < len(g.Doc.Buffers), "buffer %d out of range", v.Buffer)
	}
	for _, img := range g.Doc.Images {
		inViews(img.BufferView)
	}
	for _, s := range g.Shaders {
		inViews(s.BufferView)
	}
	for _, a := range g.AudioClips {
		inViews(a.BufferView)
	}
	for _, a := range g.Doc.Accessors {
		inViews(a.BufferView)
	}
	for _, tex := range g.Doc.Textures {
		if tex.Source != nil {
			assert.True(t, *tex.Source < len(g.Doc.Images), "image %d out of range", *tex.Source)
		}
	}
	for _, p := range g.Programs {
		assert.True(t, p.FragmentShader < len(g.Shaders))
		assert.True(t, p.VertexShader < len(g.Shaders))
	}
}

func TestClone(t *testing.T) {
	g, err := Parse([]byte(techniqueScene))
	require.NoError(t, err)
	g.SetRecord(Ref{Kind: KindImage}, &Record{Source: []byte("png"), RelativePath: "albedo.png"})

	c, err := g.Clone()
	require.NoError(t, err)

	c.Doc.Images[0].URI = "other.png"
	c.Shaders[0].URI = "other.vert"
	c.Record(Ref{Kind: KindImage}).RelativePath = "other.png"

	assert.Equal(t, "albedo.png", g.Doc.Images[0].URI)
	assert.Equal(t, "lit.vert", g.Shaders[0].URI)
	assert.Equal(t, "albedo.png", g.Record(Ref{Kind: KindImage}).RelativePath)
	assert.Equal(t, []byte("png"), c.Record(Ref{Kind: KindImage}).Source)
	require.Len(t, c.Compressed, 1)
}
