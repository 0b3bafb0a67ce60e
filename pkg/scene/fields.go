package scene

import (
	"encoding/json"
	"maps"
)

// fields holds the raw members of a JSON object so that unknown members
// survive a decode/encode cycle.
type fields map[string]json.RawMessage

// decodeFields unmarshals data into known and returns every member as raw JSON.
func decodeFields(data []byte, known any) (fields, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var rest fields
	if err := json.Unmarshal(data, &rest); err != nil {
		return nil, err
	}
	return rest, nil
}

// encodeFields marshals known over rest. Members listed in keys are owned by
// known and are dropped from rest first, so cleared optional fields vanish.
func encodeFields(known any, rest fields, keys ...string) ([]byte, error) {
	out := maps.Clone(rest)
	if out == nil {
		out = fields{}
	}
	for _, k := range keys {
		delete(out, k)
	}
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	var m fields
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		out[k] = v
	}
	return json.Marshal(out)
}

// rawJSON converts a decoded extension or extras value back to raw JSON.
func rawJSON(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return t, nil
	case []byte:
		return json.RawMessage(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// objectFields returns the members of an extension or extras value.
// A nil or non-object value yields an empty set.
func objectFields(v any) fields {
	raw, err := rawJSON(v)
	if err != nil || len(raw) == 0 {
		return fields{}
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return fields{}
	}
	return f
}

// Shader is a technique shader (KHR_techniques_webgl).
type Shader struct {
	Name       string `json:"name,omitempty"`
	Type       int    `json:"type"`
	URI        string `json:"uri,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`

	rest fields
}

var shaderKeys = []string{"name", "type", "uri", "bufferView"}

func (s *Shader) UnmarshalJSON(data []byte) error {
	type plain Shader
	var p plain
	rest, err := decodeFields(data, &p)
	if err != nil {
		return err
	}
	*s = Shader(p)
	s.rest = rest
	return nil
}

func (s *Shader) MarshalJSON() ([]byte, error) {
	type plain Shader
	return encodeFields(plain(*s), s.rest, shaderKeys...)
}

// Fragment and vertex shader stage constants.
const (
	FragmentShader = 35632
	VertexShader   = 35633
)

// Program links a vertex and a fragment shader.
type Program struct {
	Name           string `json:"name,omitempty"`
	FragmentShader int    `json:"fragmentShader"`
	VertexShader   int    `json:"vertexShader"`

	rest fields
}

var programKeys = []string{"name", "fragmentShader", "vertexShader"}

func (p *Program) UnmarshalJSON(data []byte) error {
	type plain Program
	var v plain
	rest, err := decodeFields(data, &v)
	if err != nil {
		return err
	}
	*p = Program(v)
	p.rest = rest
	return nil
}

func (p *Program) MarshalJSON() ([]byte, error) {
	type plain Program
	return encodeFields(plain(*p), p.rest, programKeys...)
}

// AudioClip is an entry of the Sein_audioClips extension.
type AudioClip struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	IsLazy     bool   `json:"isLazy,omitempty"`
	Mode       string `json:"mode,omitempty"`

	rest fields
}

var audioKeys = []string{"name", "uri", "bufferView", "mimeType", "isLazy", "mode"}

// Streaming reports whether the clip is played progressively, which
// requires it to stay a separate file.
func (a *AudioClip) Streaming() bool {
	return a.IsLazy && a.Mode == "Stream"
}

func (a *AudioClip) UnmarshalJSON(data []byte) error {
	type plain AudioClip
	var p plain
	rest, err := decodeFields(data, &p)
	if err != nil {
		return err
	}
	*a = AudioClip(p)
	a.rest = rest
	return nil
}

func (a *AudioClip) MarshalJSON() ([]byte, error) {
	type plain AudioClip
	return encodeFields(plain(*a), a.rest, audioKeys...)
}

// CompressedImage is an alternate encoding nested under an image's
// extras.compressedImage3DTiles.
type CompressedImage struct {
	Key        string `json:"-"`
	URI        string `json:"uri,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`

	rest fields
}

var compressedKeys = []string{"uri", "bufferView", "mimeType"}

func (c *CompressedImage) UnmarshalJSON(data []byte) error {
	type plain CompressedImage
	var p plain
	rest, err := decodeFields(data, &p)
	if err != nil {
		return err
	}
	*c = CompressedImage(p)
	c.rest = rest
	return nil
}

func (c *CompressedImage) MarshalJSON() ([]byte, error) {
	type plain CompressedImage
	return encodeFields(plain(*c), c.rest, compressedKeys...)
}

// ImageMeta is the authoring metadata carried in an image's extras.
type ImageMeta struct {
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	IsNormalMap bool   `json:"isNormalMap,omitempty"`
	UseMipmaps  *bool  `json:"useMipmaps,omitempty"`
}
