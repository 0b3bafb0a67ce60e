package scene

import (
	"bytes"
	"mime"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vincent-petithory/dataurl"
)

// Common extension to mime type mappings. Lookups fall back to the
// platform mime table for anything missing here.
var mimeTypes = map[string]string{
	".bin":  "application/octet-stream",
	".glsl": "text/plain",
	".vert": "text/plain",
	".frag": "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".ktx":  "image/ktx",
	".ktx2": "image/ktx2",
	".crn":  "image/crn",
	".dds":  "image/vnd-ms.dds",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".gltf": "model/gltf+json",
	".glb":  "model/gltf-binary",
}

// MimeType returns the mime type for a file extension (with leading dot).
func MimeType(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// Drop parameters such as charset.
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}

// ExtensionForMime returns the preferred file extension for a mime type,
// or "" when unknown.
func ExtensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "text/plain":
		return ".glsl"
	}
	for ext, t := range mimeTypes {
		if t == mimeType {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

var (
	ktx1Magic = []byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}
	ktx2Magic = []byte{0xAB, 'K', 'T', 'X', ' ', '2', '0', 0xBB, '\r', '\n', 0x1A, '\n'}
	crnMagic  = []byte{'H', 'x'}
)

// ImageExtension sniffs the container format of image bytes.
// Unknown data is reported as ".bin".
func ImageExtension(data []byte) string {
	switch {
	case bytes.HasPrefix(data, ktx1Magic):
		return ".ktx"
	case bytes.HasPrefix(data, ktx2Magic):
		return ".ktx2"
	case bytes.HasPrefix(data, crnMagic):
		return ".crn"
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ".bin"
	}
	if kind.Extension == "jpeg" {
		return ".jpg"
	}
	return "." + kind.Extension
}

// IsDataURI reports whether uri is an RFC 2397 data URI.
func IsDataURI(uri string) bool {
	return strings.HasPrefix(uri, "data:")
}

// IsRemoteURI reports whether uri points to a network location.
func IsRemoteURI(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")
}

// DecodeDataURI decodes a base64 or percent-encoded data URI. The returned
// mime type has no parameters.
func DecodeDataURI(uri string) ([]byte, string, error) {
	du, err := dataurl.DecodeString(uri)
	if err != nil {
		return nil, "", err
	}
	return du.Data, du.MediaType.ContentType(), nil
}

// EncodeDataURI encodes data as a base64 data URI.
func EncodeDataURI(data []byte, mimeType string) string {
	return dataurl.New(data, mimeType).String()
}
