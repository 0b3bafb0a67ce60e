// Package glb reads and writes the binary glTF container (GLB version 2).
package glb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Container constants.
const (
	Magic     = 0x46546C67 // "glTF"
	Version   = 2
	ChunkJSON = 0x4E4F534A // "JSON"
	ChunkBIN  = 0x004E4942 // "BIN\0"

	headerSize      = 12
	chunkHeaderSize = 8
)

// GLB format errors.
var (
	ErrInvalidMagic       = errors.New("invalid GLB magic: expected 'glTF'")
	ErrUnsupportedVersion = errors.New("unsupported GLB version")
	ErrTruncated          = errors.New("truncated GLB data")
	ErrMissingJSON        = errors.New("GLB has no JSON chunk")
)

// Header is the 12-byte file header.
type Header struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

// ChunkHeader precedes every chunk payload.
type ChunkHeader struct {
	Length uint32
	Type   uint32
}

// IsGLB reports whether data starts with a GLB header.
func IsGLB(data []byte) bool {
	return len(data) >= headerSize && binary.LittleEndian.Uint32(data) == Magic
}

// Decode splits a GLB into its JSON and BIN chunk payloads. bin is nil when
// the container carries no BIN chunk. Trailing JSON padding is trimmed.
func Decode(data []byte) (jsonChunk, bin []byte, err error) {
	r := bytes.NewReader(data)

	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, nil, ErrTruncated
	}
	if h.Magic != Magic {
		return nil, nil, ErrInvalidMagic
	}
	if h.Version != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if int(h.Length) > len(data) {
		return nil, nil, ErrTruncated
	}
	data = data[:h.Length]

	offset := headerSize
	for offset < len(data) {
		if offset+chunkHeaderSize > len(data) {
			return nil, nil, ErrTruncated
		}
		length := int(binary.LittleEndian.Uint32(data[offset:]))
		typ := binary.LittleEndian.Uint32(data[offset+4:])
		offset += chunkHeaderSize
		if offset+length > len(data) {
			return nil, nil, ErrTruncated
		}
		payload := data[offset : offset+length]
		offset += length

		switch typ {
		case ChunkJSON:
			if jsonChunk == nil {
				jsonChunk = bytes.TrimRight(payload, " \x00")
			}
		case ChunkBIN:
			if bin == nil {
				bin = payload
			}
		}
		// Unknown chunk types are skipped.
	}

	if jsonChunk == nil {
		return nil, nil, ErrMissingJSON
	}
	return jsonChunk, bin, nil
}

// Encode assembles a GLB from a JSON document and an optional binary buffer.
// The JSON chunk is padded with spaces and the BIN chunk with zeros to a
// 4-byte boundary. The BIN chunk is omitted when bin is empty.
func Encode(jsonChunk, bin []byte) []byte {
	jsonLen := align4(len(jsonChunk))
	total := headerSize + chunkHeaderSize + jsonLen
	binLen := 0
	if len(bin) > 0 {
		binLen = align4(len(bin))
		total += chunkHeaderSize + binLen
	}

	var buf bytes.Buffer
	buf.Grow(total)

	binary.Write(&buf, binary.LittleEndian, Header{Magic: Magic, Version: Version, Length: uint32(total)})
	binary.Write(&buf, binary.LittleEndian, ChunkHeader{Length: uint32(jsonLen), Type: ChunkJSON})
	buf.Write(jsonChunk)
	for i := len(jsonChunk); i < jsonLen; i++ {
		buf.WriteByte(' ')
	}

	if binLen > 0 {
		binary.Write(&buf, binary.LittleEndian, ChunkHeader{Length: uint32(binLen), Type: ChunkBIN})
		buf.Write(bin)
		for i := len(bin); i < binLen; i++ {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func align4(n int) int {
	return (n + 3) &^ 3
}
