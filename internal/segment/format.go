package segment

import (
	"encoding/binary"
	"errors"
)

// signature is the fixed magic prefix of every segment file (spec §4.5 /
// §6: "13-byte 'Cinchapi Inc.' signature").
const signature = "Cinchapi Inc."

// schemaVersion is the current on-disk segment format version.
const schemaVersion byte = 1

// headerSize is the fixed byte length of a segment file header: signature
// (13) + schema_version (1) + count (8) + minTs/maxTs/syncTs (24) +
// reserved (32) + three filter sizes (24) + three manifest lengths (24) +
// three chunk sizes (24).
const headerSize = len(signature) + 1 + 8 + 24 + 32 + 24 + 24 + 24

// ErrBadSignature is returned by decodeHeader when the leading magic bytes
// do not match signature (spec §4.5 Load: "fails SegmentLoadError on
// signature mismatch").
var ErrBadSignature = errors.New("segment: bad file signature")

// ErrUnsupportedVersion is returned by decodeHeader on a schema_version this
// build does not understand.
var ErrUnsupportedVersion = errors.New("segment: unsupported schema version")

// ErrShortHeader is returned when fewer than headerSize bytes are available.
var ErrShortHeader = errors.New("segment: truncated header")

// header is the decoded form of a segment file's fixed-size preamble. Chunk
// regions follow the header in table, index, corpus order: first all three
// filter regions, then all three manifest regions, then all three chunk
// byte regions.
type header struct {
	count          uint64
	minTs          int64
	maxTs          int64
	syncTs         int64
	tableFilterLen  uint64
	indexFilterLen  uint64
	corpusFilterLen uint64
	tableManifestLen  uint64
	indexManifestLen  uint64
	corpusManifestLen uint64
	tableChunkLen  uint64
	indexChunkLen  uint64
	corpusChunkLen uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	off := copy(buf, signature)
	buf[off] = schemaVersion
	off++
	binary.BigEndian.PutUint64(buf[off:], h.count)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(h.minTs))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(h.maxTs))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(h.syncTs))
	off += 8
	off += 32 // reserved, left zero
	for _, v := range []uint64{h.tableFilterLen, h.indexFilterLen, h.corpusFilterLen} {
		binary.BigEndian.PutUint64(buf[off:], v)
		off += 8
	}
	for _, v := range []uint64{h.tableManifestLen, h.indexManifestLen, h.corpusManifestLen} {
		binary.BigEndian.PutUint64(buf[off:], v)
		off += 8
	}
	for _, v := range []uint64{h.tableChunkLen, h.indexChunkLen, h.corpusChunkLen} {
		binary.BigEndian.PutUint64(buf[off:], v)
		off += 8
	}
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, ErrShortHeader
	}
	if string(buf[:len(signature)]) != signature {
		return header{}, ErrBadSignature
	}
	off := len(signature)
	if buf[off] != schemaVersion {
		return header{}, ErrUnsupportedVersion
	}
	off++

	var h header
	h.count = binary.BigEndian.Uint64(buf[off:])
	off += 8
	h.minTs = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	h.maxTs = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	h.syncTs = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	off += 32 // reserved

	sizes := make([]*uint64, 0, 9)
	sizes = append(sizes, &h.tableFilterLen, &h.indexFilterLen, &h.corpusFilterLen)
	sizes = append(sizes, &h.tableManifestLen, &h.indexManifestLen, &h.corpusManifestLen)
	sizes = append(sizes, &h.tableChunkLen, &h.indexChunkLen, &h.corpusChunkLen)
	for _, p := range sizes {
		*p = binary.BigEndian.Uint64(buf[off:])
		off += 8
	}
	return h, nil
}
