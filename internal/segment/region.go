package segment

import (
	"io"
	"os"
	"syscall"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
)

// zstdDecoder is a package-level decoder, safe for concurrent use across
// every compressed segment this process has open (spec §5: "process-global
// pools are shared across segments"), grounded on the teacher's
// file.compressFile/openSeekableReader pair.
var zstdDecoder *zstd.Decoder

func init() {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("segment: init zstd decoder: " + err.Error())
	}
	zstdDecoder = dec
}

// mmapFile memory-maps a segment file read-only for the uncompressed
// on-disk layout (spec §5: "files are memory-mapped read-only; reads take
// per-seek byte-range slices, not whole-file copies"), grounded on
// mmap_reader.go's OpenMmapReader/Close pair.
type mmapFile struct {
	file *os.File
	data []byte
}

func openMmapFile(path string) (*mmapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, io.ErrUnexpectedEOF
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mmapFile{file: f, data: data}, nil
}

// ReadAt implements chunk.RegionReader directly against the mapped bytes.
func (m *mmapFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (m *mmapFile) Close() error {
	var err error
	if m.data != nil {
		if unmapErr := syscall.Munmap(m.data); unmapErr != nil {
			err = unmapErr
		}
		m.data = nil
	}
	if m.file != nil {
		if closeErr := m.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.file = nil
	}
	return err
}

// zstdFile opens a compressed segment file via the seekable zstd format,
// whose Reader already satisfies chunk.RegionReader's ReadAt contract and
// only decompresses the frame(s) covering a requested byte range (spec §5),
// grounded on compress.go's openSeekableReader.
type zstdFile struct {
	reader seekable.Reader
	file   *os.File
}

func openZstdFile(path string) (*zstdFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := seekable.NewReader(f, zstdDecoder)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zstdFile{reader: r, file: f}, nil
}

func (z *zstdFile) ReadAt(p []byte, off int64) (int, error) {
	return z.reader.ReadAt(p, off)
}

func (z *zstdFile) Close() error {
	var err error
	if z.reader != nil {
		if closeErr := z.reader.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if z.file != nil {
		if closeErr := z.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// offsetRegion presents a byte range [offset, offset+length) of a larger
// backing region as an independent zero-based chunk.RegionReader, so each
// chunk's filter/manifest/data sub-region can be addressed without
// teaching package chunk about the segment's overall layout.
type offsetRegion struct {
	base   region
	offset int64
	length int64
}

type region interface {
	ReadAt(p []byte, off int64) (int, error)
}

func (o offsetRegion) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > o.length {
		return 0, io.EOF
	}
	remaining := o.length - off
	if int64(len(p)) > remaining {
		n, err := o.base.ReadAt(p[:remaining], o.offset+off)
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	return o.base.ReadAt(p, o.offset+off)
}
