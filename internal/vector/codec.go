package vector

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hyperjump/shelf/internal/models"
)

// FormatVersion is written into every engine blob. Blobs with any other version are rejected.
const FormatVersion uint32 = 1

var (
	flatMagic = [4]byte{'S', 'H', 'F', 'L'}
	ivfMagic  = [4]byte{'S', 'H', 'I', 'V'}
)

const headerSize = 12 // magic + version + dimension

func corrupt(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, models.ErrIndexCorrupt)...)
}

type blobWriter struct {
	buf []byte
}

func newBlobWriter(magic [4]byte, dimensions int) *blobWriter {
	w := &blobWriter{buf: make([]byte, 0, 64)}
	w.buf = append(w.buf, magic[:]...)
	w.u32(FormatVersion)
	w.u32(uint32(dimensions))
	return w
}

func (w *blobWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *blobWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *blobWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *blobWriter) floats(vs []float32) {
	for _, v := range vs {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	}
}

func (w *blobWriter) bytes() []byte { return w.buf }

type blobReader struct {
	data []byte
	pos  int
}

func newBlobReader(data []byte, magic [4]byte, dimensions int) (*blobReader, error) {
	if len(data) < headerSize {
		return nil, corrupt("blob truncated: %d bytes", len(data))
	}
	if [4]byte(data[:4]) != magic {
		return nil, corrupt("bad magic %q, want %q", data[:4], magic[:])
	}
	r := &blobReader{data: data, pos: 4}
	version, _ := r.u32()
	if version != FormatVersion {
		return nil, corrupt("format version %d, want %d", version, FormatVersion)
	}
	dim, _ := r.u32()
	if int(dim) != dimensions {
		return nil, corrupt("dimension %d, index expects %d", dim, dimensions)
	}
	return r, nil
}

func (r *blobReader) remaining() int { return len(r.data) - r.pos }

func (r *blobReader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, corrupt("unexpected end of blob at %d", r.pos)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *blobReader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, corrupt("unexpected end of blob at %d", r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *blobReader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, corrupt("unexpected end of blob at %d", r.pos)
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// count reads a u64 element count and rejects it if count*unit bytes cannot fit in the rest of the blob.
func (r *blobReader) count(unit int) (int, error) {
	n, err := r.u64()
	if err != nil {
		return 0, err
	}
	if unit > 0 && n > uint64(r.remaining())/uint64(unit) {
		return 0, corrupt("declared count %d overruns blob (%d bytes left)", n, r.remaining())
	}
	if n > math.MaxInt32 {
		return 0, corrupt("declared count %d too large", n)
	}
	return int(n), nil
}

func (r *blobReader) floats(n int) ([]float32, error) {
	if n < 0 || n > r.remaining()/4 {
		return nil, corrupt("%d floats overrun blob (%d bytes left)", n, r.remaining())
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.pos:]))
		r.pos += 4
	}
	return out, nil
}

func (r *blobReader) done() error {
	if r.remaining() != 0 {
		return corrupt("%d trailing bytes", r.remaining())
	}
	return nil
}
