package lattice

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/signalsfoundry/su2-hmc/model"
)

// Snapshot file layout.
//
// Legacy files are a bare sequence of Size() matrices in flat field order,
// each as 8 float64 values (re, im) of entries (0,0) (0,1) (1,0) (1,1),
// little-endian, with no header. The extents must be known by the reader.
//
// Version 1 files prepend a 16-byte header:
//
//	[magic "SU2L"(4)][version uint32][length_time uint32][length_space uint32]
//
// followed by the legacy payload unchanged.
const (
	snapshotVersion = 1
	headerBytes     = 16
	matrixBytes     = 8 * 8
)

var snapshotMagic = [4]byte{'S', 'U', '2', 'L'}

// ErrSnapshotFormat indicates a snapshot that does not match the expected layout.
var ErrSnapshotFormat = errors.New("malformed snapshot")

// WriteTo encodes the field as a version 1 snapshot.
func (f *Field) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var header [headerBytes]byte
	copy(header[0:4], snapshotMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(f.ext.LengthTime))
	binary.LittleEndian.PutUint32(header[12:16], uint32(f.ext.LengthSpace))
	if _, err := bw.Write(header[:]); err != nil {
		return 0, err
	}
	n, err := f.writePayload(bw)
	if err != nil {
		return headerBytes + n, err
	}
	return headerBytes + n, bw.Flush()
}

// WriteLegacyTo encodes the field in the headerless layout.
func (f *Field) WriteLegacyTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	n, err := f.writePayload(bw)
	if err != nil {
		return n, err
	}
	return n, bw.Flush()
}

func (f *Field) writePayload(w io.Writer) (int64, error) {
	var buf [matrixBytes]byte
	var written int64
	for _, m := range f.data {
		putMatrix(buf[:], m)
		n, err := w.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Save writes a version 1 snapshot to path. Existing files are refused.
func (f *Field) Save(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot %q: %w", path, err)
	}
	if _, err := f.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("write snapshot %q: %w", path, err)
	}
	return file.Close()
}

// Decode reads a snapshot. Version 1 files carry their own extents; legacy
// files are decoded with the fallback extents, which must then be valid.
func Decode(r io.Reader, fallback Extents) (*Field, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(4)
	if err == nil && bytes.Equal(peek, snapshotMagic[:]) {
		var header [headerBytes]byte
		if _, err := io.ReadFull(br, header[:]); err != nil {
			return nil, fmt.Errorf("%w: short header: %v", ErrSnapshotFormat, err)
		}
		if v := binary.LittleEndian.Uint32(header[4:8]); v != snapshotVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotFormat, v)
		}
		ext := Extents{
			LengthTime:  int(binary.LittleEndian.Uint32(header[8:12])),
			LengthSpace: int(binary.LittleEndian.Uint32(header[12:16])),
		}
		if fallback.LengthTime > 0 && fallback != ext {
			return nil, fmt.Errorf("%w: snapshot is %s, expected %s", ErrShapeMismatch, ext, fallback)
		}
		return decodePayload(br, ext)
	}
	return decodePayload(br, fallback)
}

func decodePayload(r io.Reader, ext Extents) (*Field, error) {
	f, err := New(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotFormat, err)
	}
	var buf [matrixBytes]byte
	for i := range f.data {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d of %d: %v", ErrSnapshotFormat, i, len(f.data), err)
		}
		f.data[i] = getMatrix(buf[:])
	}
	var probe [1]byte
	if n, _ := r.Read(probe[:]); n != 0 {
		return nil, fmt.Errorf("%w: trailing data after %d entries", ErrSnapshotFormat, len(f.data))
	}
	return f, nil
}

// Load reads a snapshot file; see Decode for the meaning of fallback.
func Load(path string, fallback Extents) (*Field, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %q: %w", path, err)
	}
	defer file.Close()
	f, err := Decode(file, fallback)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", path, err)
	}
	return f, nil
}

func putMatrix(buf []byte, m model.Matrix) {
	for k, v := range m {
		binary.LittleEndian.PutUint64(buf[16*k:], math.Float64bits(real(v)))
		binary.LittleEndian.PutUint64(buf[16*k+8:], math.Float64bits(imag(v)))
	}
}

func getMatrix(buf []byte) model.Matrix {
	var m model.Matrix
	for k := range m {
		re := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*k:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*k+8:]))
		m[k] = complex(re, im)
	}
	return m
}
