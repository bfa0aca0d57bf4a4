package sketch

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"

	aggerrors "github.com/arkilian/eventagg/internal/errors"
)

const formatVersion = 1

// headerSize: version (1) + precision (1) + seed (4).
const headerSize = 6

// MarshalBinary serializes the sketch so partition-local sketches can be
// shipped to the merge step. The layout is
//   - 1 byte:  format version
//   - 1 byte:  precision
//   - 4 bytes: seed (uint32, little-endian)
//   - 2^p bytes: registers
//
// and the whole buffer is Snappy-compressed; sparse sketches compress well.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	raw := make([]byte, headerSize+len(s.registers))
	raw[0] = formatVersion
	raw[1] = s.precision
	binary.LittleEndian.PutUint32(raw[2:6], s.seed)
	copy(raw[headerSize:], s.registers)
	return snappy.Encode(nil, raw), nil
}

// UnmarshalBinary restores a sketch written by MarshalBinary.
func (s *Sketch) UnmarshalBinary(data []byte) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return aggerrors.Wrap(aggerrors.ErrCategorySketch, aggerrors.CodeCorruptSketch,
			"snappy decompress failed", err)
	}
	if len(raw) < headerSize {
		return aggerrors.NewSketchError(aggerrors.CodeCorruptSketch, "serialized sketch too short")
	}
	if raw[0] != formatVersion {
		return aggerrors.NewSketchError(aggerrors.CodeCorruptSketch,
			fmt.Sprintf("unsupported sketch format version %d", raw[0]))
	}

	p := raw[1]
	if p < MinPrecision || p > MaxPrecision {
		return aggerrors.NewSketchError(aggerrors.CodeCorruptSketch,
			fmt.Sprintf("precision %d out of range", p))
	}
	if want := headerSize + (1 << p); len(raw) != want {
		return aggerrors.NewSketchError(aggerrors.CodeCorruptSketch,
			fmt.Sprintf("expected %d bytes, got %d", want, len(raw)))
	}

	regs := make([]uint8, 1<<p)
	copy(regs, raw[headerSize:])
	s.precision = p
	s.seed = binary.LittleEndian.Uint32(raw[2:6])
	s.registers = regs
	return nil
}

// Unmarshal is a convenience wrapper around UnmarshalBinary.
func Unmarshal(data []byte) (*Sketch, error) {
	s := &Sketch{}
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}
