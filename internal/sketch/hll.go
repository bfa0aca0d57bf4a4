// Package sketch provides a mergeable HyperLogLog distinct-count estimator.
//
// A Sketch hashes every value with murmur3 under a fixed seed and keeps one
// register per bucket holding the longest run of leading zeros observed.
// Registers merge by element-wise maximum, so Merge is associative and
// commutative and partition-local sketches can be combined in any order.
package sketch

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/spaolacci/murmur3"

	aggerrors "github.com/arkilian/eventagg/internal/errors"
	"github.com/arkilian/eventagg/pkg/types"
)

const (
	// MinPrecision and MaxPrecision bound the number of index bits.
	MinPrecision = 4
	MaxPrecision = 18

	// DefaultPrecision gives 16384 registers and a standard error of ~0.81%.
	DefaultPrecision = 14

	// DefaultSeed is the murmur3 seed shared by every sketch that may be merged.
	DefaultSeed uint32 = 0x9747b28c
)

// Sketch is a HyperLogLog cardinality estimator. A Sketch is not safe for
// concurrent mutation; each one is owned by a single accumulator.
type Sketch struct {
	precision uint8
	seed      uint32
	registers []uint8
}

// Estimate is an approximate cardinality. It always carries the relative
// standard error of the sketch that produced it.
type Estimate struct {
	Value         uint64  `json:"value"`
	RelativeError float64 `json:"relative_error"`
}

// String renders the estimate with its error bound, e.g. "~1000 (±0.81%)".
func (e Estimate) String() string {
	return fmt.Sprintf("~%d (±%.2f%%)", e.Value, e.RelativeError*100)
}

// New creates a sketch with the given precision and the default seed.
// Out-of-range precisions are clamped to [MinPrecision, MaxPrecision].
func New(precision uint8) *Sketch {
	return NewWithSeed(precision, DefaultSeed)
}

// NewWithSeed creates a sketch with an explicit hash seed. Only sketches with
// identical precision and seed can be merged.
func NewWithSeed(precision uint8, seed uint32) *Sketch {
	if precision == 0 {
		precision = DefaultPrecision
	}
	if precision < MinPrecision {
		precision = MinPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	return &Sketch{
		precision: precision,
		seed:      seed,
		registers: make([]uint8, 1<<precision),
	}
}

// Precision returns the number of index bits.
func (s *Sketch) Precision() uint8 { return s.precision }

// Seed returns the hash seed.
func (s *Sketch) Seed() uint32 { return s.seed }

// Add records one value.
func (s *Sketch) Add(data []byte) {
	s.addHash(murmur3.Sum64WithSeed(data, s.seed))
}

// AddString records one string value.
func (s *Sketch) AddString(v string) {
	s.Add([]byte(v))
}

// AddValue records a tagged value. Nulls are ignored.
func (s *Sketch) AddValue(v types.Value) {
	if v.IsNull() {
		return
	}
	s.AddString(v.Key())
}

func (s *Sketch) addHash(h uint64) {
	p := uint(s.precision)
	idx := h >> (64 - p)
	// The guard bit caps rho at 64-p+1 when the remaining bits are all zero.
	w := h<<p | 1<<(p-1)
	rho := uint8(bits.LeadingZeros64(w)) + 1
	if rho > s.registers[idx] {
		s.registers[idx] = rho
	}
}

// RelativeError returns the standard error 1.04/sqrt(m) of this configuration.
func (s *Sketch) RelativeError() float64 {
	return RelativeErrorFor(s.precision)
}

// RelativeErrorFor returns the standard error of a sketch with precision p.
func RelativeErrorFor(p uint8) float64 {
	return 1.04 / math.Sqrt(float64(uint64(1)<<p))
}

// Estimate returns the approximate number of distinct values added.
//
// Empty registers enter the harmonic mean through sigma, so a single
// estimator covers small and large cardinalities with no switch point.
// Filling a register always shrinks the denominator, so the result never
// decreases as more values are added.
func (s *Sketch) Estimate() Estimate {
	m := float64(len(s.registers))

	var sum float64
	zeros := 0
	for _, r := range s.registers {
		if r == 0 {
			zeros++
			continue
		}
		sum += math.Ldexp(1, -int(r))
	}

	var est float64
	if zeros < len(s.registers) {
		est = alphaInf * m * m / (m*sigma(float64(zeros)/m) + sum)
	}

	return Estimate{
		Value:         uint64(math.Round(est)),
		RelativeError: s.RelativeError(),
	}
}

// Merge folds other into s so that s represents the union of both inputs.
func (s *Sketch) Merge(other *Sketch) error {
	if other == nil {
		return nil
	}
	if s.precision != other.precision || s.seed != other.seed {
		return aggerrors.NewSketchError(aggerrors.CodeIncompatibleSketch,
			fmt.Sprintf("cannot merge sketch p=%d seed=%#x into p=%d seed=%#x",
				other.precision, other.seed, s.precision, s.seed))
	}
	for i, r := range other.registers {
		if r > s.registers[i] {
			s.registers[i] = r
		}
	}
	return nil
}

// Clone returns an independent copy of s.
func (s *Sketch) Clone() *Sketch {
	regs := make([]uint8, len(s.registers))
	copy(regs, s.registers)
	return &Sketch{precision: s.precision, seed: s.seed, registers: regs}
}

// Equal reports whether two sketches have identical configuration and registers.
func (s *Sketch) Equal(other *Sketch) bool {
	if s.precision != other.precision || s.seed != other.seed {
		return false
	}
	for i := range s.registers {
		if s.registers[i] != other.registers[i] {
			return false
		}
	}
	return true
}

// alphaInf is the bias constant of the estimator as m grows, 1/(2 ln 2).
const alphaInf = 0.7213475204444817

// sigma(x) = x + sum_{k>=1} x^(2^k) 2^(k-1) for x in [0, 1), the expected
// contribution of empty registers when a fraction x of them is empty.
func sigma(x float64) float64 {
	if x == 1 {
		return math.Inf(1)
	}
	y := 1.0
	z := x
	for {
		x *= x
		prev := z
		z += x * y
		y += y
		if z == prev {
			return z
		}
	}
}
