package testutils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"testing"
	"time"
)

var Seed uint64 //nolint:gochecknoglobals // intentionally global for test reproducibility

func init() { //nolint:gochecknoinits // intentionally using init to set seed
	Seed = uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if envSeed := os.Getenv("TEST_SEED"); envSeed != "" {
		parsed, err := strconv.ParseUint(envSeed, 0, 64)
		if err == nil {
			Seed = parsed
		}
	}
	fmt.Printf("to reproduce: TEST_SEED=0x%x\n", Seed) //nolint:forbidigo // just for testing
}

// NewRand returns a PCG source seeded from Seed so a failing run can be replayed with TEST_SEED.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	return rand.New(rand.NewPCG(Seed, Seed)) //nolint:gosec // weak RNG is fine for tests
}

// Weighted pairs an operation with its relative weight.
type Weighted[T any] struct {
	Op     T
	Weight int
}

// RandOpWeights assigns every op a random weight in [1, 100].
func RandOpWeights[T any](r *rand.Rand, ops []T) []Weighted[T] {
	out := make([]Weighted[T], len(ops))
	for i, op := range ops {
		out[i] = Weighted[T]{Op: op, Weight: r.IntN(100) + 1}
	}
	return out
}

// RandWeightedOp picks an op with probability proportional to its weight.
func RandWeightedOp[T any](r *rand.Rand, ops []Weighted[T]) T {
	var total int
	for _, op := range ops {
		total += op.Weight
	}

	pick := r.IntN(total)
	for _, op := range ops {
		if pick < op.Weight {
			return op.Op
		}
		pick -= op.Weight
	}
	panic("unreachable")
}

// RandMapKey returns a random key from a map. Panics if the map is empty.
func RandMapKey[K comparable, V any](r *rand.Rand, m map[K]V) K {
	idx := r.IntN(len(m))
	for k := range m {
		if idx == 0 {
			return k
		}
		idx--
	}
	panic("unreachable")
}

// RandString generates a random alphanumeric string of the given length.
func RandString(r *rand.Rand, length int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[r.IntN(len(chars))]
	}
	return string(b)
}
