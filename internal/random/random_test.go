package random

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type seq struct{ values []int }

func (s *seq) Intn(n int) int {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v % n
}

func TestDrawWithoutReplacement(t *testing.T) {
	// Always picking index 0 walks the pool in order.
	assert.Equal(t, "abcde", Draw(&seq{}, "abcdefghij", 5))
	assert.Equal(t, "ba", Draw(&seq{values: []int{1, 0}}, "ab", 2))
}

func TestDrawCapsAtPoolSize(t *testing.T) {
	assert.Len(t, Draw(New(), "xyz", 10), 3)
}

func TestDrawDistinct(t *testing.T) {
	got := Draw(New(), "0123456789", 3)
	for _, c := range got {
		assert.Equal(t, 1, strings.Count(got, string(c)))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

func TestIntnFallsBackWhenSourceFails(t *testing.T) {
	r := &CryptoRandom{reader: failingReader{}}

	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		v := r.Intn(10)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 10)
		seen[v] = true
	}
	assert.Greater(t, len(seen), 1, "a failing source must not pin every draw to one value")

	// Draw walks a real permutation instead of always taking index 0.
	draws := map[string]bool{}
	for i := 0; i < 50; i++ {
		draws[Draw(r, "abcdefghij", 5)] = true
	}
	assert.Greater(t, len(draws), 1)
}
