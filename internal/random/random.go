package random

import (
	"crypto/rand"
	"io"
	"log/slog"
	"math/big"
	mathrand "math/rand/v2"
	"sync"
)

// Random provides random numbers and can be replaced in tests.
type Random interface {
	// Intn returns a random int in [0, n).
	Intn(n int) int
}

// CryptoRandom draws from crypto/rand and falls back to math/rand/v2 when the
// system source fails, so callers retrying on collisions never see a stuck value.
type CryptoRandom struct {
	reader   io.Reader
	warnOnce sync.Once
}

func New() *CryptoRandom {
	return &CryptoRandom{reader: rand.Reader}
}

func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(r.reader, big.NewInt(int64(n)))
	if err != nil {
		r.warnOnce.Do(func() {
			slog.Warn("crypto/rand failed, falling back to math/rand", "error", err)
		})
		return mathrand.IntN(n)
	}
	return int(v.Int64())
}

// Draw picks count distinct characters from pool, in draw order.
// count is capped at len(pool).
func Draw(r Random, pool string, count int) string {
	remaining := []byte(pool)
	if count > len(remaining) {
		count = len(remaining)
	}
	out := make([]byte, 0, count)
	for i := 0; i < count; i++ {
		j := r.Intn(len(remaining))
		out = append(out, remaining[j])
		remaining = append(remaining[:j], remaining[j+1:]...)
	}
	return string(out)
}
