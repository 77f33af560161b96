package board

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	actionEntropyMu sync.Mutex
	actionEntropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewActionID returns a ULID used as a draw action id.
// Monotonic entropy keeps ids strictly increasing even within one millisecond,
// so action ids are totally ordered by creation time.
func NewActionID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	actionEntropyMu.Lock()
	defer actionEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), actionEntropy).String()
}
