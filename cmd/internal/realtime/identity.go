package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	v1 "slate/shared/contracts/board/v1"
)

// Colors assigned to joining users, cycled in connection order.
var userPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#008080",
}

var userCounter atomic.Uint64

// NewSessionID returns a ULID used as websocket session id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewSessionID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewUser mints an ephemeral presence identity for a new connection:
// a UUID for cross-client reference, a generated display name, and a color
// from the palette.
func NewUser() v1.User {
	n := userCounter.Add(1)
	id := uuid.NewString()
	return v1.User{
		ID:    id,
		Name:  fmt.Sprintf("guest-%d", n),
		Color: userPalette[int(n)%len(userPalette)],
	}
}

// NewRandomHex returns a cryptographically secure random hex string of length 2*nBytes.
// Used for envelope ids, where ordering does not matter.
func NewRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		// Callers should treat empty as an error-like condition in logs/tests.
		return ""
	}
	return hex.EncodeToString(b)
}
