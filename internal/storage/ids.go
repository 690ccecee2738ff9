package storage

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu   sync.Mutex
	idMono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	idMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// backupID returns a ULID for t. IDs created within the same millisecond
// are strictly increasing, which orders same-second backups by name.
func backupID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), idMono)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond; fall back to
		// fresh entropy, which only loses the intra-millisecond ordering.
		return ulid.MustNew(ulid.Timestamp(t.UTC()), cryptoRand.Reader).String()
	}
	return id.String()
}
