package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID for the current time. IDs made within the same
// millisecond stay lexicographically increasing, so run rows in the journal
// sort by creation.
func New() string {
	return At(time.Now().UTC())
}

// At returns a ULID stamped with t.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Time extracts the timestamp of a run ID.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(strings.ToUpper(s))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}

// Short is the last eight characters of an ID, used in table output.
func Short(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[len(s)-8:]
}
