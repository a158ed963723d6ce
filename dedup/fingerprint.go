package dedup

import (
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is an order-independent digest over a set of torrent hashes.
func Fingerprint(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	d := xxhash.New()
	for _, id := range sorted {
		_, _ = d.WriteString(id)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16) + "-" + strconv.Itoa(len(sorted))
}

// FingerprintTracker remembers the last observed fingerprint. It is kept in
// memory only.
type FingerprintTracker struct {
	mu   sync.Mutex
	last string
	seen bool
}

// Observe records fp and reports whether it differs from the previous one.
// The first observation always counts as a change.
func (t *FingerprintTracker) Observe(fp string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := !t.seen || fp != t.last
	t.last = fp
	t.seen = true
	return changed
}

// Record stores fp without comparing.
func (t *FingerprintTracker) Record(fp string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = fp
	t.seen = true
}

// Reset forgets the last fingerprint, so the next observation counts as a
// change.
func (t *FingerprintTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = ""
	t.seen = false
}

// Last returns the last fingerprint and whether one was recorded.
func (t *FingerprintTracker) Last() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.seen
}
