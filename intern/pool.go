package intern

import "github.com/cespare/xxhash"

// Pool deduplicates column strings for the lifetime of a capture
// session. Repeated content ("TCP", "10.0.0.1", ...) is stored once
// and the canonical string handed back, so a million-row list keeps
// one copy per distinct value. The pool is owned by the session and
// dropped as a unit at close; entries are never freed individually.
type Pool struct {
	buckets map[uint64][]string
	hits    uint64
	bytes   uint64
}

func NewPool() *Pool {
	return &Pool{buckets: make(map[uint64][]string)}
}

// Intern returns the canonical copy of s, storing it on first sight.
// Hash collisions fall back to a bucket scan.
func (p *Pool) Intern(s string) string {
	if s == "" {
		return ""
	}
	h := xxhash.Sum64String(s)
	for _, c := range p.buckets[h] {
		if c == s {
			p.hits++
			return c
		}
	}
	p.buckets[h] = append(p.buckets[h], s)
	p.bytes += uint64(len(s))
	return s
}

// Unique returns the number of distinct strings held.
func (p *Pool) Unique() (n int) {
	for _, b := range p.buckets {
		n += len(b)
	}
	return
}

// Hits returns how many Intern calls were satisfied by an existing entry.
func (p *Pool) Hits() uint64 {
	return p.hits
}

// Bytes returns the total content bytes held.
func (p *Pool) Bytes() uint64 {
	return p.bytes
}

// Reset drops all entries at once. Outstanding strings stay valid;
// they just stop being canonical.
func (p *Pool) Reset() {
	p.buckets = make(map[uint64][]string)
	p.hits = 0
	p.bytes = 0
}
