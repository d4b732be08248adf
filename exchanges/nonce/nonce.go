// Package nonce provides a monotonic nonce source for request signing
package nonce

import (
	"strconv"
	"sync"
	"time"
)

// Getter defines the seed resolution for a nonce value
type Getter int

// Nonce seed resolutions
const (
	Unix Getter = iota
	UnixNano
)

// Nonce holds the last issued value. The zero value is ready to use and
// seeds itself from the wall clock on first issue.
type Nonce struct {
	n  int64
	mu sync.Mutex
}

// GetInc returns the next nonce, seeding from the clock when unset and
// strictly incrementing thereafter so concurrent callers never repeat or
// reorder values.
func (n *Nonce) GetInc(g Getter) Value {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.n == 0 {
		switch g {
		case UnixNano:
			n.n = time.Now().UnixNano()
		default:
			n.n = time.Now().Unix()
		}
		return Value(n.n)
	}
	n.n++
	return Value(n.n)
}

// Set overrides the nonce value
func (n *Nonce) Set(val int64) {
	n.mu.Lock()
	n.n = val
	n.mu.Unlock()
}

// Value is an issued nonce
type Value int64

// String implements stringer
func (v Value) String() string {
	return strconv.FormatInt(int64(v), 10)
}
