package internal

import "strings"

// Interest is a bitmask of readiness conditions: a read bit, a write
// bit, or both. The platform pollers translate it to and from the
// native epoll/kqueue representation.
type Interest uint32

const (
	ReadInterest  Interest = 1 << 0
	WriteInterest Interest = 1 << 1
)

func (i Interest) Has(bits Interest) bool {
	return i&bits == bits
}

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	if i&ReadInterest != 0 {
		parts = append(parts, "read")
	}
	if i&WriteInterest != 0 {
		parts = append(parts, "write")
	}
	return strings.Join(parts, "|")
}

// Ready reports the satisfied interest bits of one file descriptor for
// a single wait cycle. Hup is set when the kernel reported an error or
// hang-up condition alongside (or instead of) the interest bits.
type Ready struct {
	Fd     int
	Events Interest
	Hup    bool
}
