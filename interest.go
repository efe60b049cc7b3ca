package selkie

import "github.com/selkie-io/selkie/internal"

// Interest is a bitmask of readiness conditions an endpoint wants the
// selector to report: readable, writable, or both.
type Interest = internal.Interest

const (
	ReadInterest  = internal.ReadInterest
	WriteInterest = internal.WriteInterest
)
