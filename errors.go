package selkie

import "errors"

var (
	// ErrKeyCancelled is reported when a Key is used after its
	// registration was cancelled, usually because the channel was
	// closed concurrently by another path. This is an expected race,
	// not a defect.
	ErrKeyCancelled = errors.New("selection key cancelled")

	// ErrSelectorClosed is reported when registering with or running a
	// selector that has been closed.
	ErrSelectorClosed = errors.New("selector closed")
)
