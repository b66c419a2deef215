package bmff

import "errors"

// ErrTruncated indicates a buffer or stream ended before a box's
// declared size was satisfied.
var ErrTruncated = errors.New("bmff: truncated box")
