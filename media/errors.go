package media

import (
	"context"
	"errors"

	"github.com/tetsuo/mediaparse/cursor"
)

var (
	// ErrCorrupt is matched by structural errors in the container.
	ErrCorrupt = errors.New("media: corrupt container")
	// ErrUsage is matched by errors caused by the caller.
	ErrUsage = errors.New("media: usage error")
	// ErrUnsupported is matched when no demuxer handles the input.
	ErrUnsupported = errors.New("media: unsupported format")
	// ErrAborted is matched by cancellation errors.
	ErrAborted = errors.New("media: aborted")
	// ErrInternal is matched by errors that indicate a parser bug, such as
	// a loop that stopped making progress.
	ErrInternal = errors.New("media: internal error")
)

// ErrorKind classifies errors surfaced by a parse session.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindNeedMoreData
	KindCorrupt
	KindUsage
	KindAborted
	KindUnsupported
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNeedMoreData:
		return "need-more-data"
	case KindCorrupt:
		return "corrupt"
	case KindUsage:
		return "usage"
	case KindAborted:
		return "aborted"
	case KindUnsupported:
		return "unsupported"
	case KindInternal:
		return "internal"
	}
	return "io"
}

// KindOf classifies err. Errors matching none of the package sentinels are
// treated as transport failures.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindIO
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindAborted
	case errors.Is(err, cursor.ErrNeedMoreData):
		return KindNeedMoreData
	case errors.Is(err, ErrCorrupt):
		return KindCorrupt
	case errors.Is(err, ErrUsage):
		return KindUsage
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrInternal), errors.Is(err, cursor.ErrDiscarded), errors.Is(err, cursor.ErrBitMode):
		return KindInternal
	}
	return KindIO
}
