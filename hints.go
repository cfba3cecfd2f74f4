package mediaparse

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tetsuo/mediaparse/section"
)

// HintsVersion is the layout version written into Hints.
const HintsVersion = 1

// Hints is a serialisable snapshot of what a session learned about its
// source. Passing it in Options.Hints of a later session on the same source
// avoids deriving that structure again.
type Hints struct {
	Version       int               `json:"version"`
	Session       uuid.UUID         `json:"session"`
	Format        string            `json:"format"`
	ContentLength int64             `json:"contentLength"`
	Sections      []section.Section `json:"sections,omitempty"`
	// State is the demuxer's own snapshot.
	State json.RawMessage `json:"state,omitempty"`
}

// usable reports whether h was captured from a source of the given format
// and length by a compatible version.
func (h *Hints) usable(format string, length int64) bool {
	return h != nil && h.Version == HintsVersion && h.Format == format && h.ContentLength == length
}
