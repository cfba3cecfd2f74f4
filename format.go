package mediaparse

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/tetsuo/mediaparse/bmff"
	"github.com/tetsuo/mediaparse/media"
)

var (
	formatsMu sync.RWMutex
	formats   = []media.Format{bmff.Format}
)

// RegisterFormat makes f available to every later Parse call. Formats are
// tried in registration order after the built-in ones.
func RegisterFormat(f media.Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats = append(formats, f)
}

// detect returns the first format in extra, then the registry, that
// matches head.
func detect(head []byte, extra []media.Format) (media.Format, error) {
	for _, f := range extra {
		if f.Match(head) {
			return f, nil
		}
	}
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	for _, f := range formats {
		if f.Match(head) {
			return f, nil
		}
	}
	if name := Sniff(head); name != "" {
		return media.Format{}, fmt.Errorf("%w: %s (no demuxer registered)", media.ErrUnsupported, name)
	}
	return media.Format{}, fmt.Errorf("%w: unknown magic % x", media.ErrUnsupported, head[:min(len(head), 8)])
}

// Sniff names the container of head by its magic bytes, or returns "".
// It recognises more formats than are built in, so callers can report
// what a file is even when no demuxer handles it.
func Sniff(head []byte) string {
	switch {
	case bmff.Match(head):
		return "mp4"
	case bytes.HasPrefix(head, []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return "matroska"
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")):
		switch string(head[8:12]) {
		case "WAVE":
			return "wav"
		case "AVI ":
			return "avi"
		}
		return "riff"
	case bytes.HasPrefix(head, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(head, []byte("#EXTM3U")):
		return "m3u"
	case bytes.HasPrefix(head, []byte("ID3")):
		return "mp3"
	case len(head) >= 2 && head[0] == 0xff && head[1]&0xf6 == 0xf0:
		return "aac"
	case len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0 && head[1]&0x06 != 0:
		return "mp3"
	case len(head) >= 1 && head[0] == 0x47:
		return "mpegts"
	}
	return ""
}
