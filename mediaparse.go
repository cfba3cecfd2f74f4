// Package mediaparse demuxes media files incrementally from a byte-range
// reader. It reads only what the requested fields and sample callbacks need,
// skipping or re-requesting parts of the source as the container demands.
package mediaparse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tetsuo/mediaparse/cursor"
	"github.com/tetsuo/mediaparse/media"
	"github.com/tetsuo/mediaparse/section"
	"github.com/tetsuo/mediaparse/source"
)

const (
	// DefaultNoProgressLimit is the number of consecutive iterations without
	// cursor movement after which a session fails with ErrNoProgress.
	DefaultNoProgressLimit = 300
	// DefaultJumpSpread is the progress spread, in seconds, tolerated
	// between tracks before the demuxer jumps ahead in interleaved data.
	DefaultJumpSpread = 8.0
	// DefaultReadSize is the number of bytes requested from a body at once.
	DefaultReadSize = 64 << 10
)

// Options configures a Parse call. The zero value parses a local file for
// every metadata field.
type Options struct {
	// Reader opens the source; nil reads local files.
	Reader source.Reader
	// Fields is the set of fields to resolve; 0 selects media.MetadataFields.
	Fields media.Field
	// OnField is called once for every field as it is resolved.
	OnField func(f media.Field, v any)
	// OnVideoTrack and OnAudioTrack are called for each declared track and
	// may return a callback for its samples.
	OnVideoTrack func(t *media.Track) (media.SampleFunc, error)
	OnAudioTrack func(t *media.Track) (media.SampleFunc, error)
	// OnSeek is called when a Controller seek is resolved.
	OnSeek func(res media.SeekResolution)
	// Controller pauses, aborts or seeks the session from other goroutines.
	Controller *Controller
	// Hints from an earlier session on the same source.
	Hints *Hints
	// Formats are tried before the registered formats.
	Formats []media.Format
	Logger  *slog.Logger
	// OnError decides whether a failure returns the partial result.
	OnError func(err error) ErrorAction
	// DiscardSink receives consumed bytes as the window frees them.
	DiscardSink func([]byte)

	NoProgressLimit int
	JumpSpread      float64
	ReadSize        int
	// Slack is the amount of consumed data kept before freeing it; 0
	// selects cursor.DefaultSlack.
	Slack int64
}

func (o Options) withDefaults() Options {
	if o.Reader == nil {
		o.Reader = source.File{}
	}
	if o.Fields == 0 {
		o.Fields = media.MetadataFields
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.NoProgressLimit <= 0 {
		o.NoProgressLimit = DefaultNoProgressLimit
	}
	if o.JumpSpread <= 0 {
		o.JumpSpread = DefaultJumpSpread
	}
	if o.ReadSize <= 0 {
		o.ReadSize = DefaultReadSize
	}
	return o
}

// Parse demuxes src until every requested field is resolved and no sample
// callback is pending, or until the end of the source.
func Parse(ctx context.Context, src string, opts Options) (*Result, error) {
	o := opts.withDefaults()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if o.Controller != nil {
		if err := o.Controller.attach(cancel); err != nil {
			return nil, err
		}
	}

	s := newSession(src, o)
	start := time.Now()
	s.log.Info("parse started", "source", src, "fields", o.Fields)
	err := s.run(ctx)
	s.closeBody()
	if err != nil && ctx.Err() != nil {
		err = abortError(context.Cause(ctx))
	}
	s.snapshot()
	if err == nil {
		s.log.Info("parse finished", "resolved", s.res.Resolved, "reads", s.reads, "elapsed", time.Since(start))
		return s.res, nil
	}
	s.log.Warn("parse failed", "err", err, "kind", media.KindOf(err), "offset", s.c.Offset())
	if o.OnError != nil && o.OnError(err) == StopWithPartialResult {
		s.res.Err = err
		return s.res, nil
	}
	return nil, err
}

// session is one Parse call. It implements media.Host for its demuxer.
type session struct {
	id  uuid.UUID
	src string
	o   Options
	log *slog.Logger

	body   io.ReadCloser // positioned at c.End()
	length int64
	ranged bool
	buf    []byte
	reads  int

	c      *cursor.Cursor
	secs   section.Tracker
	format media.Format
	d      media.Demuxer

	res    *Result
	fns    int // sample callbacks returned by the caller
	slow   slowStats
	hopSeq uint64 // seek whose intermediary hop was taken
	hopAt  int64
}

func newSession(src string, o Options) *session {
	id := uuid.New()
	s := &session{
		id:  id,
		src: src,
		o:   o,
		log: o.Logger.With("session", id.String()),
		c:   cursor.New(0),
		res: &Result{},
	}
	if o.Slack > 0 {
		s.c.Slack = o.Slack
	}
	s.c.SetSink(o.DiscardSink)
	return s
}

func (s *session) run(ctx context.Context) error {
	if err := s.openBody(ctx, 0); err != nil {
		return err
	}
	s.Set(media.FieldSize, s.length)
	if err := s.detect(ctx); err != nil {
		return err
	}

	idle := 0
	for {
		if err := s.wait(ctx); err != nil {
			return err
		}
		if s.satisfied() {
			s.log.Debug("requested fields resolved", "offset", s.c.Offset())
			return nil
		}
		if err := s.seek(ctx); err != nil {
			return err
		}

		off, end := s.c.Offset(), s.c.End()
		a, err := s.d.Step(ctx)
		if err != nil {
			return err
		}
		switch a.Op {
		case media.OpDone:
			s.finish()
			return nil
		case media.OpNeedMoreData:
			err = s.fill(ctx, a.Need)
		case media.OpSkip:
			err = s.moveTo(ctx, a.To)
		}
		if err != nil {
			return err
		}
		s.c.Discard(false)

		if s.c.Offset() != off || s.c.End() != end || s.d.Stalled() {
			idle = 0
			continue
		}
		if idle++; idle >= s.o.NoProgressLimit {
			return fmt.Errorf("%w: %d steps at offset %d", ErrNoProgress, idle, off)
		}
	}
}

func (s *session) wait(ctx context.Context) error {
	if s.o.Controller != nil {
		return s.o.Controller.wait(ctx)
	}
	if err := ctx.Err(); err != nil {
		return abortError(context.Cause(ctx))
	}
	return nil
}

// detect picks the demuxer from the first bytes and replays usable hints.
func (s *session) detect(ctx context.Context) error {
	if s.length == 0 {
		return fmt.Errorf("%w: empty source", media.ErrUnsupported)
	}
	n := int(min(media.MagicLen, s.length))
	if err := s.fill(ctx, n); err != nil {
		return err
	}
	head, err := s.c.Peek(n)
	if err != nil {
		return err
	}
	f, err := detect(head, s.o.Formats)
	if err != nil {
		return err
	}
	s.format = f
	s.log.Debug("detected format", "format", f.Name)

	var state []byte
	if h := s.o.Hints; h != nil {
		if h.usable(f.Name, s.length) {
			for _, sec := range h.Sections {
				s.secs.Add(sec)
			}
			state = h.State
			s.log.Debug("replaying hints", "from", h.Session, "sections", len(h.Sections))
		} else {
			s.log.Warn("ignoring hints for a different source", "format", h.Format, "length", h.ContentLength)
		}
	}
	d, err := f.New(s, state)
	if err != nil {
		return err
	}
	s.d = d
	return nil
}

// satisfied reports whether parsing can stop before the end: every
// requested field is resolved and nobody consumes samples.
func (s *session) satisfied() bool {
	if !s.res.Resolved.Has(s.o.Fields) || s.fns > 0 {
		return false
	}
	if s.o.OnVideoTrack != nil || s.o.OnAudioTrack != nil {
		return s.res.Resolved.Has(media.FieldTracks)
	}
	return true
}

// seek resolves the newest pending Controller seek.
func (s *session) seek(ctx context.Context) error {
	ctrl := s.o.Controller
	if ctrl == nil || s.d == nil {
		return nil
	}
	for {
		t, seq, ok := ctrl.pendingSeek()
		if !ok {
			return nil
		}
		res, err := s.d.Seek(ctx, t)
		if err != nil {
			return err
		}
		switch res.Kind {
		case media.DoSeek, media.Invalid:
			if !ctrl.settle(seq) {
				continue
			}
		default:
			if !ctrl.current(seq) {
				continue
			}
		}

		switch res.Kind {
		case media.DoSeek:
			s.log.Debug("seek", "time", t, "byte", res.Byte, "keyframe", res.Time)
			if s.o.OnSeek != nil {
				s.o.OnSeek(res)
			}
			return s.moveTo(ctx, res.Byte)
		case media.IntermediarySeek:
			if s.hopSeq == seq && s.hopAt == res.Byte {
				return nil
			}
			s.hopSeq, s.hopAt = seq, res.Byte
			s.log.Debug("seek via", "time", t, "byte", res.Byte)
			return s.moveTo(ctx, res.Byte)
		case media.Invalid:
			s.log.Warn("seek target cannot be resolved", "time", t)
			if s.o.OnSeek != nil {
				s.o.OnSeek(res)
			}
		}
		return nil
	}
}

// fill appends at least need unread bytes to the window.
func (s *session) fill(ctx context.Context, need int) error {
	c := s.c
	want := c.Available() + need
	if s.body == nil && c.End() < s.length {
		if err := s.openBody(ctx, c.End()); err != nil {
			return err
		}
	}
	for c.Available() < want {
		if c.End() >= s.length || s.body == nil {
			return fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, want-c.Available(), c.End(), s.length)
		}
		n := int(min(int64(max(s.o.ReadSize, want-c.Available())), s.length-c.End()))
		if cap(s.buf) < n {
			s.buf = make([]byte, n)
		}
		k, err := s.body.Read(s.buf[:n])
		c.Append(s.buf[:k])
		if err == io.EOF {
			if c.End() < s.length {
				return fmt.Errorf("read %s at %d: %w", s.src, c.End(), io.ErrUnexpectedEOF)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s at %d: %w", s.src, c.End(), err)
		}
	}
	return nil
}

// moveTo continues parsing at offset to: inside the window by moving the
// cursor, a short way ahead by reading past the gap, and anywhere else by
// requesting the source again.
func (s *session) moveTo(ctx context.Context, to int64) error {
	c := s.c
	switch {
	case to >= c.DiscardedOffset() && to <= c.End():
		return c.SkipTo(to)
	case to >= s.length:
		s.closeBody()
		s.reset(to)
		return nil
	case to > c.End() && s.body != nil && (!s.ranged || to-c.End() <= int64(s.o.ReadSize)):
		gap := to - c.End()
		if _, err := io.CopyN(io.Discard, s.body, gap); err != nil {
			return fmt.Errorf("skip %d bytes of %s at %d: %w", gap, s.src, c.End(), err)
		}
		s.reset(to)
		return nil
	}
	s.reset(to)
	return s.openBody(ctx, to)
}

func (s *session) reset(to int64) {
	s.c.Discard(true)
	s.c.Reset(to)
}

// openBody replaces the body with one positioned at offset at. Sources
// without range support are read again from the start.
func (s *session) openBody(ctx context.Context, at int64) error {
	s.closeBody()
	var r *source.Range
	if at > 0 && (s.ranged || s.reads == 0) {
		r = source.From(at)
	}
	s.log.Debug("read", "source", s.src, "range", r)
	resp, err := s.o.Reader.Read(ctx, s.src, r)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", s.src, r, err)
	}
	s.reads++
	s.body = resp.Body
	s.length = resp.ContentLength
	s.ranged = resp.SupportsRange
	if r == nil && at > 0 {
		if _, err := io.CopyN(io.Discard, s.body, at); err != nil {
			return fmt.Errorf("skip to %d of %s: %w", at, s.src, err)
		}
	}
	return nil
}

func (s *session) closeBody() {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
}

// finish resolves the fields that need the whole source.
func (s *session) finish() {
	if !s.slowWanted() {
		return
	}
	s.Set(media.FieldSlowNumberOfFrames, s.slow.frames)
	s.Set(media.FieldSlowKeyframes, s.slow.keyframes)
	s.Set(media.FieldSlowDurationInSeconds, s.slow.end)
}

func (s *session) snapshot() {
	if s.d == nil {
		return
	}
	state, err := s.d.Snapshot()
	if err != nil {
		s.log.Warn("cannot capture hints", "err", err)
		state = nil
	}
	s.res.Hints = &Hints{
		Version:       HintsVersion,
		Session:       s.id,
		Format:        s.format.Name,
		ContentLength: s.length,
		Sections:      s.secs.Sections(),
		State:         state,
	}
}

func (s *session) slowWanted() bool {
	return s.o.Fields&media.SlowFields&^s.res.Resolved != 0
}

var _ media.Host = (*session)(nil)

func (s *session) Cursor() *cursor.Cursor     { return s.c }
func (s *session) Sections() *section.Tracker { return &s.secs }
func (s *session) Source() string             { return s.src }
func (s *session) Reader() source.Reader      { return s.o.Reader }
func (s *session) ContentLength() int64       { return s.length }
func (s *session) SupportsRange() bool        { return s.ranged }
func (s *session) Logger() *slog.Logger       { return s.log }
func (s *session) JumpSpread() float64        { return s.o.JumpSpread }
func (s *session) NeedsSamples() bool         { return s.fns > 0 || s.slowWanted() }
func (s *session) NeedsAllSamples() bool      { return s.slowWanted() }

func (s *session) Set(f media.Field, v any) {
	if !s.res.set(f, v) {
		return
	}
	s.log.Debug("field", "field", f)
	if s.o.OnField != nil {
		s.o.OnField(f, v)
	}
}

func (s *session) Wants(f media.Field) bool {
	return s.o.Fields.Has(f) && !s.res.Resolved.Has(f)
}

func (s *session) RegisterTrack(t *media.Track) (media.SampleFunc, error) {
	var (
		fn  media.SampleFunc
		err error
	)
	switch t.Kind {
	case media.Video:
		if s.slow.video == 0 {
			s.slow.video = t.ID
		}
		if s.o.OnVideoTrack != nil {
			fn, err = s.o.OnVideoTrack(t)
		}
	case media.Audio:
		if s.o.OnAudioTrack != nil {
			fn, err = s.o.OnAudioTrack(t)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("track %d: %w", t.ID, err)
	}
	if fn != nil {
		s.fns++
	}
	if !s.slowWanted() {
		return fn, nil
	}
	return func(sample media.Sample, data []byte) error {
		s.slow.add(sample)
		if fn != nil {
			return fn(sample, data)
		}
		return nil
	}, nil
}
