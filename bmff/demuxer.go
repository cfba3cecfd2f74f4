package bmff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/tetsuo/mediaparse/cursor"
	"github.com/tetsuo/mediaparse/fetch"
	"github.com/tetsuo/mediaparse/jump"
	"github.com/tetsuo/mediaparse/media"
	"github.com/tetsuo/mediaparse/section"
	"github.com/tetsuo/mediaparse/source"
)

// Format is the ISO-BMFF container format (MP4, MOV, fragmented MP4).
var Format = media.Format{
	Name:  "mp4",
	Match: Match,
	New: func(h media.Host, state json.RawMessage) (media.Demuxer, error) {
		return NewDemuxer(h, state)
	},
}

// Match reports whether head starts an ISO-BMFF file.
func Match(head []byte) bool {
	if len(head) < 8 {
		return false
	}
	switch BoxType(head[4:8]) {
	case TypeFtyp, TypeStyp, TypeMoov, TypeMoof, TypeMdat, TypeFree, TypeSkip, TypeWide, TypeSidx:
		return true
	}
	return false
}

var brandQuickTime = BoxType{'q', 't', ' ', ' '}

// Demuxer parses an ISO-BMFF file one step at a time from the host cursor.
// Top-level boxes other than mdat are parsed whole; mdat payloads are
// registered as media sections and walked sample by sample.
type Demuxer struct {
	h   media.Host
	log *slog.Logger

	ftyp       *FtypInfo
	moov       *Box
	fragmented bool
	trex       map[uint32]*Trex
	mvhd       *Mvhd
	fragDur    uint64
	tracks     []*trackState
	byID       map[uint32]*trackState

	fragments []*Fragment // sorted by offset
	open      *Fragment   // moof waiting for its mdat
	tables    map[tableKey][]media.Sample
	plans     map[int64]*sectionPlan
	seeked    bool
	backTo    int64 // media data skipped before the moov was known, -1 if none
	walked    int64 // every top-level box before this offset was read in order

	moovFetch fetch.Cache[located]
	mfraFetch fetch.Cache[located]
	mfra      *Box
	sidx      []AccessPoint

	hints Hints
}

type trackState struct {
	track *media.Track
	trak  *Box
	fn    media.SampleFunc
}

type tableKey struct {
	TrackID       uint32
	FragmentStart int64
}

// sectionPlan is the visiting order of the samples inside one media section.
// Empty samples share their offset with the sample that follows them, so
// the plan remembers where the last visit left off.
type sectionPlan struct {
	samples []media.Sample
	index   map[int64]int // first sample at each offset
	jumps   jump.Index

	next   int   // sample to visit when parsing resumes at resume
	resume int64 // -1 when the next visit is not a continuation
}

// at returns the position of the sample to visit at off: the one after the
// last visit when parsing continues from there, otherwise the first sample
// stored at off.
func (p *sectionPlan) at(off int64) (int, bool) {
	if off == p.resume && p.next < len(p.samples) && p.samples[p.next].Offset == off {
		return p.next, true
	}
	i, ok := p.index[off]
	return i, ok
}

// visited records that sample i was consumed and parsing continues at to
// with sample next.
func (p *sectionPlan) visited(next int, to int64) {
	p.next, p.resume = next, to
}

// located is a box fetched out of band.
type located struct {
	Offset int64
	Raw    []byte
}

// NewDemuxer returns a demuxer bound to h. state is a Snapshot from an
// earlier session on the same source, or nil.
func NewDemuxer(h media.Host, state json.RawMessage) (*Demuxer, error) {
	log := h.Logger()
	if log == nil {
		log = slog.Default()
	}
	d := &Demuxer{
		h:      h,
		log:    log.With("component", "bmff"),
		trex:   make(map[uint32]*Trex),
		byID:   make(map[uint32]*trackState),
		tables: make(map[tableKey][]media.Sample),
		plans:  make(map[int64]*sectionPlan),
		backTo: -1,
	}
	if len(state) > 0 {
		var hs Hints
		if err := json.Unmarshal(state, &hs); err != nil {
			d.log.Warn("ignoring unreadable hints", "err", err)
			return d, nil
		}
		if err := d.replay(hs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Step parses at the host cursor and reports what the loop should do next.
func (d *Demuxer) Step(ctx context.Context) (media.Action, error) {
	c := d.h.Cursor()
	off := c.Offset()
	length := d.h.ContentLength()
	if off >= length {
		if d.moov == nil {
			return media.Action{}, corrupt(BoxType{}, off, ErrNoMoov)
		}
		d.finish()
		return media.Done(), nil
	}
	if sec, ok := d.h.Sections().Find(off); ok {
		return d.stepMedia(sec)
	}
	if length-off < 8 {
		d.log.Warn("ignoring trailing bytes", "offset", off, "size", length-off)
		d.finish()
		return media.Done(), nil
	}

	cp := c.Checkpoint()
	hdr, err := ReadHeader(c, length-off)
	if n, ok := cursor.NeedMore(err); ok {
		return media.NeedMoreData(n), nil
	}
	if err != nil {
		return media.Action{}, err
	}
	d.log.Debug("box", "type", hdr.Type, "offset", hdr.Offset, "size", hdr.Size)
	if hdr.Offset == d.walked {
		d.walked = hdr.End()
	}

	switch {
	case hdr.Type == TypeMdat:
		return d.onMdat(ctx, hdr)
	case d.known(hdr):
		return media.SkipTo(hdr.End()), nil
	case !decodedAtTopLevel(hdr.Type):
		return media.SkipTo(hdr.End()), nil
	}

	if err := cp.Rollback(); err != nil {
		return media.Action{}, err
	}
	b, raw, err := ParseBox(c, length-off)
	if n, ok := cursor.NeedMore(err); ok {
		return media.NeedMoreData(n), nil
	}
	if err != nil {
		return media.Action{}, err
	}
	if err := d.onBox(b, raw); err != nil {
		return media.Action{}, err
	}
	if b.Type == TypeMoov && d.backTo >= 0 && d.h.NeedsSamples() {
		to := d.backTo
		d.backTo = -1
		d.log.Debug("returning to media data", "offset", to)
		return media.SkipTo(to), nil
	}
	return media.Continue(), nil
}

func decodedAtTopLevel(t BoxType) bool {
	switch t {
	case TypeFtyp, TypeStyp, TypeMoov, TypeMoof, TypeMfra, TypeSidx:
		return true
	}
	return false
}

// known reports whether the box at hdr was already decoded, e.g. from hints
// or an out-of-band fetch.
func (d *Demuxer) known(hdr Header) bool {
	switch hdr.Type {
	case TypeMoov:
		return d.moov != nil
	case TypeMoof:
		return d.fragmentAt(hdr.Offset) != nil
	case TypeMfra:
		return d.mfra != nil
	}
	return false
}

func (d *Demuxer) onMdat(ctx context.Context, hdr Header) (media.Action, error) {
	sec := section.Section{Start: hdr.DataOffset(), Size: hdr.DataSize()}
	if d.h.Sections().Add(sec) {
		d.log.Debug("media section", "section", sec)
	}
	if d.open != nil {
		d.open.DataEnd = hdr.End()
		d.open = nil
		d.updateComplete()
	}

	if d.moov == nil {
		if !d.h.SupportsRange() || hdr.End() >= d.h.ContentLength() {
			if d.backTo < 0 {
				d.backTo = sec.Start
			}
			return media.SkipTo(hdr.End()), nil
		}
		if err := d.fetchMoov(ctx, hdr.End()); err != nil {
			return media.Action{}, err
		}
	}
	if !d.h.NeedsSamples() {
		return media.SkipTo(hdr.End()), nil
	}
	return media.Continue(), nil
}

// stepMedia visits the sample at the cursor, which lies inside sec.
func (d *Demuxer) stepMedia(sec section.Section) (media.Action, error) {
	if d.moov == nil {
		if d.backTo < 0 {
			d.backTo = sec.Start
		}
		return media.SkipTo(sec.End()), nil
	}
	if !d.h.NeedsSamples() {
		return media.SkipTo(sec.End()), nil
	}
	p, err := d.plan(sec)
	if err != nil {
		return media.Action{}, err
	}

	c := d.h.Cursor()
	off := c.Offset()
	i, ok := p.at(off)
	if !ok {
		j := sort.Search(len(p.samples), func(j int) bool { return p.samples[j].Offset > off })
		if j < len(p.samples) {
			return media.SkipTo(p.samples[j].Offset), nil
		}
		return media.SkipTo(sec.End()), nil
	}

	s := p.samples[i]
	next := media.Continue()
	if ts := d.byID[s.TrackID]; ts != nil && ts.fn != nil {
		if avail := int64(c.Available()); avail < s.Size {
			return media.NeedMoreData(int(s.Size - avail)), nil
		}
		data, err := c.Bytes(int(s.Size))
		if err != nil {
			return media.Action{}, err
		}
		if err := ts.fn(s, data); err != nil {
			return media.Action{}, err
		}
	} else if int64(c.Available()) >= s.Size {
		if err := c.Skip(int(s.Size)); err != nil {
			return media.Action{}, err
		}
	} else {
		next = media.SkipTo(s.End())
	}

	if m, ok := p.jumps.After(i); ok {
		p.visited(m.JumpTo, m.JumpToOffset)
		return media.SkipTo(m.JumpToOffset), nil
	}
	p.visited(i+1, s.End())
	return next, nil
}

// plan returns the samples stored in sec, sorted by offset, and the jump
// marks that keep tracks close in time while they are visited.
func (d *Demuxer) plan(sec section.Section) (*sectionPlan, error) {
	if p, ok := d.plans[sec.Start]; ok {
		return p, nil
	}
	var samples []media.Sample
	add := func(list []media.Sample) {
		for _, s := range list {
			if sec.Contains(s.Offset) {
				samples = append(samples, s)
			}
		}
	}
	if d.fragmented {
		for _, f := range d.fragments {
			if f.Offset < sec.End() && f.End() >= sec.Start {
				for _, list := range f.Samples {
					add(list)
				}
			}
		}
	} else {
		for _, ts := range d.tracks {
			list, err := d.table(ts)
			if err != nil {
				return nil, err
			}
			add(list)
		}
	}
	jump.SortByOffset(samples)

	p := &sectionPlan{samples: samples, index: make(map[int64]int, len(samples)), resume: -1}
	for i, s := range samples {
		if _, dup := p.index[s.Offset]; !dup {
			p.index[s.Offset] = i
		}
	}
	if !d.seeked && !d.h.NeedsAllSamples() && len(d.tracks) > 1 {
		marks := jump.Plan(samples, d.h.JumpSpread(), sec.End())
		p.jumps = jump.NewIndex(marks)
		d.log.Debug("planned jumps", "section", sec, "samples", len(samples), "marks", len(marks))
	}
	d.plans[sec.Start] = p
	return p, nil
}

// table returns the static sample table of ts, resolving it once.
func (d *Demuxer) table(ts *trackState) ([]media.Sample, error) {
	key := tableKey{TrackID: ts.track.ID, FragmentStart: d.moov.Offset}
	if list, ok := d.tables[key]; ok {
		return list, nil
	}
	list, err := SampleTable(ts.trak)
	if err != nil {
		return nil, err
	}
	d.tables[key] = list
	return list, nil
}

// Samples returns the resolved samples of track id in the fragment at
// fragmentStart, or in the static tables when fragmentStart is the moov
// offset.
func (d *Demuxer) Samples(id uint32, fragmentStart int64) ([]media.Sample, bool) {
	list, ok := d.tables[tableKey{TrackID: id, FragmentStart: fragmentStart}]
	return list, ok
}

func (d *Demuxer) onBox(b *Box, raw []byte) error {
	switch b.Type {
	case TypeFtyp:
		d.ftyp, _ = b.Payload.(*FtypInfo)
		d.hints.Ftyp = rawBox(b, raw)
	case TypeMoov:
		return d.onMoov(b, raw)
	case TypeMoof:
		return d.onMoof(b, raw)
	case TypeMfra:
		d.setMfra(b, raw)
	case TypeSidx:
		if sidx, ok := b.Payload.(*Sidx); ok {
			d.sidx = append(d.sidx, SidxPoints(sidx, b.End())...)
			d.hints.Sidx = append(d.hints.Sidx, *rawBox(b, raw))
			d.updateComplete()
		}
	}
	return nil
}

func (d *Demuxer) onMoov(b *Box, raw []byte) error {
	if d.moov != nil {
		return nil
	}
	mvhd, ok := payloadOf[*Mvhd](b, TypeMvhd)
	if !ok {
		return corrupt(TypeMoov, b.Offset, fmt.Errorf("%w: mvhd", ErrMissingTable))
	}
	d.moov, d.mvhd = b, mvhd
	d.hints.Moov = rawBox(b, raw)

	if mvex := b.Child(TypeMvex); mvex != nil {
		d.fragmented = true
		for _, tb := range mvex.ChildList(TypeTrex) {
			if trex, ok := tb.Payload.(*Trex); ok {
				d.trex[trex.TrackID] = trex
			}
		}
		if mehd, ok := payloadOf[*Mehd](mvex, TypeMehd); ok {
			d.fragDur = mehd.FragmentDuration
		}
	}

	for _, trak := range b.ChildList(TypeTrak) {
		t, err := NewTrack(trak)
		if err != nil {
			return err
		}
		if t.Kind == media.Other && t.Codec != "" {
			d.log.Warn("unclassified track", "track", t.ID, "format", t.Format)
		}
		fn, err := d.h.RegisterTrack(t)
		if err != nil {
			return err
		}
		ts := &trackState{track: t, trak: trak, fn: fn}
		d.tracks = append(d.tracks, ts)
		d.byID[t.ID] = ts
	}
	d.log.Debug("moov", "offset", b.Offset, "tracks", len(d.tracks), "fragmented", d.fragmented)
	return d.setMoovFields()
}

func (d *Demuxer) setMoovFields() error {
	h := d.h
	container := "mp4"
	if d.ftyp != nil && d.ftyp.MajorBrand == brandQuickTime {
		container = "mov"
	}
	h.Set(media.FieldContainer, container)

	tracks := make([]*media.Track, len(d.tracks))
	for i, ts := range d.tracks {
		tracks[i] = ts.track
	}
	h.Set(media.FieldTracks, tracks)
	h.Set(media.FieldIsFragmented, d.fragmented)

	video, audio := d.first(media.Video), d.first(media.Audio)
	if video != nil {
		dims := DisplaySize(video.track)
		h.Set(media.FieldVideoCodec, video.track.Codec)
		h.Set(media.FieldDimensions, &dims)
		h.Set(media.FieldRotation, video.track.Rotation)
	} else {
		h.Set(media.FieldVideoCodec, "")
		h.Set(media.FieldDimensions, (*media.Dimensions)(nil))
		h.Set(media.FieldRotation, 0)
		h.Set(media.FieldFps, 0.0)
		h.Set(media.FieldKeyframes, []media.Keyframe(nil))
	}
	if audio != nil {
		h.Set(media.FieldAudioCodec, audio.track.Codec)
		h.Set(media.FieldSampleRate, audio.track.SampleRate)
		h.Set(media.FieldNumberOfAudioChannels, audio.track.Channels)
	} else {
		h.Set(media.FieldAudioCodec, "")
		h.Set(media.FieldSampleRate, 0)
		h.Set(media.FieldNumberOfAudioChannels, 0)
	}
	lang := ""
	for _, ts := range d.tracks {
		if ts.track.Language != "" {
			lang = ts.track.Language
			break
		}
	}
	h.Set(media.FieldLanguage, lang)

	if dur, ok := d.declaredDuration(); ok {
		h.Set(media.FieldDurationInSeconds, dur)
	} else if !d.fragmented && h.Wants(media.FieldDurationInSeconds) {
		h.Set(media.FieldDurationInSeconds, d.tableDuration())
	}

	if video == nil {
		return nil
	}
	if d.fragmented {
		h.Set(media.FieldKeyframes, []media.Keyframe(nil))
		return nil
	}
	if h.Wants(media.FieldFps) {
		h.Set(media.FieldFps, d.staticFps(video))
	}
	if h.Wants(media.FieldKeyframes) {
		list, err := d.table(video)
		if err != nil {
			return err
		}
		var kf []media.Keyframe
		for _, s := range list {
			if s.IsKeyframe {
				kf = append(kf, media.KeyframeOf(s))
			}
		}
		h.Set(media.FieldKeyframes, kf)
	}
	return nil
}

// tableDuration returns the end of the latest sample of the static tables in
// seconds. Tracks whose table cannot be resolved are left out.
func (d *Demuxer) tableDuration() float64 {
	var end float64
	for _, ts := range d.tracks {
		list, err := d.table(ts)
		if err != nil {
			d.log.Warn("no duration from sample table", "track", ts.track.ID, "err", err)
			continue
		}
		for _, s := range list {
			end = max(end, s.Time()+s.DurationSeconds())
		}
	}
	return end
}

// declaredDuration returns the movie duration in seconds from mvhd, mehd
// or the longest track.
func (d *Demuxer) declaredDuration() (float64, bool) {
	ts := d.mvhd.Timescale
	if ts == 0 {
		return 0, false
	}
	if d.fragmented {
		if d.fragDur > 0 {
			return float64(d.fragDur) / float64(ts), true
		}
		if d.mvhd.Duration == 0 {
			return 0, false
		}
	}
	if d.mvhd.Duration > 0 {
		return float64(d.mvhd.Duration) / float64(ts), true
	}
	var best float64
	for _, t := range d.tracks {
		if t.track.Timescale > 0 {
			best = max(best, float64(t.track.Duration)/float64(t.track.Timescale))
		}
	}
	return best, best > 0
}

// staticFps divides the sample count by the media duration, or by the sum
// of the sample durations when mdhd declares none.
func (d *Demuxer) staticFps(video *trackState) float64 {
	t := video.track
	if t.Timescale == 0 {
		return 0
	}
	stsz, ok := payloadOf[*Stsz](video.trak.Find(TypeMdia, TypeMinf, TypeStbl), TypeStsz)
	if ok && t.Duration > 0 {
		return float64(stsz.SampleCount) / (float64(t.Duration) / float64(t.Timescale))
	}
	list, err := d.table(video)
	if err != nil {
		return 0
	}
	var dur int64
	for _, s := range list {
		dur += s.Duration
	}
	if dur == 0 {
		return 0
	}
	return float64(len(list)) / (float64(dur) / float64(t.Timescale))
}

// first returns the first track of kind k.
func (d *Demuxer) first(k media.Kind) *trackState {
	for _, ts := range d.tracks {
		if ts.track.Kind == k {
			return ts
		}
	}
	return nil
}

func (d *Demuxer) onMoof(b *Box, raw []byte) error {
	if d.moov == nil {
		return corrupt(TypeMoof, b.Offset, ErrNoMoov)
	}
	if d.fragmentAt(b.Offset) != nil {
		return nil
	}
	f, err := NewFragment(b, fragmentDefaults{d})
	if err != nil {
		return err
	}
	d.addFragment(f)
	d.hints.Moofs = append(d.hints.Moofs, *rawBox(b, raw))
	d.open = f
	return nil
}

func (d *Demuxer) addFragment(f *Fragment) {
	i := sort.Search(len(d.fragments), func(i int) bool { return d.fragments[i].Offset > f.Offset })
	d.fragments = append(d.fragments, nil)
	copy(d.fragments[i+1:], d.fragments[i:])
	d.fragments[i] = f

	for id, list := range f.Samples {
		d.tables[tableKey{TrackID: id, FragmentStart: f.Offset}] = list
	}
	d.log.Debug("fragment", "offset", f.Offset, "tracks", len(f.Samples), "unanchored", len(f.Unanchored))

	if video := d.first(media.Video); video != nil && d.h.Wants(media.FieldFps) {
		if list := f.Samples[video.track.ID]; len(list) > 0 {
			var dur int64
			for _, s := range list {
				dur += s.Duration
			}
			if dur > 0 && video.track.Timescale > 0 {
				d.h.Set(media.FieldFps, float64(len(list))/(float64(dur)/float64(video.track.Timescale)))
			}
		}
	}
	d.updateComplete()
}

func (d *Demuxer) fragmentAt(offset int64) *Fragment {
	i := sort.Search(len(d.fragments), func(i int) bool { return d.fragments[i].Offset >= offset })
	if i < len(d.fragments) && d.fragments[i].Offset == offset {
		return d.fragments[i]
	}
	return nil
}

// updateComplete marks fragments whose extent is confirmed.
func (d *Demuxer) updateComplete() {
	length := d.h.ContentLength()
	for _, f := range d.fragments {
		if f.Complete || f.DataEnd == 0 {
			continue
		}
		switch {
		case f.DataEnd >= length, d.fragmentAt(f.DataEnd) != nil, d.pointAt(f.DataEnd), d.pointAt(f.Offset):
			f.Complete = true
		}
	}
}

func (d *Demuxer) pointAt(offset int64) bool {
	for _, p := range d.points() {
		if p.Offset == offset {
			return true
		}
	}
	return false
}

// points returns the random access points known without fetching.
func (d *Demuxer) points() []AccessPoint {
	out := append([]AccessPoint(nil), d.sidx...)
	if d.mfra != nil {
		out = append(out, MfraPoints(d.mfra, d.timescale)...)
	}
	sortPoints(out)
	return out
}

func (d *Demuxer) timescale(id uint32) uint32 {
	if ts := d.byID[id]; ts != nil {
		return ts.track.Timescale
	}
	return 0
}

func (d *Demuxer) setMfra(b *Box, raw []byte) {
	if d.mfra != nil {
		return
	}
	d.mfra = b
	d.hints.Mfra = rawBox(b, raw)
	d.hints.MfraChecked = true
	d.updateComplete()
}

// fetchMoov finds the moov stored after the media data ending at from.
// Concurrent and repeated demands share one scan.
func (d *Demuxer) fetchMoov(ctx context.Context, from int64) error {
	key := fetch.Key{Source: d.h.Source(), Start: from, End: -1}
	loc, err := d.moovFetch.Do(ctx, key, func(ctx context.Context) (located, error) {
		d.log.Debug("scanning for moov", "from", from)
		rs := source.NewReadSeeker(ctx, d.h.Reader(), d.h.Source())
		defer rs.Close()
		h, raw, found, err := FindBox(rs, from, TypeMoov)
		if err != nil {
			return located{}, err
		}
		if !found {
			return located{}, corrupt(TypeMdat, from, ErrNoMoov)
		}
		return located{Offset: h.Offset, Raw: raw}, nil
	})
	if err != nil {
		return err
	}
	b, err := DecodeBox(loc.Raw, loc.Offset)
	if err != nil {
		return err
	}
	return d.onMoov(b, loc.Raw)
}

// loadMfra fetches the movie fragment random access box through the mfro
// trailer. A missing mfra is remembered like a found one.
func (d *Demuxer) loadMfra(ctx context.Context) error {
	length := d.h.ContentLength()
	if d.mfra != nil || !d.h.SupportsRange() || length < 16 {
		return nil
	}
	key := mfraKey(d.h.Source(), length)
	loc, err := d.mfraFetch.Do(ctx, key, func(ctx context.Context) (located, error) {
		d.log.Debug("fetching mfra", "length", length)
		return readMfra(ctx, d.h.Reader(), d.h.Source(), length)
	})
	if err != nil {
		return err
	}
	d.hints.MfraChecked = true
	if loc.Raw == nil {
		return nil
	}
	b, err := DecodeBox(loc.Raw, loc.Offset)
	if err != nil {
		d.log.Warn("ignoring unreadable mfra", "offset", loc.Offset, "err", err)
		return nil
	}
	d.setMfra(b, loc.Raw)
	return nil
}

func mfraKey(src string, length int64) fetch.Key {
	return fetch.Key{Source: src, Start: length - 16, End: length - 1}
}

func readMfra(ctx context.Context, r source.Reader, src string, length int64) (located, error) {
	tail, err := readRange(ctx, r, src, length-16, 16)
	if err != nil {
		return located{}, err
	}
	if BoxType(tail[4:8]) != TypeMfro {
		return located{}, nil
	}
	size := int64(be.Uint32(tail[12:16]))
	if size < 16 || size > length {
		return located{}, nil
	}
	start := length - size
	raw, err := readRange(ctx, r, src, start, size)
	if err != nil {
		return located{}, err
	}
	if BoxType(raw[4:8]) != TypeMfra || int64(be.Uint32(raw[0:4])) != size {
		return located{}, nil
	}
	return located{Offset: start, Raw: raw}, nil
}

func readRange(ctx context.Context, r source.Reader, src string, start, n int64) ([]byte, error) {
	resp, err := r.Read(ctx, src, source.Between(start, start+n-1))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	buf := make([]byte, n)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", source.Between(start, start+n-1), err)
	}
	return buf, nil
}

// finish resolves the fields still open at the end of the source. Static
// files have them all set once the moov is read.
func (d *Demuxer) finish() {
	if d.moov == nil {
		return
	}
	var end float64
	for _, f := range d.fragments {
		for id := range f.Samples {
			if _, last, ok := f.TimeRange(id); ok {
				end = max(end, last)
			}
		}
	}
	d.h.Set(media.FieldDurationInSeconds, end)
	d.h.Set(media.FieldFps, 0.0)
	d.h.Set(media.FieldKeyframes, []media.Keyframe(nil))
}

// Stalled always reports false: out-of-band fetches complete within a step.
func (d *Demuxer) Stalled() bool { return false }

type fragmentDefaults struct{ d *Demuxer }

func (f fragmentDefaults) Trex(id uint32) *Trex { return f.d.trex[id] }

func (f fragmentDefaults) Timescale(id uint32) uint32 { return f.d.timescale(id) }

// BaseDecodeTime places a fragment without tfdt from a random access entry
// at its moof, or after the previous fragment of the track when every box
// before the moof was read in order.
func (f fragmentDefaults) BaseDecodeTime(id uint32, moof int64) (uint64, bool) {
	d := f.d
	for _, p := range d.points() {
		if p.TrackID == id && p.Offset == moof {
			return uint64(math.Round(p.Time * float64(d.timescale(id)))), true
		}
	}
	if moof >= d.walked {
		return 0, false
	}
	i := sort.Search(len(d.fragments), func(i int) bool { return d.fragments[i].Offset >= moof })
	for i--; i >= 0; i-- {
		prev := d.fragments[i]
		if next, ok := prev.NextDecodeTime(id); ok {
			return next, !prev.Unanchored[id]
		}
	}
	return 0, true
}

func rawBox(b *Box, raw []byte) *RawBox {
	return &RawBox{Offset: b.Offset, Data: bytes.Clone(raw)}
}
