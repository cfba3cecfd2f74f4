package bmff

import (
	"encoding/json"
	"sort"

	"github.com/tetsuo/mediaparse/media"
)

// Hints is the structure a Demuxer decoded, kept as raw boxes so a later
// session on the same source can replay it instead of reading it again.
type Hints struct {
	Ftyp  *RawBox  `json:"ftyp,omitempty"`
	Moov  *RawBox  `json:"moov,omitempty"`
	Moofs []RawBox `json:"moofs,omitempty"`
	Sidx  []RawBox `json:"sidx,omitempty"`
	Mfra  *RawBox  `json:"mfra,omitempty"`
	// MfraChecked is set once the mfro trailer was looked up, found or not.
	MfraChecked bool `json:"mfraChecked,omitempty"`
	// Walked is the offset up to which every top-level box was read in
	// order.
	Walked int64 `json:"walked,omitempty"`
}

// RawBox is a box's bytes and position in the source. DataEnd is the end of
// the mdat following a moof, when seen.
type RawBox struct {
	Offset  int64  `json:"offset"`
	Data    []byte `json:"data"`
	DataEnd int64  `json:"dataEnd,omitempty"`
}

func (r *RawBox) decode() (*Box, error) {
	return DecodeBox(r.Data, r.Offset)
}

// Snapshot captures the decoded structure as Hints.
func (d *Demuxer) Snapshot() (json.RawMessage, error) {
	hs := d.hints
	hs.Walked = d.walked
	hs.Moofs = append([]RawBox(nil), d.hints.Moofs...)
	for i := range hs.Moofs {
		if f := d.fragmentAt(hs.Moofs[i].Offset); f != nil {
			hs.Moofs[i].DataEnd = f.DataEnd
		}
	}
	return json.Marshal(hs)
}

// replay decodes hinted boxes as if they had been parsed from the stream.
func (d *Demuxer) replay(hs Hints) error {
	if hs.Ftyp != nil {
		if err := d.replayBox(hs.Ftyp); err != nil {
			return err
		}
	}
	if hs.Moov != nil {
		if err := d.replayBox(hs.Moov); err != nil {
			return err
		}
	}
	for i := range hs.Sidx {
		if err := d.replayBox(&hs.Sidx[i]); err != nil {
			return err
		}
	}
	if hs.Mfra != nil {
		if err := d.replayBox(hs.Mfra); err != nil {
			return err
		}
	}
	if d.moov != nil {
		// Fragments without tfdt are placed after their predecessor, so
		// they are replayed in file order.
		d.walked = max(d.walked, hs.Walked)
		sort.SliceStable(hs.Moofs, func(i, j int) bool { return hs.Moofs[i].Offset < hs.Moofs[j].Offset })
		for i := range hs.Moofs {
			m := &hs.Moofs[i]
			if err := d.replayBox(m); err != nil {
				return err
			}
			if f := d.fragmentAt(m.Offset); f != nil && m.DataEnd > 0 {
				f.DataEnd = m.DataEnd
			}
		}
		d.open = nil
		d.updateComplete()
	}
	if hs.MfraChecked {
		d.hints.MfraChecked = true
		if hs.Mfra == nil && d.h.ContentLength() >= 16 {
			d.mfraFetch.Store(mfraKey(d.h.Source(), d.h.ContentLength()), located{})
		}
	}
	d.log.Debug("replayed hints", "moov", d.moov != nil, "fragments", len(d.fragments))
	return nil
}

func (d *Demuxer) replayBox(r *RawBox) error {
	b, err := r.decode()
	if err != nil {
		d.log.Warn("ignoring unreadable hinted box", "offset", r.Offset, "err", err)
		return nil
	}
	return d.onBox(b, r.Data)
}

var _ media.Demuxer = (*Demuxer)(nil)
