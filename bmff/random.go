package bmff

import "sort"

// AccessPoint is a fragment start whose presentation time is known in
// advance from an mfra or sidx index.
type AccessPoint struct {
	TrackID uint32
	// Time is in seconds.
	Time float64
	// Offset is the position of the moof (or segment) to read.
	Offset int64
}

// MfraPoints lists the random access entries of mfra for every track with
// a known timescale, sorted by time.
func MfraPoints(mfra *Box, timescale func(id uint32) uint32) []AccessPoint {
	var out []AccessPoint
	for _, b := range mfra.ChildList(TypeTfra) {
		tfra, ok := b.Payload.(*Tfra)
		if !ok {
			continue
		}
		ts := timescale(tfra.TrackID)
		if ts == 0 {
			continue
		}
		for _, e := range tfra.Entries {
			out = append(out, AccessPoint{
				TrackID: tfra.TrackID,
				Time:    float64(e.Time) / float64(ts),
				Offset:  int64(e.MoofOffset),
			})
		}
	}
	sortPoints(out)
	return out
}

// SidxPoints lists the media segments referenced by the segment index sidx,
// a box ending at end.
func SidxPoints(sidx *Sidx, end int64) []AccessPoint {
	if sidx.Timescale == 0 {
		return nil
	}
	out := make([]AccessPoint, 0, len(sidx.References))
	off := end + int64(sidx.FirstOffset)
	t := sidx.EarliestPresentationTime
	for _, ref := range sidx.References {
		if !ref.ReferenceType {
			out = append(out, AccessPoint{
				TrackID: sidx.ReferenceID,
				Time:    float64(t) / float64(sidx.Timescale),
				Offset:  off,
			})
		}
		off += int64(ref.ReferencedSize)
		t += uint64(ref.SubsegmentDuration)
	}
	return out
}

func sortPoints(p []AccessPoint) {
	sort.SliceStable(p, func(i, j int) bool { return p[i].Time < p[j].Time })
}

// PointBefore returns the last point of track id at or before t.
func PointBefore(points []AccessPoint, id uint32, t float64) (AccessPoint, bool) {
	var best AccessPoint
	found := false
	for _, p := range points {
		if p.TrackID != id || p.Time > t {
			continue
		}
		if !found || p.Time >= best.Time {
			best, found = p, true
		}
	}
	return best, found
}
