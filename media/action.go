package media

import "fmt"

// Op is the kind of an Action.
type Op int

const (
	OpContinue Op = iota
	OpNeedMoreData
	OpSkip
	OpDone
)

func (o Op) String() string {
	switch o {
	case OpNeedMoreData:
		return "need-more-data"
	case OpSkip:
		return "skip"
	case OpDone:
		return "done"
	}
	return "continue"
}

// Action is what a demuxer step asks the parse loop to do next.
type Action struct {
	Op Op
	// Need is the number of missing bytes for OpNeedMoreData.
	Need int
	// To is the absolute target offset for OpSkip.
	To int64
}

// Continue reports that bytes were consumed and another step may follow.
func Continue() Action { return Action{Op: OpContinue} }

// NeedMoreData asks for at least n more bytes at the current offset.
func NeedMoreData(n int) Action { return Action{Op: OpNeedMoreData, Need: n} }

// SkipTo asks the loop to continue parsing at offset.
func SkipTo(offset int64) Action { return Action{Op: OpSkip, To: offset} }

// Done reports that nothing more needs to be parsed.
func Done() Action { return Action{Op: OpDone} }

func (a Action) String() string {
	switch a.Op {
	case OpNeedMoreData:
		return fmt.Sprintf("need-more-data(%d)", a.Need)
	case OpSkip:
		return fmt.Sprintf("skip(%d)", a.To)
	}
	return a.Op.String()
}

// SeekKind is the outcome of resolving a seek.
type SeekKind int

const (
	// Invalid means the target cannot be resolved, e.g. no seekable track.
	Invalid SeekKind = iota
	// DoSeek positions parsing at Byte, where a keyframe at Time starts.
	DoSeek
	// IntermediarySeek positions parsing at Byte to learn more structure;
	// the seek stays pending.
	IntermediarySeek
	// MustWait means more of the file must be parsed before resolving.
	MustWait
)

func (k SeekKind) String() string {
	switch k {
	case DoSeek:
		return "do-seek"
	case IntermediarySeek:
		return "intermediary-seek"
	case MustWait:
		return "must-wait"
	}
	return "invalid"
}

// SeekResolution is the result of resolving a target time.
type SeekResolution struct {
	Kind SeekKind
	Byte int64
	Time float64
}

func (r SeekResolution) String() string {
	switch r.Kind {
	case DoSeek:
		return fmt.Sprintf("do-seek(%d @ %.3fs)", r.Byte, r.Time)
	case IntermediarySeek:
		return fmt.Sprintf("intermediary-seek(%d)", r.Byte)
	}
	return r.Kind.String()
}
