package indraw

import "fmt"

// FrameState tracks where an ArgTable is in its per-frame lifecycle. The
// transitions are strictly sequential: Cleared -> OffsetsComputed ->
// Populated -> Consumed, then Cleared again for the next frame. Running a
// pass out of order corrupts the counters silently on the device, so the
// host-side orchestration refuses to encode it in the first place.
type FrameState int

const (
	FrameCleared FrameState = iota
	FrameOffsetsComputed
	FramePopulated
	FrameConsumed
)

func (s FrameState) String() string {
	switch s {
	case FrameCleared:
		return "Cleared"
	case FrameOffsetsComputed:
		return "OffsetsComputed"
	case FramePopulated:
		return "Populated"
	case FrameConsumed:
		return "Consumed"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

func (s FrameState) advance(from, to FrameState) (FrameState, error) {
	if s != from {
		return s, fmt.Errorf("frame state is %v, expected %v before entering %v", s, from, to)
	}
	return to, nil
}
