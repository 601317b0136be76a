package link

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cjeanneret/SkyGo/internal/link/frame"
)

// Statistics tracks link traffic and per-code decode failures.
type Statistics struct {
	StartTime time.Time

	BytesReceived  uint64
	BytesDiscarded uint64 // bytes outside any frame
	FramesDecoded  uint64
	FramesSent     uint64

	MalformedFrames    uint64
	ChecksumFormat     uint64
	ChecksumMismatches uint64
	TooFewFields       uint64
	UnknownTypes       uint64
}

// FramesDropped returns the total number of frames that failed to decode.
func (s Statistics) FramesDropped() uint64 {
	return s.MalformedFrames + s.ChecksumFormat + s.ChecksumMismatches + s.TooFewFields + s.UnknownTypes
}

func (s *Statistics) recordDrop(err error) {
	switch {
	case errors.Is(err, frame.ErrChecksumMismatch):
		s.ChecksumMismatches++
	case errors.Is(err, frame.ErrChecksumFormat):
		s.ChecksumFormat++
	case errors.Is(err, frame.ErrTooFewFields):
		s.TooFewFields++
	case errors.Is(err, frame.ErrUnknownType):
		s.UnknownTypes++
	default:
		s.MalformedFrames++
	}
}

// String returns a formatted statistics summary.
func (s Statistics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Link statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Bytes received:   %8d\n", s.BytesReceived)
	fmt.Fprintf(&b, "Bytes discarded:  %8d\n", s.BytesDiscarded)
	fmt.Fprintf(&b, "Frames decoded:   %8d\n", s.FramesDecoded)
	fmt.Fprintf(&b, "Frames sent:      %8d\n", s.FramesSent)
	if dropped := s.FramesDropped(); dropped > 0 {
		fmt.Fprintf(&b, "Frames dropped:   %8d\n", dropped)
		if s.ChecksumMismatches > 0 {
			fmt.Fprintf(&b, "  CRC mismatch:     %5d\n", s.ChecksumMismatches)
		}
		if s.ChecksumFormat > 0 {
			fmt.Fprintf(&b, "  CRC format:       %5d\n", s.ChecksumFormat)
		}
		if s.MalformedFrames > 0 {
			fmt.Fprintf(&b, "  Malformed:        %5d\n", s.MalformedFrames)
		}
		if s.TooFewFields > 0 {
			fmt.Fprintf(&b, "  Too few fields:   %5d\n", s.TooFewFields)
		}
		if s.UnknownTypes > 0 {
			fmt.Fprintf(&b, "  Unknown type:     %5d\n", s.UnknownTypes)
		}
	}
	b.WriteString("=====================================\n")
	return b.String()
}
