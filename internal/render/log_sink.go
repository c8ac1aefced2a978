package render

import (
	"context"

	"simdash/logging"
	loggingPlayback "simdash/logging/playback"
)

// LogSink publishes a debug event for every rendered slice.
type LogSink struct {
	pub logging.Publisher
}

func NewLogSink(pub logging.Publisher) *LogSink {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &LogSink{pub: pub}
}

func (s *LogSink) Render(slice Slice) {
	loggingPlayback.FrameRendered(context.Background(), s.pub, slice.Frame, loggingPlayback.FrameRenderedPayload{
		Element: slice.Index,
		Bytes:   len(slice.Data),
	})
}

func (s *LogSink) Reset() {}
