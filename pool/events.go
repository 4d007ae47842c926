package pool

import "log/slog"

// SlogEventSink emits pool events as structured slog records, grounded on
// the teacher's observability/logging setup (one JSON handler, fields
// attached via slog.Attr) rather than the deleted event-bus plumbing that
// was specific to the host chain's block pipeline.
type SlogEventSink struct {
	log *slog.Logger
}

// NewSlogEventSink wraps log as an EventSink.
func NewSlogEventSink(log *slog.Logger) *SlogEventSink {
	return &SlogEventSink{log: log}
}

func (s *SlogEventSink) Emit(kind string, attrs map[string]string) {
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	s.log.Info(kind, args...)
}
