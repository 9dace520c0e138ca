package voice

import (
	"go.uber.org/zap"
)

// LogSpeech is a Speech backend that writes utterances to the log. The
// companion app performs actual synthesis on-device; server-side the
// prompt stream is only observable.
type LogSpeech struct {
	logger *zap.SugaredLogger
}

// NewLogSpeech creates a logging speech backend.
func NewLogSpeech(logger *zap.SugaredLogger) *LogSpeech {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogSpeech{logger: logger}
}

// Speak logs the utterance.
func (s *LogSpeech) Speak(text string, volume float64) {
	s.logger.Infow("speak", "text", text, "volume", volume)
}

// Cancel is a no-op; logged utterances cannot be recalled.
func (s *LogSpeech) Cancel() {}
