package voice

import (
	"go.uber.org/zap"
)

// Speech is the external text-to-speech collaborator. Both calls are
// fire-and-forget; synthesis failures never surface to the caller.
type Speech interface {
	Speak(text string, volume float64)
	Cancel()
}

// Announcer triggers voice prompts for the navigation session. A new
// announcement always preempts the in-flight utterance, so at most one
// utterance is ever queued.
type Announcer struct {
	speech Speech
	volume float64
	logger *zap.SugaredLogger
}

// NewAnnouncer creates an announcer speaking at the given volume (0.0-1.0).
func NewAnnouncer(speech Speech, volume float64, logger *zap.SugaredLogger) *Announcer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	return &Announcer{speech: speech, volume: volume, logger: logger}
}

// Announce cancels any in-flight utterance and speaks text. Missing
// voice output is not a functional failure, so nothing is returned.
func (a *Announcer) Announce(text string) {
	if text == "" {
		return
	}
	a.logger.Debugw("announce", "text", text)
	a.speech.Cancel()
	a.speech.Speak(text, a.volume)
}

// Silence cancels any in-flight utterance without speaking.
func (a *Announcer) Silence() {
	a.speech.Cancel()
}
