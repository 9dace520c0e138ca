package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type speechCall struct {
	op     string
	text   string
	volume float64
}

type fakeSpeech struct {
	calls []speechCall
}

func (f *fakeSpeech) Speak(text string, volume float64) {
	f.calls = append(f.calls, speechCall{op: "speak", text: text, volume: volume})
}

func (f *fakeSpeech) Cancel() {
	f.calls = append(f.calls, speechCall{op: "cancel"})
}

func TestAnnouncer_PreemptsBeforeSpeaking(t *testing.T) {
	speech := &fakeSpeech{}
	announcer := NewAnnouncer(speech, 0.8, nil)

	announcer.Announce("In 200 m, turn right")

	require.Len(t, speech.calls, 2)
	assert.Equal(t, "cancel", speech.calls[0].op)
	assert.Equal(t, "speak", speech.calls[1].op)
	assert.Equal(t, "In 200 m, turn right", speech.calls[1].text)
	assert.Equal(t, 0.8, speech.calls[1].volume)
}

func TestAnnouncer_NewAnnouncementReplacesOld(t *testing.T) {
	speech := &fakeSpeech{}
	announcer := NewAnnouncer(speech, 1.0, nil)

	announcer.Announce("first")
	announcer.Announce("second")

	var spoken []string
	for _, c := range speech.calls {
		if c.op == "speak" {
			spoken = append(spoken, c.text)
		}
	}
	assert.Equal(t, []string{"first", "second"}, spoken)
	// Each announce cancels before speaking, so the second always preempts.
	assert.Equal(t, "cancel", speech.calls[2].op)
}

func TestAnnouncer_SilenceAndEmptyText(t *testing.T) {
	speech := &fakeSpeech{}
	announcer := NewAnnouncer(speech, 0.5, nil)

	announcer.Announce("")
	assert.Empty(t, speech.calls, "empty text is a no-op")

	announcer.Silence()
	require.Len(t, speech.calls, 1)
	assert.Equal(t, "cancel", speech.calls[0].op)
}

func TestAnnouncer_VolumeClamped(t *testing.T) {
	speech := &fakeSpeech{}
	announcer := NewAnnouncer(speech, 1.7, nil)

	announcer.Announce("hello")
	assert.Equal(t, 1.0, speech.calls[1].volume)
}
