package app

import (
	"fmt"

	"github.com/metcalfc/aeonsight/internal/speech"
	"github.com/metcalfc/aeonsight/internal/state"
)

// Speech backends accepted by NewSynthesizer.
const (
	VoiceSystem = "system"
	VoicePaced  = "paced"
	VoiceOff    = "off"
)

// NewSynthesizer picks a speech backend. The system backend needs a
// speech command on PATH; without one it returns speech.ErrSpeechUnsupported
// and a nil synthesizer, which leaves read-aloud disabled. The paced
// backend is silent and moves the highlight at the voice's reading pace.
func NewSynthesizer(backend string, tts state.TTS) (speech.Synthesizer, error) {
	voice := speech.Voice{Rate: tts.Rate, Pitch: tts.Pitch, Name: tts.Voice}
	switch backend {
	case VoiceSystem, "":
		s, err := speech.NewCommandSynthesizer(voice)
		if err != nil {
			return nil, err
		}
		return s, nil
	case VoicePaced:
		return speech.NewPacedSynthesizer(voice.WPM()), nil
	case VoiceOff:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown voice backend %q (choose %s, %s, %s)", backend, VoiceSystem, VoicePaced, VoiceOff)
}
