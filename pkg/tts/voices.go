package tts

import "strings"

// Vietlike is the premade Vietnamese voice used by the inbound persona.
var Vietlike = Voice{
	ID:       "mvYbQ2cRw9pAg9c9WOAc",
	Name:     "Vietlike",
	Category: "premade",
	Settings: VoiceSettings{
		Stability:       0.71,
		SimilarityBoost: 0.5,
		Style:           0.0,
		SpeakerBoost:    true,
	},
}

// Voices maps lowercase preset names to ElevenLabs voices.
var Voices = map[string]Voice{
	"vietlike":  Vietlike,
	"charlotte": premade("XB0fDUnXU5powFXDhCwa", "Charlotte"), // British female, warm
	"aria":      premade("9BWtsMINqrJLrRacOk9x", "Aria"),      // American female, expressive
	"sarah":     premade("EXAVITQu4vr4xnSDxMaL", "Sarah"),     // American female, soft
	"rachel":    premade("21m00Tcm4TlvDq8ikWAM", "Rachel"),    // American female, calm
	"josh":      premade("TxGEqnHWrfWFTfGW9XjX", "Josh"),      // American male, deep
	"adam":      premade("pNInz6obpgDQGcFmaJgB", "Adam"),      // American male, deep
}

func premade(id, name string) Voice {
	return Voice{ID: id, Name: name, Category: "premade", Settings: DefaultVoiceSettings()}
}

// LookupVoice returns the preset for a name or voice ID.
func LookupVoice(nameOrID string) (Voice, bool) {
	if v, ok := Voices[strings.ToLower(nameOrID)]; ok {
		return v, true
	}
	for _, v := range Voices {
		if v.ID == nameOrID {
			return v, true
		}
	}
	return Voice{}, false
}
