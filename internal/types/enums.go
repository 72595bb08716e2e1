package types

import (
	"fmt"
	"strings"
)

// Voice represents the prebuilt voices offered by the realtime speech model
type Voice string

const (
	// VoicePuck - An upbeat, conversational voice
	VoicePuck Voice = "puck"

	// VoiceCharon - A calm, informative voice with a low register
	VoiceCharon Voice = "charon"

	// VoiceKore - A firm, confident voice
	VoiceKore Voice = "kore"

	// VoiceFenrir - An excitable, energetic voice
	VoiceFenrir Voice = "fenrir"

	// VoiceAoede - A breezy, relaxed voice
	VoiceAoede Voice = "aoede"
)

// VoiceDefault is used when a payload names no voice or an unknown one
const VoiceDefault = VoicePuck

// Modality is a single output modality of the realtime model
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityAudio Modality = "AUDIO"
)

// Role tags a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

var (
	// AllVoices contains all valid voices
	AllVoices = []Voice{
		VoicePuck,
		VoiceCharon,
		VoiceKore,
		VoiceFenrir,
		VoiceAoede,
	}

	// voiceMap maps string values to Voice
	voiceMap = map[string]Voice{
		string(VoicePuck):   VoicePuck,
		string(VoiceCharon): VoiceCharon,
		string(VoiceKore):   VoiceKore,
		string(VoiceFenrir): VoiceFenrir,
		string(VoiceAoede):  VoiceAoede,
	}

	roleMap = map[string]Role{
		string(RoleSystem):    RoleSystem,
		string(RoleUser):      RoleUser,
		string(RoleAssistant): RoleAssistant,
		string(RoleTool):      RoleTool,
	}
)

// Error types for invalid values
var (
	ErrInvalidVoice = fmt.Errorf("invalid voice")
	ErrInvalidRole  = fmt.Errorf("invalid role")
)

// IsValid checks if the Voice is valid
func (v Voice) IsValid() bool {
	_, ok := voiceMap[string(v)]
	return ok
}

// String converts the enum to string
func (v Voice) String() string {
	return string(v)
}

// ModelName returns the voice name in the casing the speech model expects
func (v Voice) ModelName() string {
	if v == "" {
		return ""
	}
	return strings.ToUpper(string(v[:1])) + string(v[1:])
}

// ParseVoice parses a string into a Voice, ignoring case
func ParseVoice(s string) (Voice, error) {
	if voice, ok := voiceMap[strings.ToLower(strings.TrimSpace(s))]; ok {
		return voice, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidVoice, s)
}

// GetAllVoices returns all valid voices
func GetAllVoices() []Voice {
	return AllVoices
}

// Description returns a human-readable description of the voice
func (v Voice) Description() string {
	switch v {
	case VoicePuck:
		return "An upbeat, conversational voice"
	case VoiceCharon:
		return "A calm, informative voice with a low register"
	case VoiceKore:
		return "A firm, confident voice"
	case VoiceFenrir:
		return "An excitable, energetic voice"
	case VoiceAoede:
		return "A breezy, relaxed voice"
	default:
		return "Unknown voice"
	}
}

// ParseRole parses a string into a Role
func ParseRole(s string) (Role, error) {
	if role, ok := roleMap[s]; ok {
		return role, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidRole, s)
}

// Modalities is an ordered modality set
type Modalities []Modality

var modalitiesMap = map[string]Modalities{
	"text_and_audio": {ModalityText, ModalityAudio},
	"text_only":      {ModalityText},
	"audio_only":     {ModalityAudio},
}

// ParseModalities maps one of the enumerated modality names to a set.
// Unknown names deliberately resolve to audio only.
func ParseModalities(s string) Modalities {
	if m, ok := modalitiesMap[s]; ok {
		out := make(Modalities, len(m))
		copy(out, m)
		return out
	}
	return Modalities{ModalityAudio}
}

// Has reports whether the set contains m
func (ms Modalities) Has(m Modality) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

// TextOnly reports whether the set produces text and no audio
func (ms Modalities) TextOnly() bool {
	return ms.Has(ModalityText) && !ms.Has(ModalityAudio)
}

// Equal compares two sets, ignoring order
func (ms Modalities) Equal(other Modalities) bool {
	if len(ms) != len(other) {
		return false
	}
	for _, m := range ms {
		if !other.Has(m) {
			return false
		}
	}
	return true
}

// Strings returns the modality names
func (ms Modalities) Strings() []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, string(m))
	}
	return out
}
