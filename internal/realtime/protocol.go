package realtime

import (
	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/types"
	"google.golang.org/genai"
)

const inputAudioMimeType = "audio/pcm;rate=16000"

// liveConnectConfig maps model options to the Live setup. The Live API has
// no presence or frequency penalty, so those options only reach the text
// backend.
func liveConnectConfig(opts agent.ModelOptions) *genai.LiveConnectConfig {
	modalities := make([]genai.Modality, 0, len(opts.Modalities))
	for _, m := range opts.Modalities.Strings() {
		modalities = append(modalities, genai.Modality(m))
	}

	cfg := &genai.LiveConnectConfig{
		ResponseModalities: modalities,
		Temperature:        genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = int32(*opts.MaxOutputTokens)
	}
	if opts.Modalities.Has(types.ModalityAudio) {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice.ModelName()},
			},
		}
		if opts.EnableUserAudioTranscription {
			cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		}
		if opts.EnableAgentAudioTranscription {
			cfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
		}
	}
	if opts.Instructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.Instructions, genai.RoleUser)
	}
	return cfg
}

// historyTurns converts chat history to Live turns. System items are sent
// as user turns; items with no text are skipped.
func historyTurns(msgs []conversation.Message) []*genai.Content {
	turns := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		switch m.Role {
		case types.RoleAssistant:
			role = genai.RoleModel
		case types.RoleTool:
			continue
		}
		turns = append(turns, genai.NewContentFromText(m.Content, role))
	}
	return turns
}

// liveMessage is one queued client message: turn content or a realtime
// input chunk
type liveMessage struct {
	content  *genai.LiveClientContentInput
	realtime *genai.LiveRealtimeInput
}

func (m liveMessage) send(sess *genai.Session) error {
	if m.realtime != nil {
		return sess.SendRealtimeInput(*m.realtime)
	}
	return sess.SendClientContent(*m.content)
}

// contextMessage adds turns to the model context without asking for a reply
func contextMessage(turns []*genai.Content) liveMessage {
	return liveMessage{content: &genai.LiveClientContentInput{
		Turns:        turns,
		TurnComplete: genai.Ptr(false),
	}}
}

// turnMessage completes the user turn, with optional trailing turns
func turnMessage(turns []*genai.Content) liveMessage {
	return liveMessage{content: &genai.LiveClientContentInput{
		Turns:        turns,
		TurnComplete: genai.Ptr(true),
	}}
}

func audioMessage(frame []byte) liveMessage {
	return liveMessage{realtime: &genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: frame, MIMEType: inputAudioMimeType},
	}}
}
