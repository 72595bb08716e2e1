package realtime

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const livePath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

type wirePart struct {
	Text       string    `json:"text"`
	InlineData *wireBlob `json:"inlineData"`
}

type wireBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireSetup struct {
	Model            string `json:"model"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		MaxOutputTokens    int      `json:"maxOutputTokens"`
		SpeechConfig       *struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	} `json:"generationConfig"`
	SystemInstruction        *wireContent `json:"systemInstruction"`
	OutputAudioTranscription *struct{}    `json:"outputAudioTranscription"`
}

type wireMessage struct {
	Setup         *wireSetup `json:"setup"`
	ClientContent *struct {
		Turns        []wireContent `json:"turns"`
		TurnComplete bool          `json:"turnComplete"`
	} `json:"clientContent"`
	RealtimeInput *struct {
		Audio *wireBlob `json:"audio"`
	} `json:"realtimeInput"`
	conn int
}

// fakeLive is a minimal Gemini Live server: it acknowledges setup and
// answers every completed turn with one text part and one audio chunk.
// Messages are tagged with the connection they arrived on.
type fakeLive struct {
	server   *httptest.Server
	received chan wireMessage
	keys     chan string
	ackSetup bool

	mu    sync.Mutex
	conns int
}

func newFakeLive(t *testing.T, ackSetup bool) *fakeLive {
	f := &fakeLive{
		received: make(chan wireMessage, 32),
		keys:     make(chan string, 4),
		ackSetup: ackSetup,
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != livePath {
			http.NotFound(w, r)
			return
		}
		f.keys <- r.Header.Get("x-goog-api-key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.conns++
		id := f.conns
		f.mu.Unlock()
		f.serve(conn, id)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLive) baseURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/"
}

func (f *fakeLive) serve(conn *websocket.Conn, id int) {
	var first wireMessage
	if err := conn.ReadJSON(&first); err != nil {
		return
	}
	first.conn = id
	f.received <- first
	if !f.ackSetup {
		conn.WriteJSON(map[string]interface{}{"serverContent": map[string]interface{}{}})
		return
	}
	conn.WriteJSON(map[string]interface{}{"setupComplete": map[string]interface{}{}})

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		msg.conn = id
		f.received <- msg
		if msg.ClientContent != nil && msg.ClientContent.TurnComplete {
			conn.WriteJSON(map[string]interface{}{"serverContent": map[string]interface{}{
				"modelTurn": wireContent{Role: "model", Parts: []wirePart{
					{Text: "Hello, thanks for having me."},
					{InlineData: &wireBlob{MimeType: "audio/pcm;rate=24000", Data: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}},
				}},
			}})
			conn.WriteJSON(map[string]interface{}{"serverContent": map[string]interface{}{"turnComplete": true}})
		}
	}
}

func (f *fakeLive) next(t *testing.T) wireMessage {
	t.Helper()
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client message")
		return wireMessage{}
	}
}

// none asserts nothing else arrives within a short window
func (f *fakeLive) none(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.received:
		t.Fatalf("unexpected client message on connection %d: %+v", msg.conn, msg)
	case <-time.After(200 * time.Millisecond):
	}
}

// historyTexts counts each text sent as context, per connection
func historyTexts(msgs []wireMessage) map[int]map[string]int {
	out := make(map[int]map[string]int)
	for _, msg := range msgs {
		if msg.ClientContent == nil {
			continue
		}
		if out[msg.conn] == nil {
			out[msg.conn] = make(map[string]int)
		}
		for _, turn := range msg.ClientContent.Turns {
			for _, p := range turn.Parts {
				out[msg.conn][p.Text]++
			}
		}
	}
	return out
}

func liveOptions() agent.ModelOptions {
	return agent.ModelOptions{
		APIKey:          "test-key",
		Instructions:    "You are the candidate.",
		Modalities:      types.ParseModalities("audio_only"),
		Voice:           types.VoiceKore,
		Temperature:     0.6,
		MaxOutputTokens: agent.IntPtr(512),
	}
}

func collectEvents(s agent.RealtimeSession) chan agent.Event {
	events := make(chan agent.Event, 64)
	s.OnEvent(func(ev agent.Event) {
		events <- ev
	})
	return events
}

func waitFor(t *testing.T, events chan agent.Event, typ agent.EventType) agent.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return agent.Event{}
		}
	}
}

func newLiveModel(t *testing.T, live *fakeLive, opts agent.ModelOptions) agent.RealtimeModel {
	t.Helper()
	framework := NewFramework(Config{BaseURL: live.baseURL(), LiveModel: "gemini-test"})
	model, err := framework.NewModel(context.Background(), opts)
	require.NoError(t, err)
	require.IsType(t, &GeminiModel{}, model)
	return model
}

func TestGeminiSessionRoundTrip(t *testing.T) {
	live := newFakeLive(t, true)
	model := newLiveModel(t, live, liveOptions())

	chat := conversation.NewChatContext(
		conversation.NewMessage(types.RoleSystem, "Protocol"),
		conversation.NewMessage(types.RoleUser, "Please begin"),
	)
	session, err := model.NewSession(chat)
	require.NoError(t, err)
	events := collectEvents(session)

	require.NoError(t, session.Start(context.Background()))
	assert.True(t, session.Running())
	assert.Equal(t, "test-key", <-live.keys)

	setupMsg := live.next(t)
	require.NotNil(t, setupMsg.Setup)
	assert.Equal(t, "models/gemini-test", setupMsg.Setup.Model)
	assert.Equal(t, []string{"AUDIO"}, setupMsg.Setup.GenerationConfig.ResponseModalities)
	assert.Equal(t, 512, setupMsg.Setup.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, setupMsg.Setup.GenerationConfig.SpeechConfig)
	assert.Equal(t, "Kore", setupMsg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	require.NotNil(t, setupMsg.Setup.SystemInstruction)
	assert.Equal(t, "You are the candidate.", setupMsg.Setup.SystemInstruction.Parts[0].Text)

	history := live.next(t)
	require.NotNil(t, history.ClientContent)
	require.Len(t, history.ClientContent.Turns, 2)
	assert.Equal(t, "user", history.ClientContent.Turns[0].Role)
	assert.False(t, history.ClientContent.TurnComplete)

	require.NoError(t, session.GenerateReply(context.Background(), agent.ReplyCancelExisting))
	assert.True(t, live.next(t).ClientContent.TurnComplete)

	audio := waitFor(t, events, agent.EventAudio)
	assert.Equal(t, []byte{1, 2, 3}, audio.Audio)
	item := waitFor(t, events, agent.EventItemCommitted)
	assert.Equal(t, types.RoleAssistant, item.Message.Role)
	assert.Equal(t, "Hello, thanks for having me.", item.Message.Content)
	assert.Equal(t, 3, session.ChatContextCopy().Len())

	require.NoError(t, session.Cancel(context.Background()))
	assert.False(t, session.Running())
	assert.ErrorIs(t, session.PushText(context.Background(), "late"), agent.ErrSessionClosed)
}

func TestGeminiAudioOpensUserItem(t *testing.T) {
	live := newFakeLive(t, true)
	model := newLiveModel(t, live, liveOptions())

	session, err := model.NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))
	defer session.Cancel(context.Background())
	live.next(t)

	require.NoError(t, session.PushAudio(context.Background(), []byte{0, 1}))
	require.NoError(t, session.PushAudio(context.Background(), []byte{2, 3}))

	chunk := live.next(t)
	require.NotNil(t, chunk.RealtimeInput)
	require.NotNil(t, chunk.RealtimeInput.Audio)
	assert.Equal(t, inputAudioMimeType, chunk.RealtimeInput.Audio.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0, 1}), chunk.RealtimeInput.Audio.Data)
	live.next(t)

	msgs := session.ChatContextCopy().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.True(t, msgs[0].Empty())
}

func TestGeminiReopenSendsHistoryOncePerConnection(t *testing.T) {
	live := newFakeLive(t, true)
	model := newLiveModel(t, live, liveOptions())

	seeded := conversation.NewChatContext(
		conversation.NewMessage(types.RoleSystem, "Protocol"),
		conversation.NewMessage(types.RoleUser, "Please begin"),
	)
	session, err := model.NewSession(seeded)
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))

	var sent []wireMessage
	sent = append(sent, live.next(t), live.next(t))

	require.NoError(t, session.Reopen(context.Background()))
	assert.True(t, session.Running())
	reopenSetup := live.next(t)
	require.NotNil(t, reopenSetup.Setup)
	assert.Equal(t, 2, reopenSetup.conn)
	live.none(t)

	chat := seeded.Copy()
	chat.Append(conversation.NewMessage(types.RoleSystem, "Configuration has been updated."))
	chat.Append(conversation.NewMessage(types.RoleAssistant, "I've updated my configuration."))
	require.NoError(t, session.SetChatContext(context.Background(), chat))

	pushed := live.next(t)
	require.NotNil(t, pushed.ClientContent)
	assert.Equal(t, 2, pushed.conn)
	assert.False(t, pushed.ClientContent.TurnComplete)
	require.Len(t, pushed.ClientContent.Turns, 4)
	assert.Equal(t, "model", pushed.ClientContent.Turns[3].Role)
	live.none(t)
	sent = append(sent, pushed)

	counts := historyTexts(sent)
	assert.Equal(t, map[string]int{"Protocol": 1, "Please begin": 1}, counts[1])
	assert.Equal(t, map[string]int{
		"Protocol":                        1,
		"Please begin":                    1,
		"Configuration has been updated.": 1,
		"I've updated my configuration.":  1,
	}, counts[2])
	assert.Equal(t, 4, session.ChatContextCopy().Len())

	require.NoError(t, model.Close(context.Background()))
	assert.False(t, session.Running())
	_, err = model.NewSession(nil)
	assert.Error(t, err)
}

func TestGeminiSetupNotAcknowledged(t *testing.T) {
	live := newFakeLive(t, false)
	model := newLiveModel(t, live, liveOptions())

	session, err := model.NewSession(nil)
	require.NoError(t, err)
	err = session.Start(context.Background())
	assert.ErrorContains(t, err, "setup was not acknowledged")
	assert.False(t, session.Running())
}

func TestGeminiTranscriptionFromOutputAudio(t *testing.T) {
	opts := liveOptions()
	opts.EnableAgentAudioTranscription = true
	cfg := liveConnectConfig(opts)
	require.NotNil(t, cfg.OutputAudioTranscription)
	assert.Nil(t, cfg.InputAudioTranscription)

	m := newGeminiModel(nil, "gemini-test", opts)
	s, err := m.NewSession(nil)
	require.NoError(t, err)
	events := collectEvents(s)
	gs := s.(*GeminiSession)

	gs.handleServerContent(&genai.LiveServerContent{OutputTranscription: &genai.Transcription{Text: "I led "}})
	gs.handleServerContent(&genai.LiveServerContent{OutputTranscription: &genai.Transcription{Text: "the migration."}})
	gs.handleServerContent(&genai.LiveServerContent{TurnComplete: true})

	final := waitFor(t, events, agent.EventItemCommitted)
	assert.Equal(t, "I led the migration.", final.Message.Content)
	waitFor(t, events, agent.EventTurnComplete)
}

func TestGeminiPushAudioTextOnlyOptions(t *testing.T) {
	opts := liveOptions()
	opts.Modalities = types.Modalities{types.ModalityText}
	m := newGeminiModel(nil, "gemini-test", opts)
	s, err := m.NewSession(nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.PushAudio(context.Background(), []byte{1}), agent.ErrAudioUnsupported)
}

func TestHistoryTurnsSkipsEmptyItems(t *testing.T) {
	turns := historyTurns([]conversation.Message{
		conversation.NewMessage(types.RoleSystem, "persona"),
		{Role: types.RoleUser},
		{Role: types.RoleTool, Content: "result", ToolCallID: "c1"},
		conversation.NewMessage(types.RoleAssistant, "answer"),
	})
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "model", turns[1].Role)
}

func TestLiveConnectConfigOmitsSpeechForText(t *testing.T) {
	opts := liveOptions()
	opts.Modalities = types.ParseModalities("text_and_audio")
	opts.MaxOutputTokens = nil
	cfg := liveConnectConfig(opts)
	assert.NotNil(t, cfg.SpeechConfig)
	assert.Zero(t, cfg.MaxOutputTokens)
	assert.Equal(t, []genai.Modality{genai.ModalityText, genai.ModalityAudio}, cfg.ResponseModalities)

	opts.Modalities = types.Modalities{types.ModalityText}
	cfg = liveConnectConfig(opts)
	assert.Nil(t, cfg.SpeechConfig)
}
