package agent

import (
	"context"

	"github.com/neo/interview_agent/internal/types"
)

// Participant is the human party connected to a room
type Participant struct {
	Identity string
	Metadata string
}

// RPCInvocation is an inbound remote procedure call
type RPCInvocation struct {
	RequestID      string
	CallerIdentity string
	Payload        string
}

// RPCHandler answers a remote procedure call with a response payload
type RPCHandler func(ctx context.Context, inv RPCInvocation) (string, error)

// Transcript is text published to the room alongside audio
type Transcript struct {
	Role  types.Role `json:"role"`
	Text  string     `json:"text"`
	Final bool       `json:"final"`
}

// Room is the realtime transport a participant and the agent share
type Room interface {
	Name() string
	PublishAudio(ctx context.Context, frame []byte) error
	PublishTranscript(ctx context.Context, t Transcript) error
	// SubscribeAudio delivers the participant's audio frames to fn until
	// the returned function is called
	SubscribeAudio(identity string, fn func([]byte)) func()
	SubscribeText(identity string, fn func(string)) func()
	RegisterRPCMethod(method string, h RPCHandler)
}
