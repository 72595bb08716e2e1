package agent_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/agent/agenttest"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAgent(t *testing.T) (*agent.MultimodalAgent, *agenttest.Session, *agenttest.Room) {
	t.Helper()
	framework := &agenttest.Framework{}
	model, err := framework.NewModel(context.Background(), agent.ModelOptions{})
	require.NoError(t, err)

	chat := conversation.NewChatContext(conversation.NewMessage(types.RoleSystem, "persona"))
	a := agent.NewMultimodalAgent(model, chat)
	room := agenttest.NewRoom("room-1")

	require.NoError(t, a.Start(context.Background(), room, agent.Participant{Identity: "alice"}))
	sessions := framework.LastModel().FakeSessions()
	require.Len(t, sessions, 1)
	return a, sessions[0], room
}

func TestAgentStartSeedsSession(t *testing.T) {
	a, session, _ := startAgent(t)

	assert.True(t, session.Running())
	assert.Equal(t, 1, session.Len())
	assert.Same(t, session, a.Session())
}

func TestAgentForwardsParticipantInput(t *testing.T) {
	_, session, room := startAgent(t)

	room.DeliverAudio("alice", []byte{1, 2})
	room.DeliverAudio("mallory", []byte{9})
	room.DeliverText("alice", "hello")

	assert.Equal(t, [][]byte{{1, 2}}, session.Audio)
	assert.Equal(t, []string{"hello"}, session.Texts)
}

func TestAgentPublishesModelOutput(t *testing.T) {
	_, session, room := startAgent(t)

	session.Emit(agent.Event{Type: agent.EventAudio, Audio: []byte{7}})
	session.Emit(agent.Event{Type: agent.EventTranscript, Text: "Hi there", Final: true})

	assert.Equal(t, [][]byte{{7}}, room.Audio)
	require.Len(t, room.Transcripts, 1)
	assert.Equal(t, types.RoleAssistant, room.Transcripts[0].Role)
	assert.Equal(t, "Hi there", room.Transcripts[0].Text)
}

func TestAgentInvokesItemHooks(t *testing.T) {
	framework := &agenttest.Framework{}
	model, err := framework.NewModel(context.Background(), agent.ModelOptions{})
	require.NoError(t, err)

	a := agent.NewMultimodalAgent(model, nil)
	var calls int32
	a.OnConversationItem(func(ctx context.Context, s agent.RealtimeSession, m conversation.Message) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "answer", m.Content)
	})

	room := agenttest.NewRoom("room-1")
	require.NoError(t, a.Start(context.Background(), room, agent.Participant{Identity: "alice"}))
	session := framework.LastModel().FakeSessions()[0]

	session.Commit(types.RoleAssistant, "answer")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAgentCloseUnsubscribes(t *testing.T) {
	a, session, room := startAgent(t)
	assert.Equal(t, 2, room.Subscribers("alice"))

	a.Close()
	a.Close()
	assert.Zero(t, room.Subscribers("alice"))

	session.Emit(agent.Event{Type: agent.EventAudio, Audio: []byte{1}})
	assert.Empty(t, room.Audio)
}

func TestAgentStartTwice(t *testing.T) {
	a, _, room := startAgent(t)
	err := a.Start(context.Background(), room, agent.Participant{Identity: "alice"})
	assert.Error(t, err)
}

func TestAgentStartFailure(t *testing.T) {
	framework := &agenttest.Framework{
		ConfigureSession: func(s *agenttest.Session) {
			s.StartErr = errors.New("connect refused")
		},
	}
	model, err := framework.NewModel(context.Background(), agent.ModelOptions{})
	require.NoError(t, err)

	a := agent.NewMultimodalAgent(model, nil)
	err = a.Start(context.Background(), agenttest.NewRoom("r"), agent.Participant{Identity: "alice"})
	assert.ErrorContains(t, err, "connect refused")
}

func TestGenerateReplyBeforeStart(t *testing.T) {
	a := agent.NewMultimodalAgent(&agenttest.Model{}, nil)
	assert.ErrorIs(t, a.GenerateReply(context.Background(), agent.ReplyCancelExisting), agent.ErrSessionClosed)
}

func TestTaskCancelWaitsForDrain(t *testing.T) {
	drained := make(chan struct{})
	task := agent.Go(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		close(drained)
		return nil
	})
	assert.True(t, task.Running())

	require.NoError(t, task.Cancel(context.Background()))
	select {
	case <-drained:
	default:
		t.Fatal("Cancel returned before the task drained")
	}
	assert.False(t, task.Running())
	assert.NoError(t, task.Err())
}

func TestTaskCancelTimeout(t *testing.T) {
	release := make(chan struct{})
	task := agent.Go(context.Background(), func(ctx context.Context) error {
		<-release
		return errors.New("late")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Cancel(ctx), context.DeadlineExceeded)

	close(release)
	<-task.Done()
	assert.EqualError(t, task.Err(), "late")
}
