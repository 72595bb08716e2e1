package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/character"
	"github.com/neo/interview_agent/internal/config"
	"github.com/neo/interview_agent/internal/conversation"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/monitor"
	"github.com/neo/interview_agent/internal/types"
)

// UpdateConfigMethod is the RPC method a participant calls to reconfigure
// its live session
const UpdateConfigMethod = "pg.updateConfig"

// ErrNotActive is returned when an operation needs a live session
var ErrNotActive = errors.New("session is not active")

// State is the Manager lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateReconfiguring
	// StateDetached means a reconfiguration failed after the previous
	// session was torn down. The next authorized update rebuilds it.
	StateDetached
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateReconfiguring:
		return "reconfiguring"
	case StateDetached:
		return "detached"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UpdateResult is the RPC response body
type UpdateResult struct {
	Changed bool `json:"changed"`
}

// Manager owns the single model/agent pair serving one participant.
// Transitions are serialized; at most one session is live at any time.
type Manager struct {
	opts      Options
	framework agent.Framework
	monitor   *monitor.Monitor

	// transition serializes setup, reconfiguration and termination
	transition sync.Mutex

	// inspect serializes the reinforcement check against the append it
	// triggers
	inspect sync.Mutex

	mu          sync.RWMutex
	state       State
	cfg         config.SessionConfig
	model       agent.RealtimeModel
	agent       *agent.MultimodalAgent
	ctx         context.Context
	room        agent.Room
	participant agent.Participant
	saved       *conversation.ChatContext
}

// NewManager creates a manager for one participant session
func NewManager(framework agent.Framework, mon *monitor.Monitor, opts Options, cfg config.SessionConfig) *Manager {
	if mon == nil {
		mon = monitor.New()
	}
	return &Manager{
		opts:      opts,
		framework: framework,
		monitor:   mon,
		cfg:       cfg,
		state:     StateUninitialized,
	}
}

// CurrentSession returns the live realtime session
func (m *Manager) CurrentSession() (agent.RealtimeSession, error) {
	m.mu.RLock()
	state, ag := m.state, m.agent
	m.mu.RUnlock()
	if state != StateActive || ag == nil || ag.Session() == nil {
		return nil, ErrNotActive
	}
	return ag.Session(), nil
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Config returns the active session config
func (m *Manager) Config() config.SessionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Agent returns the live agent, nil when none is attached
func (m *Manager) Agent() *agent.MultimodalAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

// Model returns the live model, nil when none is attached
func (m *Manager) Model() agent.RealtimeModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != s {
		logging.LogSessionEvent("state_changed", m.participant.Identity, map[string]interface{}{
			"from": m.state.String(),
			"to":   s.String(),
		})
	}
	m.state = s
}

// Start sets the session up for participant and registers the
// reconfiguration RPC. ctx bounds the whole session.
func (m *Manager) Start(ctx context.Context, room agent.Room, participant agent.Participant) error {
	if err := m.SetupSession(ctx, room, participant); err != nil {
		return err
	}
	room.RegisterRPCMethod(UpdateConfigMethod, m.HandleUpdateConfig)
	return nil
}

// SetupSession builds the initial chat context and starts the first
// model/agent pair
func (m *Manager) SetupSession(ctx context.Context, room agent.Room, participant agent.Participant) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	if state := m.State(); state != StateUninitialized {
		return fmt.Errorf("cannot set up session in state %s", state)
	}

	m.mu.Lock()
	m.ctx = ctx
	m.room = room
	m.participant = participant
	m.mu.Unlock()

	return m.setupLocked(ctx, nil)
}

// setupLocked starts a model/agent pair. A nil chat starts a fresh
// conversation; otherwise chat is carried over and reinforced.
func (m *Manager) setupLocked(ctx context.Context, chat *conversation.ChatContext) error {
	cfg := m.Config()
	pid := m.participant.Identity

	instructions := m.configuredInstructions(cfg)
	m.monitor.RecordSessionStart(pid, m.opts.Preset, preview(instructions, eventPreviewLen))

	if chat == nil {
		chat = BuildInitialChatContext(instructions)
	} else {
		m.AddInstructionReinforcement(chat, pid)
	}

	model, err := m.framework.NewModel(ctx, m.modelOptions(cfg))
	if err != nil {
		return logging.LogExceptions("create_model", err, map[string]interface{}{
			"participant_id": pid,
		})
	}

	ag := m.newAgent(model, chat)
	if err := ag.Start(m.ctx, m.room, m.participant); err != nil {
		ag.Close()
		model.Close(context.WithoutCancel(ctx))
		return logging.LogExceptions("start_agent", err, map[string]interface{}{
			"participant_id": pid,
		})
	}

	m.mu.Lock()
	m.model = model
	m.agent = ag
	m.saved = nil
	m.mu.Unlock()
	m.setState(StateActive)

	if err := ag.GenerateReply(ctx, agent.ReplyCancelExisting); err != nil {
		logging.LogExceptions("generate_reply", err, map[string]interface{}{
			"participant_id": pid,
		})
	}

	logging.LogSessionEvent("session_active", pid, map[string]interface{}{
		"room":   m.room.Name(),
		"preset": m.opts.Preset,
		"config": cfg.Redacted(),
	})
	return nil
}

func (m *Manager) newAgent(model agent.RealtimeModel, chat *conversation.ChatContext) *agent.MultimodalAgent {
	ag := agent.NewMultimodalAgent(model, chat)
	ag.OnConversationItem(m.InspectConversation)
	return ag
}

// configuredInstructions picks the persona text, or the participant's own
// instructions when the persona store is disabled
func (m *Manager) configuredInstructions(cfg config.SessionConfig) string {
	if !m.opts.UsePersona {
		return cfg.Instructions
	}
	if m.opts.Preset != character.CustomPreset {
		if _, ok := character.Lookup(m.opts.Preset); !ok {
			logging.Warn("Unknown instruction preset, using default persona", map[string]interface{}{
				"preset": m.opts.Preset,
			})
		}
	}
	return character.ResolveInstructions(m.opts.Preset)
}

// EnhanceInstructions returns the model instructions: the configured
// persona (or base when none applies) followed, in strict mode, by the
// behavioral enforcement block
func (m *Manager) EnhanceInstructions(base string) string {
	return m.enhance(m.Config(), base)
}

func (m *Manager) enhance(cfg config.SessionConfig, base string) string {
	final := m.configuredInstructions(cfg)
	if final == "" || final == cfg.Instructions {
		final = base
	}
	if !m.opts.StrictMode {
		return final
	}
	return final + "\n\n" + strictEnforcement
}

func (m *Manager) modelOptions(cfg config.SessionConfig) agent.ModelOptions {
	opts := agent.ModelOptions{
		APIKey:           cfg.APIKey,
		Instructions:     m.enhance(cfg, cfg.Instructions),
		Modalities:       cfg.Modalities,
		Voice:            cfg.Voice,
		Temperature:      cfg.Temperature,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
	}
	if n, limited := cfg.MaxOutputTokens.Limit(); limited {
		opts.MaxOutputTokens = agent.IntPtr(n)
	}
	return opts
}

// reinforcementSource is the instruction text restated by reinforcements
func (m *Manager) reinforcementSource() string {
	cfg := m.Config()
	if m.opts.UsePersona && m.opts.Preset != character.CustomPreset {
		return character.PresetInstructions(m.opts.Preset)
	}
	if cfg.Instructions != "" {
		return cfg.Instructions
	}
	return m.configuredInstructions(cfg)
}

// AddInstructionReinforcement appends a persona restatement to chat when
// it is longer than the reinforcement interval and none of the trailing
// window's system messages already is one. It reports whether a message
// was added.
func (m *Manager) AddInstructionReinforcement(chat *conversation.ChatContext, participantID string) bool {
	if !m.opts.Reinforcement || chat.Len() <= m.opts.ReinforcementInterval {
		return false
	}
	for _, msg := range chat.Tail(m.opts.reinforcementWindow()) {
		if isReinforcement(msg) {
			return false
		}
	}

	source := m.reinforcementSource()
	chat.AppendText(types.RoleSystem, reinforcementText(source))
	count := chat.Len()

	logging.LogSessionEvent("reinforcement_added", participantID, map[string]interface{}{
		"message_count": count,
	})
	if participantID != "" {
		m.monitor.RecordReinforcement(participantID, count, truncate(source, eventPreviewLen))
	}
	return true
}

// InspectConversation runs after every committed item of the live session
// and injects a reinforcement into it when one is due. It does not take
// the transition lock: it runs on the session's own task, which a
// transition may be waiting on.
func (m *Manager) InspectConversation(ctx context.Context, s agent.RealtimeSession, _ conversation.Message) {
	m.mu.RLock()
	state, current, pid := m.state, m.agent, m.participant.Identity
	m.mu.RUnlock()

	if state != StateActive || current == nil || current.Session() != s {
		return
	}

	m.inspect.Lock()
	defer m.inspect.Unlock()

	chat := s.ChatContextCopy()
	if !m.AddInstructionReinforcement(chat, pid) {
		return
	}
	if last, ok := chat.Last(); ok {
		s.AppendMessage(last)
	}
}

// HandleUpdateConfig is the UpdateConfigMethod RPC handler. Callers other
// than the session's participant get {"changed": false}.
func (m *Manager) HandleUpdateConfig(ctx context.Context, inv agent.RPCInvocation) (string, error) {
	m.mu.RLock()
	owner := m.participant.Identity
	m.mu.RUnlock()

	if inv.CallerIdentity != owner {
		logging.LogRPCEvent("unauthorized_caller", UpdateConfigMethod, inv.CallerIdentity, map[string]interface{}{
			"participant_id": owner,
		})
		return encodeResult(false)
	}

	cfg, err := config.ParseJSON([]byte(inv.Payload))
	if err != nil {
		logging.LogRPCEvent("invalid_payload", UpdateConfigMethod, inv.CallerIdentity, map[string]interface{}{
			"error": err.Error(),
		})
		return "", err
	}

	changed, err := m.Reconfigure(ctx, cfg)
	if err != nil {
		return "", err
	}
	return encodeResult(changed)
}

func encodeResult(changed bool) (string, error) {
	data, err := json.Marshal(UpdateResult{Changed: changed})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Reconfigure swaps the live model/agent pair for one built from cfg,
// carrying the conversation over. An equal config is a no-op.
func (m *Manager) Reconfigure(ctx context.Context, cfg config.SessionConfig) (bool, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	switch m.State() {
	case StateActive:
		return m.replaceLocked(ctx, cfg)
	case StateDetached:
		return m.rebuildLocked(ctx, cfg)
	default:
		return false, nil
	}
}

func (m *Manager) replaceLocked(ctx context.Context, cfg config.SessionConfig) (bool, error) {
	old := m.Config()
	if old.Equal(cfg) {
		return false, nil
	}
	pid := m.participant.Identity
	changed := old.Diff(cfg)

	logging.LogSessionEvent("config_changed", pid, map[string]interface{}{
		"changed_fields": changed,
		"config":         cfg.Redacted(),
	})

	history := m.agent.Session().ChatContextCopy()

	model, err := m.framework.NewModel(ctx, m.modelOptions(cfg))
	if err != nil {
		return false, logging.LogExceptions("create_model", err, map[string]interface{}{
			"participant_id": pid,
		})
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.setState(StateReconfiguring)

	if err := m.replaceSession(ctx, m.newAgent(model, history), model, history); err != nil {
		return false, err
	}

	m.monitor.RecordConfigChange(pid, m.opts.Preset, m.opts.Preset, changed)
	return true, nil
}

// replaceSession tears the current pair down, then installs the new agent
// and pushes the rebuilt history into its session
func (m *Manager) replaceSession(ctx context.Context, ag *agent.MultimodalAgent, model agent.RealtimeModel, history *conversation.ChatContext) error {
	pid := m.participant.Identity
	fail := func(op string, err error) error {
		ag.Close()
		model.Close(context.WithoutCancel(ctx))
		m.detach(history)
		return logging.LogExceptions(op, err, map[string]interface{}{
			"participant_id": pid,
		})
	}

	if err := m.teardownLocked(ctx); err != nil {
		return fail("cancel_session", err)
	}

	if err := ag.Start(m.ctx, m.room, m.participant); err != nil {
		return fail("start_agent", err)
	}
	m.mu.Lock()
	m.agent = ag
	m.model = model
	m.mu.Unlock()

	if err := ag.GenerateReply(ctx, agent.ReplyCancelExisting); err != nil {
		logging.LogExceptions("generate_reply", err, map[string]interface{}{
			"participant_id": pid,
		})
	}

	session := ag.Session()
	chat := session.ChatContextCopy()
	chat.PruneEmpty()
	chat.AppendText(types.RoleSystem, configurationBanner(m.Config().Instructions))

	if err := session.Reopen(m.ctx); err != nil {
		m.clearPair()
		return fail("reopen_session", err)
	}

	chat.AppendText(types.RoleAssistant, acknowledgmentText)
	if err := session.SetChatContext(ctx, chat); err != nil {
		m.clearPair()
		return fail("set_chat_context", err)
	}

	m.setState(StateActive)
	return nil
}

// rebuildLocked recovers a detached manager from its saved history
func (m *Manager) rebuildLocked(ctx context.Context, cfg config.SessionConfig) (bool, error) {
	m.mu.Lock()
	m.cfg = cfg
	saved := m.saved
	m.mu.Unlock()

	chat := conversation.NewChatContext()
	if saved != nil {
		chat = saved.Copy()
	}
	chat.PruneEmpty()
	chat.AppendText(types.RoleSystem, configurationBanner(cfg.Instructions))

	if err := m.setupLocked(ctx, chat); err != nil {
		return false, err
	}
	m.monitor.RecordConfigChange(m.participant.Identity, m.opts.Preset, m.opts.Preset, []string{"recovered"})
	return true, nil
}

func (m *Manager) detach(history *conversation.ChatContext) {
	m.mu.Lock()
	m.saved = history
	m.agent = nil
	m.model = nil
	m.mu.Unlock()
	m.setState(StateDetached)
}

func (m *Manager) clearPair() {
	m.mu.Lock()
	m.agent = nil
	m.model = nil
	m.mu.Unlock()
}

func (m *Manager) cancelSession(ctx context.Context, s agent.RealtimeSession) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.cancelTimeout())
	defer cancel()
	return s.Cancel(cctx)
}

// teardownLocked gracefully cancels the live session and waits for its
// task to drain before clearing the pair
func (m *Manager) teardownLocked(ctx context.Context) error {
	m.mu.RLock()
	ag, model := m.agent, m.model
	m.mu.RUnlock()
	if ag == nil || model == nil {
		return nil
	}

	ag.Close()
	if s := ag.Session(); s != nil {
		if err := m.cancelSession(ctx, s); err != nil {
			m.closeModel(ctx, model)
			return err
		}
	}

	m.closeModel(ctx, model)
	m.clearPair()
	return nil
}

// closeModel closes model within the cancel timeout, logging failures
func (m *Manager) closeModel(ctx context.Context, model agent.RealtimeModel) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.cancelTimeout())
	defer cancel()
	if err := model.Close(cctx); err != nil {
		logging.LogExceptions("close_model", err, map[string]interface{}{
			"participant_id": m.participant.Identity,
		})
	}
}

// EndSession terminates the session. Calling it again is a no-op.
func (m *Manager) EndSession(ctx context.Context, reason string) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	state := m.State()
	if state == StateTerminated {
		return nil
	}

	var userTurns, assistantTurns int
	if s, serr := m.CurrentSession(); serr == nil {
		chat := s.ChatContextCopy()
		userTurns = chat.CountRole(types.RoleUser)
		assistantTurns = chat.CountRole(types.RoleAssistant)
	}

	err := m.teardownLocked(ctx)
	m.mu.Lock()
	m.agent = nil
	m.model = nil
	m.saved = nil
	m.mu.Unlock()
	m.setState(StateTerminated)

	if pid := m.participant.Identity; pid != "" && state != StateUninitialized {
		m.monitor.RecordSessionEnd(pid, reason, userTurns, assistantTurns)
	}
	return logging.LogExceptions("end_session", err, map[string]interface{}{
		"participant_id": m.participant.Identity,
		"reason":         reason,
	})
}
