package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/auth"
	"github.com/neo/interview_agent/internal/character"
	"github.com/neo/interview_agent/internal/config"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/session"
	"github.com/neo/interview_agent/internal/types"
)

// TokenRequest asks for a participant access token
type TokenRequest struct {
	Identity string                 `json:"identity"`
	Room     string                 `json:"room"`
	Config   map[string]interface{} `json:"config"`
}

// TokenResponse carries the token and where to connect with it
type TokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Room     string `json:"room"`
	URL      string `json:"ws_url"`
}

// PresetInfo summarizes a persona preset
type PresetInfo struct {
	Name               string   `json:"name"`
	Context            string   `json:"context"`
	Constraints        []string `json:"constraints"`
	InstructionsLength int      `json:"instructions_length"`
}

// VoiceInfo describes a prebuilt voice a session config may select
type VoiceInfo struct {
	Name        string `json:"name"`
	ModelName   string `json:"model_name"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

func newVoiceInfo(v types.Voice) VoiceInfo {
	return VoiceInfo{
		Name:        v.String(),
		ModelName:   v.ModelName(),
		Description: v.Description(),
		Default:     v == types.VoiceDefault,
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.ActiveSessions(),
	})
}

func (s *Server) issueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	// Reject configs the session would refuse on join
	if _, err := config.Parse(req.Config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session config", "details": err.Error()})
		return
	}

	metadata := ""
	if len(req.Config) > 0 {
		raw, err := json.Marshal(req.Config)
		if err != nil {
			c.Error(err)
			c.Status(http.StatusInternalServerError)
			return
		}
		metadata = string(raw)
	}

	token, grant, err := s.auth.GenerateToken(auth.Grant{
		Identity: req.Identity,
		Room:     req.Room,
		Metadata: metadata,
	})
	if err != nil {
		c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:    token,
		Identity: grant.Identity,
		Room:     grant.Room,
		URL:      "/ws/session?token=" + url.QueryEscape(token),
	})
}

func (s *Server) listPresets(c *gin.Context) {
	names := character.Names()
	out := make([]PresetInfo, 0, len(names))
	for _, name := range names {
		p, _ := character.Lookup(name)
		out = append(out, PresetInfo{
			Name:               p.Name,
			Context:            p.Context,
			Constraints:        p.Constraints,
			InstructionsLength: len(character.PresetInstructions(name)),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"presets": out,
		"default": character.CustomPreset,
		"version": character.Version,
	})
}

func (s *Server) listVoices(c *gin.Context) {
	voices := types.GetAllVoices()
	out := make([]VoiceInfo, 0, len(voices))
	for _, v := range voices {
		out = append(out, newVoiceInfo(v))
	}
	c.JSON(http.StatusOK, gin.H{"voices": out})
}

func (s *Server) getVoice(c *gin.Context) {
	v := types.Voice(strings.ToLower(c.Param("voice")))
	if !v.IsValid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown voice", "voice": c.Param("voice")})
		return
	}
	c.JSON(http.StatusOK, newVoiceInfo(v))
}

func (s *Server) monitorStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Statistics())
}

func (s *Server) exportEvents(c *gin.Context) {
	path, err := s.monitor.Export(s.config.EventExportDir)
	if err != nil {
		c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":         path,
		"total_events": s.monitor.Statistics().TotalEvents,
	})
}

// handleSessionWebSocket joins the token holder to their room and runs the
// agent session for as long as the connection lives
func (s *Server) handleSessionWebSocket(c *gin.Context) {
	grant, ok := auth.GetGrant(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing room grant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.LogExceptions("websocket_upgrade", err, map[string]interface{}{"room": grant.Room})
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	room := newWSRoom(grant.Room, grant.Identity, conn)
	logging.LogWebSocketEvent("participant_joined", grant.Room, grant.Identity, nil)

	cfg, err := config.ParseJSON([]byte(grant.Metadata))
	if err != nil {
		room.sendError(err)
		room.close(websocket.CloseUnsupportedData, "invalid session config")
		return
	}

	manager := session.NewManager(s.framework, s.monitor, s.opts, cfg)
	if !s.track(grant.Room, manager) {
		room.sendError(fmt.Errorf("room %s already has a participant", grant.Room))
		room.close(websocket.ClosePolicyViolation, "room occupied")
		return
	}
	defer s.untrack(grant.Room)

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	participant := agent.Participant{Identity: grant.Identity, Metadata: grant.Metadata}
	if err := manager.Start(ctx, room, participant); err != nil {
		room.sendError(err)
		manager.EndSession(context.Background(), "setup_failed")
		room.close(websocket.CloseInternalServerErr, "session setup failed")
		return
	}

	readErr := room.readLoop(ctx)
	reason := "participant_disconnected"
	switch {
	case errors.Is(readErr, context.Canceled):
		reason = "server_shutdown"
	case readErr != nil:
		reason = "connection_error"
		logging.LogWebSocketEvent("read_error", grant.Room, grant.Identity, map[string]interface{}{"error": readErr})
	}

	endCtx, endCancel := context.WithTimeout(context.Background(), endSessionTimeout)
	defer endCancel()
	cancel()
	room.calls.Wait()
	manager.EndSession(endCtx, reason)
	room.close(websocket.CloseNormalClosure, reason)

	logging.LogWebSocketEvent("participant_left", grant.Room, grant.Identity, map[string]interface{}{"reason": reason})
}
