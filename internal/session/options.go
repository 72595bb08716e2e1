package session

import (
	"time"

	"github.com/neo/interview_agent/internal/character"
	"github.com/neo/interview_agent/internal/config"
)

const defaultCancelTimeout = 10 * time.Second

// Options are the behavior switches a Manager is built with
type Options struct {
	Preset                string
	StrictMode            bool
	Reinforcement         bool
	ReinforcementInterval int
	UsePersona            bool
	// CancelTimeout bounds the graceful cancellation of a session task
	CancelTimeout time.Duration
}

// DefaultOptions mirrors the default settings
func DefaultOptions() Options {
	return Options{
		Preset:                character.CustomPreset,
		StrictMode:            true,
		Reinforcement:         true,
		ReinforcementInterval: 15,
		UsePersona:            true,
		CancelTimeout:         defaultCancelTimeout,
	}
}

// OptionsFromSettings resolves Options from process settings
func OptionsFromSettings(s *config.Settings) Options {
	return Options{
		Preset:                s.InstructionPreset,
		StrictMode:            s.StrictInstructionMode,
		Reinforcement:         s.EnableInstructionReinforcement,
		ReinforcementInterval: s.ReinforcementInterval,
		UsePersona:            s.UseCustomInstructions,
		CancelTimeout:         defaultCancelTimeout,
	}
}

// reinforcementWindow is how many trailing messages are searched for a
// previous reinforcement
func (o Options) reinforcementWindow() int {
	w := o.ReinforcementInterval / 2
	if w < 1 {
		return 1
	}
	return w
}

func (o Options) cancelTimeout() time.Duration {
	if o.CancelTimeout <= 0 {
		return defaultCancelTimeout
	}
	return o.CancelTimeout
}
