package server

import (
	"strconv"

	"github.com/neo/interview_agent/internal/config"
)

// Config holds server configuration
type Config struct {
	Port     int
	CertFile string
	KeyFile  string
	// Development adds error details to responses
	Development bool
	// EventExportDir is where POST /api/monitor/export writes
	EventExportDir string
}

// ConfigFromSettings picks the server fields out of process settings
func ConfigFromSettings(s *config.Settings) Config {
	return Config{
		Port:           s.Port,
		CertFile:       s.CertFile,
		KeyFile:        s.KeyFile,
		Development:    s.Development(),
		EventExportDir: s.EventExportDir,
	}
}

func (c Config) addr() string {
	if c.Port <= 0 {
		return ":8080"
	}
	return ":" + strconv.Itoa(c.Port)
}

func (c Config) tls() bool {
	return c.CertFile != "" && c.KeyFile != ""
}
