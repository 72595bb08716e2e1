package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultGeminiBaseURL is the Gemini API root the Live client connects under
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/"

// Settings holds process-wide configuration resolved once at startup
type Settings struct {
	InstructionPreset              string
	StrictInstructionMode          bool
	EnableInstructionReinforcement bool
	ReinforcementInterval          int
	UseCustomInstructions          bool

	Port     int
	CertFile string
	KeyFile  string
	AppEnv   string

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel  string
	LogFile   string
	LogPretty bool

	MonitorLogFile         string
	EventExportDir         string
	ExportEventsOnShutdown bool

	GeminiBaseURL   string
	GeminiModel     string
	GeminiTextModel string
}

var settingDefaults = map[string]interface{}{
	"INSTRUCTION_PRESET":               "custom",
	"STRICT_INSTRUCTION_MODE":          true,
	"ENABLE_INSTRUCTION_REINFORCEMENT": true,
	"REINFORCEMENT_INTERVAL":           "15",
	"USE_CUSTOM_INSTRUCTIONS":          true,
	"PORT":                             8080,
	"CERT_FILE":                        "",
	"KEY_FILE":                         "",
	"APP_ENV":                          "production",
	"JWT_SECRET":                       "",
	"TOKEN_TTL":                        "1h",
	"LOG_LEVEL":                        "info",
	"LOG_FILE":                         "logs/agent.log",
	"LOG_PRETTY":                       true,
	"MONITOR_LOG_FILE":                 "instruction_adherence.log",
	"EVENT_EXPORT_DIR":                 ".",
	"EXPORT_EVENTS_ON_SHUTDOWN":        false,
	"GEMINI_BASE_URL":                  DefaultGeminiBaseURL,
	"GEMINI_MODEL":                     "gemini-2.0-flash-exp",
	"GEMINI_TEXT_MODEL":                "gemini-1.5-flash",
}

// LoadSettings reads the optional dotenv file and resolves settings from the
// environment. An empty envFile means ".env".
func LoadSettings(envFile string) (*Settings, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, value := range settingDefaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return settingsFromViper(v)
}

func settingsFromViper(v *viper.Viper) (*Settings, error) {
	interval, err := strconv.Atoi(strings.TrimSpace(v.GetString("REINFORCEMENT_INTERVAL")))
	if err != nil {
		return nil, fmt.Errorf("REINFORCEMENT_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("REINFORCEMENT_INTERVAL must be positive, got %d", interval)
	}

	ttl, err := time.ParseDuration(v.GetString("TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}

	s := &Settings{
		InstructionPreset:              v.GetString("INSTRUCTION_PRESET"),
		StrictInstructionMode:          v.GetBool("STRICT_INSTRUCTION_MODE"),
		EnableInstructionReinforcement: v.GetBool("ENABLE_INSTRUCTION_REINFORCEMENT"),
		ReinforcementInterval:          interval,
		UseCustomInstructions:          v.GetBool("USE_CUSTOM_INSTRUCTIONS"),
		Port:                           v.GetInt("PORT"),
		CertFile:                       v.GetString("CERT_FILE"),
		KeyFile:                        v.GetString("KEY_FILE"),
		AppEnv:                         v.GetString("APP_ENV"),
		JWTSecret:                      v.GetString("JWT_SECRET"),
		TokenTTL:                       ttl,
		LogLevel:                       v.GetString("LOG_LEVEL"),
		LogFile:                        v.GetString("LOG_FILE"),
		LogPretty:                      v.GetBool("LOG_PRETTY"),
		MonitorLogFile:                 v.GetString("MONITOR_LOG_FILE"),
		EventExportDir:                 v.GetString("EVENT_EXPORT_DIR"),
		ExportEventsOnShutdown:         v.GetBool("EXPORT_EVENTS_ON_SHUTDOWN"),
		GeminiBaseURL:                  v.GetString("GEMINI_BASE_URL"),
		GeminiModel:                    v.GetString("GEMINI_MODEL"),
		GeminiTextModel:                v.GetString("GEMINI_TEXT_MODEL"),
	}
	return s, nil
}

// Development reports whether verbose error details may be returned to clients
func (s *Settings) Development() bool {
	return s.AppEnv == "development"
}
