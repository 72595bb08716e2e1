package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/neo/interview_agent/internal/auth"
	"github.com/neo/interview_agent/internal/character"
	"github.com/neo/interview_agent/internal/config"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/monitor"
	"github.com/neo/interview_agent/internal/realtime"
	"github.com/neo/interview_agent/internal/server"
	"github.com/neo/interview_agent/internal/session"
	"github.com/spf13/cobra"
)

var (
	port     int
	certFile string
	keyFile  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent server",
	Long: `Start the HTTP and websocket server. Settings come from the environment
and the optional env file; flags override the listen address and TLS files.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides PORT)")
	serveCmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate file (overrides CERT_FILE)")
	serveCmd.Flags().StringVar(&keyFile, "key", "", "TLS key file (overrides KEY_FILE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings(envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		settings.Port = port
	}
	if certFile != "" {
		settings.CertFile = certFile
	}
	if keyFile != "" {
		settings.KeyFile = keyFile
	}

	if err := logging.InitDefaultLogger(logging.Config{
		Level:       settings.LogLevel,
		Pretty:      settings.LogPretty,
		LogToFile:   settings.LogFile != "",
		LogFilePath: settings.LogFile,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.GetDefaultLogger().Close()

	for _, err := range character.Validate() {
		logging.Warn("Invalid persona preset", map[string]interface{}{"error": err})
	}

	var sink monitor.Sink = monitor.NopSink{}
	if settings.MonitorLogFile != "" {
		fileSink, err := monitor.NewFileSink(settings.MonitorLogFile)
		if err != nil {
			return err
		}
		defer fileSink.Close()
		sink = fileSink
	}
	mon := monitor.New(monitor.WithSink(sink))

	if settings.JWTSecret == "" {
		settings.JWTSecret, err = auth.GenerateRandomKey(32)
		if err != nil {
			return fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		logging.Warn("JWT_SECRET is not set, tokens will not survive a restart")
	}

	if settings.Development() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	framework := realtime.NewFramework(realtime.Config{
		BaseURL:   settings.GeminiBaseURL,
		LiveModel: settings.GeminiModel,
		TextModel: settings.GeminiTextModel,
	})
	srv := server.NewServer(
		server.ConfigFromSettings(settings),
		auth.New(auth.Config{JWTSecret: settings.JWTSecret, TokenDuration: settings.TokenTTL}),
		framework,
		mon,
		session.OptionsFromSettings(settings),
	)

	logging.Info("Starting agent server", map[string]interface{}{
		"port":                   settings.Port,
		"preset":                 settings.InstructionPreset,
		"strict_mode":            settings.StrictInstructionMode,
		"reinforcement":          settings.EnableInstructionReinforcement,
		"reinforcement_interval": settings.ReinforcementInterval,
		"persona_version":        character.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	logging.Info("Server stopped", map[string]interface{}{"statistics": mon.Statistics()})

	if settings.ExportEventsOnShutdown {
		if _, err := mon.Export(settings.EventExportDir); err != nil {
			logging.LogExceptions("export_events", err)
		}
	}
	return runErr
}
