package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "interview-agent",
	Short: "Interview candidate voice agent",
	Long: `interview-agent runs a realtime voice agent that plays a job candidate.
Participants join a room over a websocket, talk to the agent, and can
reconfigure its voice, instructions and sampling mid-conversation.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "config", "c", "", "env file (default is .env)")
}
