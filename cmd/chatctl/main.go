package main

import (
	"fmt"
	"os"
	"path/filepath"

	"linguachat/client"
	"linguachat/logging"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	serverURL   string
	sessionPath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command line client for the chat server",
	Long: `chatctl registers and logs in users, reads and sends messages,
reacts to messages and follows a conversation live.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.InitWriter(os.Stderr, level, "console")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defaultServer := os.Getenv("CHAT_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8081"
	}
	home, _ := os.UserHomeDir()

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "chat server base URL")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", filepath.Join(home, ".chatctl.yaml"), "file holding the login session")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// session is what login and register leave behind for later commands.
type session struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
}

func saveSession(s session) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath, b, 0o600)
}

func loadSession() (session, error) {
	var s session
	b, err := os.ReadFile(sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, fmt.Errorf("not logged in: run chatctl login first")
		}
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("read session %s: %w", sessionPath, err)
	}
	return s, nil
}

// authedAPI returns a client carrying the saved token. The --server flag
// wins over the server recorded in the session when it was set explicitly.
func authedAPI(cmd *cobra.Command) (*client.API, session, error) {
	s, err := loadSession()
	if err != nil {
		return nil, s, err
	}
	base := s.Server
	if base == "" || cmd.Flags().Changed("server") {
		base = serverURL
	}
	api := client.NewAPI(base)
	api.SetToken(s.Token)
	return api, s, nil
}
