package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"linguachat/client"
	"linguachat/models"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		language, _ := cmd.Flags().GetString("language")

		api := client.NewAPI(serverURL)
		res, err := api.Register(cmd.Context(), args[0], email, password, language)
		if err != nil {
			return err
		}
		if err := saveSession(session{Server: serverURL, Username: res.User.Username, Token: res.Token}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", res.User.Username, res.User.Language)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and remember the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		api := client.NewAPI(serverURL)
		res, err := api.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		if err := saveSession(session{Server: serverURL, Username: res.User.Username, Token: res.Token}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", res.User.Username)
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the other users with the latest message exchanged",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := authedAPI(cmd)
		if err != nil {
			return err
		}
		users, err := api.Users(cmd.Context())
		if err != nil {
			return err
		}
		printUsers(cmd.OutOrStdout(), users)
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <username>",
	Short: "Show the conversation with a user, translated into your language",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := authedAPI(cmd)
		if err != nil {
			return err
		}
		msgs, err := api.Messages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printThread(cmd.OutOrStdout(), msgs)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <username> <text>...",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := authedAPI(cmd)
		if err != nil {
			return err
		}
		m, err := api.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.UUID)
		return nil
	},
}

var reactCmd = &cobra.Command{
	Use:   "react <message-uuid> <reaction>",
	Short: "React to a message with one of " + strings.Join(models.Reactions, " "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := authedAPI(cmd)
		if err != nil {
			return err
		}
		r, err := api.React(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s on %s\n", r.Content, r.MessageUUID)
		return nil
	},
}

func init() {
	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().StringP("password", "p", "", "password")
	registerCmd.Flags().StringP("language", "l", "en", "display language code")
	registerCmd.MarkFlagRequired("password")

	loginCmd.Flags().StringP("password", "p", "", "password")
	loginCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(registerCmd, loginCmd, usersCmd, messagesCmd, sendCmd, reactCmd, watchCmd)
}

func printUsers(w io.Writer, users []models.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tLANG\tLATEST\tWHEN")
	for _, u := range users {
		latest, when := "-", "-"
		if u.LatestMessage != nil {
			latest = truncate(u.LatestMessage.Content, 40)
			when = humanize.Time(u.LatestMessage.CreatedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.Language, latest, when)
	}
	tw.Flush()
}

// printThread prints oldest first; msgs arrive newest first.
func printThread(w io.Writer, msgs []models.Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Fprintf(w, "[%s] %s: %s", humanize.Time(m.CreatedAt), m.From, m.Content)
		if len(m.Reactions) > 0 {
			glyphs := make([]string, 0, len(m.Reactions))
			for _, r := range m.Reactions {
				glyphs = append(glyphs, r.Content)
			}
			fmt.Fprintf(w, "  %s", strings.Join(glyphs, ""))
		}
		fmt.Fprintf(w, "  (%s)\n", m.UUID)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

