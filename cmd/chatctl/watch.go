package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"linguachat/client"
	"linguachat/logging"
	"linguachat/state"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <username>",
	Short: "Follow a conversation live; lines typed on stdin are sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer := args[0]
		api, sess, err := authedAPI(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		r := &renderer{w: out, peer: peer}
		store := state.NewStore(r.render)

		users, err := api.Users(ctx)
		if err != nil {
			return err
		}
		store.Dispatch(state.SetUsers{Users: users})
		if _, ok := store.State().Find(peer); !ok {
			return fmt.Errorf("unknown user %q", peer)
		}
		store.Dispatch(state.SetSelectedUser{Username: peer})
		msgs, err := api.Messages(ctx, peer)
		if err != nil {
			return err
		}
		store.Dispatch(state.SetUserMessages{Username: peer, Messages: msgs})

		sub, err := client.NewSubscriber(api.BaseURL(), api.Token(), sess.Username, logging.For("chatctl"))
		if err != nil {
			return err
		}
		go sendLines(ctx, cmd.InOrStdin(), cmd.ErrOrStderr(), api, peer)

		err = sub.Run(ctx, store)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

type renderer struct {
	mu   sync.Mutex
	w    io.Writer
	peer string
	seen int
}

// render prints the selected thread whenever it changes.
func (r *renderer) render(s state.State) {
	u, ok := s.Selected()
	if !ok || u.Username != r.peer || !u.Loaded() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen > 0 {
		fmt.Fprintln(r.w, strings.Repeat("-", 40))
	}
	r.seen++
	printThread(r.w, u.Messages)
}

func sendLines(ctx context.Context, in io.Reader, errOut io.Writer, api *client.API, peer string) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := api.Send(ctx, peer, line); err != nil {
			fmt.Fprintf(errOut, "send failed: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
