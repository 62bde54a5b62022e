package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/copyvara/internal/events"
)

func newEventsCmd(opts *options) *cobra.Command {
	var (
		natsURL string
		count   int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow workspace events published on NATS",
		Long: `Follow captures, failures, answers and resets as copyvarad publishes them.
Requires events.enabled on the daemon.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := events.Connect(natsURL, nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			done := make(chan struct{})
			defer close(done)
			received := make(chan events.Event, 16)
			sub, err := events.Subscribe(conn, func(e events.Event) {
				select {
				case received <- e:
				case <-done:
				}
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			if err := conn.Flush(); err != nil {
				return fmt.Errorf("subscribing: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case <-ctx.Done():
					return nil
				case e := <-received:
					if err := printEvent(w, opts, e); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 follows forever)")
	return cmd
}

func printEvent(w io.Writer, opts *options, e events.Event) error {
	if opts.jsonOut {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	line := fmt.Sprintf("%s  %-17s", e.At.UTC().Format(time.RFC3339), e.Type)
	switch e.Type {
	case events.DocumentAdded:
		line += fmt.Sprintf("  [%s] %s", e.DocumentID, e.Title)
	case events.DocumentFailed:
		line += fmt.Sprintf("  [%s] %s", e.DocumentID, e.Error)
	case events.QuestionAnswered:
		line += fmt.Sprintf("  [%s] %s", e.SessionID, firstLine(e.Question))
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
