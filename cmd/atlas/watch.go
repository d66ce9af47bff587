package main

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow server notifications",
	Long: `Watch connects to the notification socket of the remote API and prints
every notification until interrupted. Requires --remote and a signed-in
session.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	errorToasts = true

	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.Auth.EnsureAuthenticated(cmd.Context()); err != nil {
		return err
	}

	var stop func()
	if jsonOutput {
		ch, unsubscribe := c.Bus.Subscribe(cfg.Notify.Buffer)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for n := range ch {
				printJSON(n)
			}
		}()
		stop = func() {
			unsubscribe()
			<-done
		}
	}

	stream, err := c.StreamNotifications(cmd.Context())
	if err != nil {
		if stop != nil {
			stop()
		}
		return err
	}

	if !jsonOutput {
		printInfo("Connected to %s", stream.URL())
	}

	select {
	case <-cmd.Context().Done():
	case <-stream.Done():
	}

	if stop != nil {
		stop()
	}

	if err := stream.Err(); err != nil && cmd.Context().Err() == nil {
		return err
	}
	return nil
}
