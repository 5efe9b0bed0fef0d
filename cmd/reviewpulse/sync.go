package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type syncCommand struct{}

func (c *syncCommand) Register(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "sync <login>",
		Short: "Sync one tracked user's pull requests",
		Long: `Fetch every pull request the user authored inside the tracking window and
reconcile it with the store.

Example:
  reviewpulse sync alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), cmd, args[0])
		},
	})
}

func (c *syncCommand) Run(ctx context.Context, cmd *cobra.Command, login string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sync.SyncUser(ctx, login)
	if err != nil {
		return err
	}

	t := newTable().
		Headers("LOGIN", "FETCHED", "CREATED", "UPDATED", "UNCHANGED", "SKIPPED").
		Row(res.Login,
			strconv.Itoa(res.Fetched),
			strconv.Itoa(res.Created),
			strconv.Itoa(res.Updated),
			strconv.Itoa(res.Unchanged),
			strconv.Itoa(res.Skipped))
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
