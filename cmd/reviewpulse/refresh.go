package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type refreshCommand struct{}

func (c *refreshCommand) Register(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Sync every tracked user and wait for the run to finish",
		Long: `Run the full-roster refresh in the foreground. Users are synced one at a
time; a failure on one user does not stop the others. The table shows the
last 20 outcomes.

The cooldown is per process, so this command always starts a run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Run(cmd.Context(), cmd)
		},
	})
}

func (c *refreshCommand) Run(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.coord.Start(ctx)
	if err != nil {
		return err
	}
	if !res.Accepted {
		return fmt.Errorf("refresh not started: %s", res.Reason)
	}

	done := make(chan struct{})
	go func() {
		a.coord.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.coord.Close()
		return ctx.Err()
	}

	job := a.coord.Status()
	t := newTable().Headers("LOGIN", "RESULT", "PRS", "ERROR")
	for _, o := range job.Recent {
		result := "ok"
		if !o.Success {
			result = "failed"
		}
		t.Row(o.Login, result, strconv.Itoa(o.PRsProcessed), o.Error)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "run %s: %d users, %d succeeded, %d failed, %d pull requests\n",
		job.RunID, job.Processed, job.Succeeded, job.Failed, job.PRsProcessed)

	if job.Failed > 0 {
		return fmt.Errorf("%d of %d users failed", job.Failed, job.Total)
	}
	return nil
}
