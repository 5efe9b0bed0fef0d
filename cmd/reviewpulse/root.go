package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

// command is a CLI command that registers itself with a cobra parent.
type command interface {
	Register(parent *cobra.Command)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reviewpulse",
		Short: "GitHub pull request review metrics",
		Long: `reviewpulse ingests the pull requests of a roster of tracked GitHub users,
classifies their review state, and reports review bottlenecks, efficiency
and a merged-PR leaderboard.

Configuration is read from REVIEWPULSE_* environment variables and an
optional .env file in the working directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	commands := []command{
		&serveCommand{},
		&syncCommand{},
		&refreshCommand{},
		&bottlenecksCommand{},
		&efficiencyCommand{},
		&leaderboardCommand{},
		&usersCommand{},
	}
	for _, c := range commands {
		c.Register(root)
	}

	return root
}

func execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}
