package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

type bottlenecksCommand struct{}

func (c *bottlenecksCommand) Register(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "bottlenecks",
		Short: "List pull requests stuck in review for a week or more",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Run(cmd.Context(), cmd)
		},
	})
}

func (c *bottlenecksCommand) Run(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.metrics.Bottlenecks(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d stuck pull requests", report.TotalStuckPRs)))
	if report.TotalStuckPRs == 0 {
		return nil
	}

	t := newTable().Headers("REPOSITORY", "#", "AUTHOR", "STATUS", "DAYS", "TITLE")
	for _, s := range report.StuckPRs {
		pr := s.PullRequest
		t.Row(pr.RepoFullName, strconv.Itoa(pr.Number), pr.AuthorLogin, string(pr.ReviewStatus),
			strconv.Itoa(s.DaysInReview), truncate(pr.Title, 60))
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

type efficiencyCommand struct{}

func (c *efficiencyCommand) Register(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "efficiency",
		Short: "Show aggregate review efficiency metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Run(cmd.Context(), cmd)
		},
	})
}

func (c *efficiencyCommand) Run(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.metrics.Efficiency(ctx)
	if err != nil {
		return err
	}

	t := newTable().Headers("METRIC", "VALUE").
		Row("pull requests", strconv.Itoa(r.TotalPRs)).
		Row("with reviews", strconv.Itoa(r.PRsWithReviews)).
		Row("review rate %", formatFloat(r.ReviewRate)).
		Row("approved", strconv.Itoa(r.ApprovedPRs)).
		Row("changes requested", strconv.Itoa(r.ChangesRequestedPRs)).
		Row("merged", strconv.Itoa(r.MergedPRs)).
		Row("approval rate %", formatFloat(r.ApprovalRate)).
		Row("avg first review (h)", formatFloat(r.AvgTimeToFirstReviewHours)).
		Row("avg total review (h)", formatFloat(r.AvgTotalReviewTimeHours)).
		Row("stuck", strconv.Itoa(r.Bottlenecks.TotalStuckPRs)).
		Row("repos with stuck", strconv.Itoa(r.Bottlenecks.RepositoriesWithStuckPRs))

	for _, st := range model.ReviewStatuses {
		t.Row("status "+string(st), strconv.Itoa(r.StatusCounts[st]))
	}

	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

type leaderboardCommand struct {
	limit int
}

func (c *leaderboardCommand) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank tracked users by merged pull requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Run(cmd.Context(), cmd)
		},
	}
	cmd.Flags().IntVarP(&c.limit, "limit", "n", 0, "show only the top N users (0 shows all)")
	parent.AddCommand(cmd)
}

func (c *leaderboardCommand) Run(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	board, err := a.metrics.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if c.limit > 0 && len(board) > c.limit {
		board = board[:c.limit]
	}

	out := cmd.OutOrStdout()
	if len(board) == 0 {
		fmt.Fprintln(out, "no tracked users")
		return nil
	}

	t := newTable().Headers("RANK", "LOGIN", "NAME", "MERGED", "TOTAL")
	for i, e := range board {
		t.Row(strconv.Itoa(i+1), e.Login, e.Name, strconv.Itoa(e.MergedPRs), strconv.Itoa(e.TotalPRs))
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
