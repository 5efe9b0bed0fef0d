package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type usersCommand struct {
	Affiliation string
}

func (c *usersCommand) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the tracked-user roster",
	}

	add := &cobra.Command{
		Use:   "add <login>",
		Short: "Start tracking a GitHub user",
		Long: `Resolve the login on GitHub and add it to the roster. Adding a user that is
already tracked refreshes its profile.

Example:
  reviewpulse users add alice --affiliation platform`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Add(cmd.Context(), cmd, args[0])
		},
	}
	add.Flags().StringVar(&c.Affiliation, "affiliation", "", "Team or organisation label for the user")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tracked users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.List(cmd.Context(), cmd)
		},
	}

	cmd.AddCommand(add, list)
	parent.AddCommand(cmd)
}

func (c *usersCommand) Add(ctx context.Context, cmd *cobra.Command, login string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.roster.AddUser(ctx, login, c.Affiliation)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "tracking %s (github id %d)\n", user.Login, user.GitHubID)
	return nil
}

func (c *usersCommand) List(ctx context.Context, cmd *cobra.Command) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.roster.ListUsers(ctx)
	if err != nil {
		return err
	}

	t := newTable().Headers("LOGIN", "NAME", "AFFILIATION", "GITHUB ID", "ADDED")
	for _, u := range users {
		t.Row(u.Login, u.Name, u.Affiliation, strconv.FormatInt(u.GitHubID, 10), u.AddedAt.Format(time.DateOnly))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
