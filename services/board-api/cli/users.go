package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-board/internal/postgres"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>...",
	Short: "Add users to the directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir postgres.UserDirectory) error {
			for _, name := range args {
				name = strings.TrimSpace(name)
				if name == "" {
					return fmt.Errorf("username must not be empty")
				}
				u, err := dir.Add(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.ID, u.Username)
			}
			return nil
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users in assignment order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDirectory(func(ctx context.Context, dir postgres.UserDirectory) error {
			users, err := dir.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\n", u.ID, u.Username)
			}
			return tw.Flush()
		})
	},
}

func init() {
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
}

func withDirectory(fn func(ctx context.Context, dir postgres.UserDirectory) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return fn(ctx, postgres.NewUserDirectory(pool))
}
