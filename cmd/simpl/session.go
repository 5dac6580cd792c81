package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage stored sessions",
	}

	var maxAge time.Duration
	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete sessions idle longer than --max-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if err := rt.Migrate(cmd.Context()); err != nil {
				return err
			}
			n, err := rt.Sessions.GC(cmd.Context(), maxAge)
			if err != nil {
				return fmt.Errorf("session gc: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s)\n", n)
			return nil
		},
	}
	gcCmd.Flags().DurationVar(&maxAge, "max-age", 0, "Idle cutoff (default: session lifetime from config)")

	cmd.AddCommand(gcCmd)
	return cmd
}
