package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the query result cache",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if err := rt.DB.ClearCache(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache backend, entry count and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			st, err := rt.Cache.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				b, _ := json.MarshalIndent(st, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			}
			fmt.Fprintf(out, "backend:  %s\n", st.Backend)
			fmt.Fprintf(out, "enabled:  %t\n", rt.Config.Cache.Enabled)
			fmt.Fprintf(out, "writable: %t\n", rt.Cache.Writable())
			fmt.Fprintf(out, "entries:  %s\n", humanize.Comma(int64(st.Entries)))
			fmt.Fprintf(out, "size:     %s\n", humanize.Bytes(uint64(st.Bytes)))
			return nil
		},
	}

	cmd.AddCommand(clearCmd, statsCmd)
	return cmd
}
