package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gitea.knapp/jacoknapp/simpl/internal/db"
	"gitea.knapp/jacoknapp/simpl/internal/file"
)

func queryCmd() *cobra.Command {
	var (
		schema   string
		noCache  bool
		readOnly bool
		fromFile string
	)
	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run one statement and print its rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := statementFrom(args, fromFile)
			if err != nil {
				return err
			}
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var opts []db.QueryOption
			if schema != "" {
				opts = append(opts, db.WithSchema(schema))
			}
			if noCache {
				opts = append(opts, db.WithoutCache())
			}
			if readOnly {
				opts = append(opts, db.ReadOnly())
			}
			res, err := rt.DB.Query(cmd.Context(), q, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flagJSON {
				rows := res.Rows()
				if rows == nil {
					rows = []db.Row{}
				}
				b, _ := json.MarshalIndent(map[string]any{
					"columns":       res.Columns(),
					"rows":          rows,
					"cached":        res.Cached(),
					"rows_affected": res.RowsAffected(),
				}, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			}

			if len(res.Columns()) == 0 {
				fmt.Fprintf(out, "%d row(s) affected\n", res.RowsAffected())
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(res.Columns(), "\t"))
			for row, ok := res.Next(); ok; row, ok = res.Next() {
				vals := make([]string, len(res.Columns()))
				for i, c := range res.Columns() {
					vals[i] = row.String(c)
				}
				fmt.Fprintln(tw, strings.Join(vals, "\t"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "Run against this schema, then switch back")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Refuse statements that write")
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read the statement from this file")
	return cmd
}

// statementFrom takes the statement from the single argument or, with
// --file, from that file. Exactly one of the two must be given.
func statementFrom(args []string, path string) (string, error) {
	switch {
	case path != "" && len(args) > 0:
		return "", errors.New("give either SQL or --file, not both")
	case path != "":
		f := file.New(filepath.Base(path), filepath.Dir(path))
		if !f.Exists() {
			return "", fmt.Errorf("%s: no such file", path)
		}
		b, err := f.Contents()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("a statement is required")
}
