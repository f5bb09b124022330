package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-extract/internal/sqlqa"
)

func askCMD(cfgPath *string) *cobra.Command {
	var (
		dialect    string
		dsn        string
		showSchema bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a natural language question about a SQL database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if dialect != "" {
				a.cfg.SQL.Dialect = sqlqa.Dialect(dialect)
			}
			if dsn != "" {
				a.cfg.SQL.DSN = dsn
			}
			if a.cfg.SQL.DSN == "" {
				return fmt.Errorf("no database configured: set sql.dsn or pass --dsn")
			}

			ctx := cmd.Context()
			if err := a.setupSQL(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if showSchema {
				schema, err := a.sql.Schema(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, schema.String())
			}

			answer, err := a.sql.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "SQL: %s\n\n", answer.Query)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(answer.Columns, "\t"))
			for _, row := range answer.Result {
				fmt.Fprintln(tw, strings.Join(row, "\t"))
			}
			tw.Flush()
			fmt.Fprintf(out, "\n%s\n", answer.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "", "mysql, postgres or sqlite (default from config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN (default from config)")
	cmd.Flags().BoolVar(&showSchema, "schema", false, "print the schema given to the model")
	return cmd
}
