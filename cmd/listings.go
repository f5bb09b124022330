package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-extract/internal/export"
	"github.com/fyerfyer/doc-extract/internal/services"
)

func listingsCMD(cfgPath *string) *cobra.Command {
	var (
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "listings <url>",
		Short: "Scrape a listing page and write the extracted properties to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if format != "" {
				a.cfg.Listing.Format = format
			}
			if err := a.setupListings(); err != nil {
				return err
			}
			return a.runListing(cmd.Context(), cmd.OutOrStdout(), args[0], out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default ./real_estate_properties.<format>)")
	cmd.Flags().StringVar(&format, "format", "", "xlsx or csv (default from config)")
	return cmd
}

func (a *app) runListing(ctx context.Context, w io.Writer, url, out string) error {
	result, err := a.listings.Process(ctx, "", url)
	if err != nil {
		return err
	}

	exp, err := export.NewExporter(a.cfg.Listing.Format)
	if err != nil {
		return err
	}
	if out == "" {
		out = services.OutputName + exp.Extension()
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := a.listings.Export(result.SessionID, f, exp); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "chunks: %d  rows: %d  failed chunks: %v\n", result.ChunkCount, result.RowCount, result.FailedChunks)
	if result.RawKey != "" {
		fmt.Fprintf(w, "raw markdown: %s\n", result.RawKey)
	}
	fmt.Fprintf(w, "written: %s\n", out)
	return nil
}
