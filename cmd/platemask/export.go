package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		configPath string
		date       string
		daysAgo    int
		carID      string
		output     string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a date's catalog as JSON or a spreadsheet",
		Long: "Lists the date's uploaded photos grouped by car and writes them as JSON, or as an .xlsx " +
			"spreadsheet with one row per image when the output file ends in .xlsx.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date, daysAgo, time.Now())
			if err != nil {
				return err
			}
			return runExport(cmd, configPath, d, carID, output, baseURL)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to platemask config file")
	addDateFlags(cmd, &date, &daysAgo)
	cmd.Flags().StringVar(&carID, "car", "", "only export this car")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.json or .xlsx, default stdout as JSON)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "image URL prefix (default: export.image_base_url)")
	return cmd
}

func runExport(cmd *cobra.Command, configPath string, date time.Time, carID, output, baseURL string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if baseURL == "" {
		baseURL = cfg.Export.ImageBaseURL
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	conn, cat, err := connectCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	doc, err := export.New(cat, baseURL).Export(ctx, date, carID)
	if err != nil {
		return err
	}

	if output == "" {
		return doc.WriteJSON(cmd.OutOrStdout())
	}
	if err := writeExport(output, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d car(s), %d image(s) to %s\n", doc.TotalCars, doc.TotalImages, output)
	return nil
}

// writeExport writes doc to path, as a spreadsheet when path ends in .xlsx.
func writeExport(path string, doc *export.Document) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		data, err := doc.XLSX()
		if err != nil {
			return err
		}
		return blob.WriteFileAtomic(path, data, 0o644)
	}
	var buf bytes.Buffer
	if err := doc.WriteJSON(&buf); err != nil {
		return err
	}
	return blob.WriteFileAtomic(path, buf.Bytes(), 0o644)
}
