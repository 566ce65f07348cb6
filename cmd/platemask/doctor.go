package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/db"
	"github.com/ecsol/cars-numberplate-inference/internal/inference"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/ecsol/cars-numberplate-inference/internal/render"
	"github.com/ecsol/cars-numberplate-inference/internal/runlock"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and collaborators",
		Long:  "Runs diagnostic checks: config, catalog database, storage, inference service, banner image, tracking directory and run lock.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to platemask config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Platemask Doctor")
	fmt.Fprintln(out, "================")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var results []checkResult
	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)
	if cfg != nil {
		results = append(results,
			checkCatalog(ctx, cfg.Catalog),
			checkStorage(ctx, cfg.Storage),
			checkInference(ctx, cfg.Inference),
			checkBanner(cfg.Render),
			checkTrackingDir(cfg.TrackingDir()),
			checkLock(cfg.LockFile),
		)
	} else {
		for _, name := range []string{"Catalog", "Storage", "Inference", "Banner", "Tracking dir", "Run lock"} {
			results = append(results, checkResult{name, "FAIL", "skipped (no config)"})
		}
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkCatalog(ctx context.Context, cfg config.CatalogConfig) checkResult {
	conn, err := db.Connect(ctx, cfg)
	if err != nil {
		return checkResult{"Catalog", "FAIL", err.Error()}
	}
	defer conn.Close()
	sqlDB, err := conn.DB.DB()
	if err != nil {
		return checkResult{"Catalog", "FAIL", fmt.Sprintf("get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return checkResult{"Catalog", "FAIL", fmt.Sprintf("%s ping failed: %v", cfg.Driver, err)}
	}
	table := models.UploadFile{}.TableName()
	if !conn.DB.Migrator().HasTable(table) {
		return checkResult{"Catalog", "FAIL", fmt.Sprintf("%s reachable but table %s is missing", cfg.Driver, table)}
	}
	return checkResult{"Catalog", "PASS", fmt.Sprintf("%s reachable, %s present", cfg.Driver, table)}
}

func checkStorage(ctx context.Context, cfg config.StorageConfig) checkResult {
	if cfg.Backend == config.BackendLocal {
		info, err := os.Stat(cfg.Root)
		if err != nil {
			return checkResult{"Storage", "FAIL", fmt.Sprintf("root %s: %v", cfg.Root, err)}
		}
		if !info.IsDir() {
			return checkResult{"Storage", "FAIL", fmt.Sprintf("root %s is not a directory", cfg.Root)}
		}
		return checkResult{"Storage", "PASS", fmt.Sprintf("local root %s", cfg.Root)}
	}
	store, err := blob.Open(ctx, cfg)
	if err != nil {
		return checkResult{"Storage", "FAIL", err.Error()}
	}
	if _, err := store.Exists(ctx, "/platemask-doctor-probe"); err != nil {
		return checkResult{"Storage", "FAIL", fmt.Sprintf("s3://%s: %v", cfg.S3.Bucket, err)}
	}
	return checkResult{"Storage", "PASS", fmt.Sprintf("s3://%s/%s reachable", cfg.S3.Bucket, cfg.S3.Prefix)}
}

func checkInference(ctx context.Context, cfg config.InferenceConfig) checkResult {
	if cfg.URL == "" {
		return checkResult{"Inference", "FAIL", "inference.url is not set"}
	}
	if err := inference.NewClient(cfg).Health(ctx); err != nil {
		return checkResult{"Inference", "FAIL", fmt.Sprintf("%s: %v", cfg.URL, err)}
	}
	return checkResult{"Inference", "PASS", cfg.URL + " healthy"}
}

func checkBanner(cfg config.RenderConfig) checkResult {
	if cfg.BannerPath == "" {
		return checkResult{"Banner", "WARN", "render.banner_path is not set; first images will fail"}
	}
	if _, err := render.New(cfg); err != nil {
		return checkResult{"Banner", "FAIL", err.Error()}
	}
	return checkResult{"Banner", "PASS", cfg.BannerPath}
}

func checkTrackingDir(dir string) checkResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkResult{"Tracking dir", "FAIL", err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return checkResult{"Tracking dir", "FAIL", fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return checkResult{"Tracking dir", "PASS", dir}
}

func checkLock(path string) checkResult {
	h, held, err := runlock.Probe(path)
	if err != nil {
		return checkResult{"Run lock", "FAIL", err.Error()}
	}
	if held {
		return checkResult{"Run lock", "WARN", fmt.Sprintf("held by run %s (pid %d) since %s", h.RunID, h.PID, h.Started.Format(time.RFC3339))}
	}
	return checkResult{"Run lock", "PASS", "free"}
}
