package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/catalog"
	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/db"
	"github.com/ecsol/cars-numberplate-inference/internal/inference"
	"github.com/ecsol/cars-numberplate-inference/internal/orchestrator"
	"github.com/ecsol/cars-numberplate-inference/internal/plan"
	"github.com/ecsol/cars-numberplate-inference/internal/render"
)

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// connectCatalog opens the catalog database. A connection failure is
// reported as catalog.ErrUnavailable.
func connectCatalog(ctx context.Context, cfg *config.Config) (*db.Conn, *catalog.Catalog, error) {
	conn, err := db.Connect(ctx, cfg.Catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", catalog.ErrUnavailable, err)
	}
	return conn, catalog.New(conn.DB), nil
}

// app holds the collaborators of a run.
type app struct {
	cfg  *config.Config
	conn *db.Conn
	orch *orchestrator.Orchestrator
}

func (a *app) Close() {
	a.conn.Close()
}

func buildApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	store, err := blob.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(cfg.Render)
	if err != nil {
		return nil, err
	}
	conn, cat, err := connectCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	orch := orchestrator.New(orchestrator.Deps{
		Catalog:     cat,
		Store:       store,
		Detector:    inference.NewClient(cfg.Inference),
		Renderer:    renderer,
		Classifier:  plan.NewClassifier(cfg.Roles.SkipDetectionBranches),
		Resolver:    plan.NewResolver(plan.Source(cfg.Modes.NormalFirstOriginalSource)),
		TrackingDir: cfg.TrackingDir(),
		LockFile:    cfg.LockFile,
		Out:         out,
	})
	return &app{cfg: cfg, conn: conn, orch: orch}, nil
}
