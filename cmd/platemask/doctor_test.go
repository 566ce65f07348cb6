package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/ecsol/cars-numberplate-inference/internal/runlock"
)

func TestDoctorCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"doctor", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("doctor --help failed: %v", err)
	}
	if !strings.Contains(buf.String(), "diagnostic checks") {
		t.Errorf("expected help to mention 'diagnostic checks', got: %s", buf.String())
	}
}

func TestDoctorCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"doctor", "--config", "/nonexistent/platemask.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected failure without config")
	}
	out := buf.String()
	if !strings.Contains(out, "[FAIL] Config file") || !strings.Contains(out, "skipped (no config)") {
		t.Errorf("unexpected doctor output: %s", out)
	}
}

func TestDoctor_EndToEnd(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	out, err := f.run(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{"[PASS] Catalog", "[PASS] Storage", "[PASS] Banner", "[PASS] Tracking dir", "[PASS] Run lock"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckInference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx := context.Background()
	if r := checkInference(ctx, config.InferenceConfig{URL: srv.URL}); r.status != "PASS" {
		t.Errorf("healthy service = %+v", r)
	}
	if r := checkInference(ctx, config.InferenceConfig{}); r.status != "FAIL" {
		t.Errorf("missing url = %+v", r)
	}
}

func TestCheckBanner(t *testing.T) {
	if r := checkBanner(config.RenderConfig{}); r.status != "WARN" {
		t.Errorf("no banner = %+v, want WARN", r)
	}
	if r := checkBanner(config.RenderConfig{BannerPath: "/nonexistent/banner.png"}); r.status != "FAIL" {
		t.Errorf("missing banner = %+v, want FAIL", r)
	}
}

func TestCheckStorage_Local(t *testing.T) {
	ctx := context.Background()
	if r := checkStorage(ctx, config.StorageConfig{Backend: config.BackendLocal, Root: t.TempDir()}); r.status != "PASS" {
		t.Errorf("existing root = %+v", r)
	}
	if r := checkStorage(ctx, config.StorageConfig{Backend: config.BackendLocal, Root: "/nonexistent/root"}); r.status != "FAIL" {
		t.Errorf("missing root = %+v", r)
	}
}

func TestCheckLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platemask.lock")
	if r := checkLock(path); r.status != "PASS" {
		t.Errorf("free lock = %+v", r)
	}
	l, err := runlock.Acquire(path, runlock.Holder{RunID: "run-a", Started: time.Now()})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()
	r := checkLock(path)
	if r.status != "WARN" || !strings.Contains(r.detail, "run-a") {
		t.Errorf("held lock = %+v, want WARN naming run-a", r)
	}
}
