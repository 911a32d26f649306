// Proctord - interview monitoring server. Hosts the admin API, the
// dashboard verdict feed and candidate frame ingest for concurrent sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/evidence"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/monitor/detection"
	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/web"
)

func main() {
	s := parseFlags()

	closer := log.InitWithOptions(log.Options{Level: s.Log.Level, File: s.Log.File})
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, s); err != nil {
		stdlog.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context, s config.Settings) error {
	st, err := store.Open(s.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Info("store ready", "path", st.Path())

	dashboards := hub.New("verdicts")
	go dashboards.Run(ctx)

	writer := evidence.NewWriter(s.Storage.EvidenceDir, nil)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	writer.Start(writerCtx)
	defer writer.Close()

	if s.Storage.EvidenceRetention > 0 {
		go sweepEvidence(ctx, writer.Dir(), s.Storage.EvidenceRetention)
	}

	var google *report.GoogleDocs
	if gcfg, ok := s.GoogleConfig(); ok {
		if google, err = report.NewGoogleDocs(gcfg); err != nil {
			log.Warn("Google Docs export disabled", "error", err)
			google = nil
		}
	} else {
		log.Info("Google Docs export not configured")
	}

	cams := camera.NewManager(s.CameraConfig())
	manager := session.NewManager(session.Deps{
		Monitor:   s.MonitorConfig(),
		Camera:    cams,
		Detectors: detection.Factory(s.DetectionModels(), nil),
		Store:     st,
		Hub:       dashboards,
		Evidence:  writer,
	})

	server := web.NewServer(s.Port, web.Deps{
		Sessions:    manager,
		Hub:         dashboards,
		Camera:      cams,
		Store:       st,
		Google:      google,
		ReportLimit: s.MonitorConfig().ReportLimit,
		StaticDir:   s.StaticDir,
	})
	server.StartAsync()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Warn("sessions did not stop cleanly", "error", err)
	}
	return server.Shutdown()
}

// sweepEvidence removes snapshots older than maxAge once an hour
func sweepEvidence(ctx context.Context, dir string, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		removed, err := evidence.Retention(dir, maxAge, time.Now())
		if err != nil {
			log.Warn("evidence sweep failed", "dir", dir, "error", err)
		} else if removed > 0 {
			log.Info("evidence swept", "dir", dir, "removed", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// parseFlags loads settings and applies command line overrides
func parseFlags() config.Settings {
	s, err := config.Load()
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", s.Port, "HTTP port")
	static := flag.String("static", s.StaticDir, "Dashboard asset directory")
	db := flag.String("db", s.Storage.DBPath, "SQLite database path")
	flag.Parse()

	if *debug {
		s.Log.Level = "debug"
	}
	s.Port, s.StaticDir, s.Storage.DBPath = *port, *static, *db

	if problems := s.Validate(); len(problems) > 0 {
		stdlog.Fatalf("❌ Configuration error: %v", problems)
	}
	return s
}
