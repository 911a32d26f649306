// Proctor - single-session interview monitor on the local webcam.
// Prints live verdict changes and a colored integrity report on exit.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/evidence"
	"github.com/teslashibe/go-proctor/pkg/monitor/detection"
	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/store"
)

type options struct {
	settings config.Settings
	duration time.Duration
	noStore  bool
	quiet    bool
}

func main() {
	opts := parseFlags()
	s := opts.settings

	closer := log.InitWithOptions(log.Options{Level: s.Log.Level, File: s.Log.File})
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if opts.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.duration)
		defer stop()
	}

	if err := run(ctx, opts); err != nil {
		stdlog.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	s := opts.settings

	var st *store.Store
	if !opts.noStore {
		var err error
		if st, err = store.Open(s.Storage.DBPath); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	writer := evidence.NewWriter(s.Storage.EvidenceDir, nil)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	writer.Start(writerCtx)

	manager := session.NewManager(session.Deps{
		Monitor:   s.MonitorConfig(),
		Camera:    camera.NewManager(s.CameraConfig()),
		Detectors: detection.Factory(s.DetectionModels(), nil),
		Store:     st,
		Evidence:  writer,
	})

	sess, err := manager.Start(ctx, session.Options{Monitoring: true, Source: session.SourceCamera})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Printf("🎥 Monitoring session %s (Ctrl-C to finish)\n", sess.ID())

	if !opts.quiet {
		watch(ctx, sess)
	} else {
		<-ctx.Done()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	final, err := manager.Stop(stopCtx, sess.ID())
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	// Flush queued captures before the report points at them
	writer.Close()

	printReport(os.Stdout, report.Summarize(final, s.MonitorConfig().ReportLimit), writer.Dir())
	return nil
}

// watch prints a line whenever a modality's verdict changes
func watch(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var last status
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, ok := sess.LastVerdict()
			if !ok {
				continue
			}
			cur := statusOf(v)
			if cur != last {
				printStatus(os.Stdout, cur)
				last = cur
			}
		}
	}
}

// parseFlags loads settings and applies command line overrides
func parseFlags() options {
	s, err := config.Load()
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	device := flag.Int("device", s.Camera.Device, "Camera device index")
	preset := flag.String("preset", s.Monitor.Preset, "Monitor preset: default, strict, lenient")
	faceModel := flag.String("face-model", s.Models.Face, "YuNet ONNX model path")
	objectModel := flag.String("object-model", s.Models.Object, "YOLOv8 ONNX model path")
	evidenceDir := flag.String("evidence", s.Storage.EvidenceDir, "Directory for capture snapshots")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	noStore := flag.Bool("no-store", false, "Do not record the session in the database")
	quiet := flag.Bool("quiet", false, "Only print the final report")
	flag.Parse()

	if *debug {
		s.Log.Level = "debug"
	}
	s.Camera.Device = *device
	s.Monitor.Preset = *preset
	s.Models.Face, s.Models.Object = *faceModel, *objectModel
	s.Storage.EvidenceDir = *evidenceDir

	if problems := s.Validate(); len(problems) > 0 {
		stdlog.Fatalf("❌ Configuration error: %v", problems)
	}
	return options{settings: s, duration: *duration, noStore: *noStore, quiet: *quiet}
}
