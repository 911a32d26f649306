package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/report"
)

// status is the printable part of a verdict
type status struct {
	phase     monitor.Phase
	face      bool
	head      monitor.Direction
	headLabel string
	gaze      monitor.Direction
	gazeLabel string
	device    bool
}

func statusOf(v monitor.Verdict) status {
	return status{
		phase:     v.Head.Phase,
		face:      v.Head.FaceFound,
		head:      v.Head.Direction,
		headLabel: v.Head.Label,
		gaze:      v.Gaze,
		gazeLabel: v.GazeLabel,
		device:    v.Device.Detected,
	}
}

func printStatus(w io.Writer, s status) {
	dim := color.New(color.FgHiBlack)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	alert := color.New(color.FgRed, color.Bold)

	if s.phase == monitor.PhaseCalibrating {
		dim.Fprintln(w, "⏳ Calibrating, look at the screen")
		return
	}
	if !s.face {
		warn.Fprintln(w, "👤 No face in frame")
		return
	}

	head := ok
	if s.head != monitor.DirectionCenter {
		head = warn
	}
	gaze := ok
	if s.gaze != monitor.DirectionCenter {
		gaze = warn
	}
	head.Fprintf(w, "Head: %-18s", s.headLabel)
	gaze.Fprintf(w, " Eyes: %-14s", s.gazeLabel)
	if s.device {
		alert.Fprint(w, " 📱 Mobile device")
	}
	fmt.Fprintln(w)
}

// printReport renders the final integrity report
func printReport(w io.Writer, s report.Summary, evidenceDir string) {
	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	good := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed)

	fmt.Fprintln(w)
	header.Fprintln(w, "Interview Integrity Report")
	header.Fprintln(w, strings.Repeat("=", 26))
	dim.Fprintf(w, "Session %s, %s\n\n", s.SessionID, s.Duration().Round(time.Second))

	counter := func(label string, n int) {
		c := good
		if n > 0 {
			c = bad
		}
		c.Fprintf(w, "  %-22s %d\n", label, n)
	}

	header.Fprintln(w, "Mobile Device Detections")
	counter("Detections", s.MobileDetections)

	header.Fprintln(w, "Head Position Events")
	for _, c := range s.HeadPose {
		counter(c.Label, c.Count)
	}

	header.Fprintln(w, "Eye Movement Events")
	for _, c := range s.EyeMovement {
		counter(c.Label, c.Count)
	}

	fmt.Fprintln(w)
	header.Fprintln(w, "Suspicious Activity")
	if len(s.Entries) == 0 {
		good.Fprintln(w, "  No suspicious activity recorded.")
		return
	}
	for i, e := range s.Entries {
		fmt.Fprintf(w, "  %d. %s\n", i+1, report.Line(e, time.Local))
	}
	if s.Overflow > 0 {
		dim.Fprintf(w, "  ... and %d more events\n", s.Overflow)
	}
	dim.Fprintf(w, "\nSnapshots saved under %s\n", evidenceDir)
}
