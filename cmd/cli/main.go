// Package main implements an operator CLI for the match capture appliance.
//
// Unlike cmd/server, this tool never opens a network port: it wires the
// same Control Surface in-process and talks to it directly, which makes it
// useful for bench-testing the appliance without standing up the HTTP
// surface. Destructive operations that fall inside the recording
// protection window prompt the operator for confirmation via an
// interactive form when run from a terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/control"
	"github.com/matchcam/core/internal/health"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/preview"
	"github.com/matchcam/core/internal/recording"
	"github.com/matchcam/core/internal/runtime"
)

const (
	appName    = "matchcam-cli"
	appVersion = "1.0.0"
)

var (
	configPath = flag.String("config", "/etc/matchcam/config.json", "path to the camera/session configuration document")
	format     = flag.String("format", "table", "output format (table, json)")
	forceFlag  = flag.Bool("force", false, "bypass the recording protection window / preview eviction")
	matchID    = flag.String("match-id", "", "match identifier for start-recording")
	cameraID   = flag.Int("camera-id", -1, "target a single camera (omit for both)")
	maxAlerts  = flag.Int("max", 20, "maximum number of alerts to list")
)

func main() {
	flag.Parse()
	logger := logging.GetLogger("matchcam-cli")

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	surface, err := buildSurface(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize control surface")
	}

	ctx := context.Background()
	if err := executeCommand(ctx, surface, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildSurface wires the same collaborators cmd/server does, minus the
// HTTP listener and background supervisor tree — the CLI is a one-shot
// process, not a long-running service.
func buildSurface(path string) (*control.Surface, error) {
	cfgStore, err := config.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := cfgStore.Snapshot()

	alerts, err := health.NewChannel(256, cfg.AlertLogPath)
	if err != nil {
		return nil, fmt.Errorf("create health channel: %w", err)
	}

	exclLock, err := lock.New(cfg.LockDir)
	if err != nil {
		return nil, fmt.Errorf("open exclusion lock: %w", err)
	}

	recAdapter := runtime.NewAdapter(&runtime.FakeEngine{})
	prevAdapter := runtime.NewAdapter(&runtime.FakeEngine{})

	recSvc := recording.NewService(cfgStore, recAdapter, exclLock, alerts)
	prevSvc := preview.NewService(cfgStore, prevAdapter, exclLock, func() bool {
		return recSvc.State() != recording.StateIdle
	})
	recSvc.SetPreviewStopper(prevSvc.StopForEviction)

	return control.NewSurface(recSvc, prevSvc, alerts), nil
}

func executeCommand(ctx context.Context, surface *control.Surface, command string, args []string) error {
	switch command {
	case "status":
		return cmdStatus(surface)
	case "start-recording":
		return cmdStartRecording(ctx, surface)
	case "stop-recording":
		return cmdStopRecording(ctx, surface)
	case "start-preview":
		return cmdStartPreview(ctx, surface)
	case "stop-preview":
		return cmdStopPreview(surface)
	case "restart-preview":
		return cmdRestartPreview(ctx, surface)
	case "health":
		return cmdHealth(surface)
	case "alerts":
		return cmdAlerts(surface)
	case "version":
		fmt.Printf("%s %s\n", appName, appVersion)
		return nil
	case "help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func cameraIDs() []int {
	if *cameraID < 0 {
		return nil
	}
	return []int{*cameraID}
}

func cmdStatus(surface *control.Surface) error {
	return printResult(surface.GetStatus())
}

func cmdStartRecording(ctx context.Context, surface *control.Surface) error {
	id := *matchID
	if id == "" && isInteractive() {
		id = promptMatchID()
	}

	resp, err := surface.StartRecording(ctx, control.StartRecordingRequest{MatchID: id, Force: *forceFlag})
	if err != nil {
		var already *recording.AlreadyRecordingError
		if errors.As(err, &already) && isInteractive() && !*forceFlag {
			if confirmForce(fmt.Sprintf("Already recording %q — stop it and start a new session?", already.MatchID)) {
				resp, err = surface.StartRecording(ctx, control.StartRecordingRequest{MatchID: id, Force: true})
			}
		}
		if err != nil {
			return err
		}
	}
	return printResult(resp)
}

func cmdStopRecording(ctx context.Context, surface *control.Surface) error {
	report, err := surface.StopRecording(ctx, control.StopRecordingRequest{Force: *forceFlag})
	if err != nil {
		var protected *recording.ProtectedStopError
		if errors.As(err, &protected) && isInteractive() && !*forceFlag {
			prompt := fmt.Sprintf("Still within the protection window (%.1fs remaining) — force stop anyway?", protected.RemainingSeconds)
			if confirmForce(prompt) {
				report, err = surface.StopRecording(ctx, control.StopRecordingRequest{Force: true})
			}
		}
		if err != nil {
			return err
		}
	}
	return printResult(report)
}

func cmdStartPreview(ctx context.Context, surface *control.Surface) error {
	resp, err := surface.StartPreview(ctx, cameraIDs())
	if err != nil {
		return err
	}
	return printResult(resp)
}

func cmdStopPreview(surface *control.Surface) error {
	return printResult(surface.StopPreview(cameraIDs()))
}

func cmdRestartPreview(ctx context.Context, surface *control.Surface) error {
	resp, err := surface.RestartPreview(ctx, cameraIDs())
	if err != nil {
		return err
	}
	return printResult(resp)
}

func cmdHealth(surface *control.Surface) error {
	return printResult(surface.GetRecordingHealth())
}

func cmdAlerts(surface *control.Surface) error {
	return printResult(surface.GetAlerts(*maxAlerts))
}

func printResult(v any) error {
	if *format == "json" {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("%+v\n", v)
	return nil
}

func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func confirmForce(prompt string) bool {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes, force").
				Negative("No").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}

func promptMatchID() string {
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("match_id (leave blank to auto-generate)").
				Value(&value),
		),
	)
	if err := form.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func printUsage() {
	fmt.Printf(`%s %s

Usage:
  %s [flags] <command>

Commands:
  status           show recording and preview session snapshots
  start-recording  begin a dual-camera recording session
  stop-recording   end the current recording session
  start-preview    bring up HLS preview on one or both cameras
  stop-preview     tear down preview
  restart-preview  stop then start preview on the same cameras
  health           get_recording_health synthesis
  alerts           list recent alerts
  version          print the CLI version
  help             show this message

Flags:
`, appName, appVersion, appName)
	flag.PrintDefaults()
}
