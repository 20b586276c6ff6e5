package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"mach/internal/buildpipeline"
	"mach/internal/ui"
)

// uiMode is the --ui setting: "auto" shows the progress view only when
// stdout is a terminal.
type uiMode string

var uiModes = map[string]uiMode{"": "auto", "auto": "auto", "on": "on", "off": "off"}

func readUIMode(value string) (uiMode, error) {
	mode, ok := uiModes[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
	return mode, nil
}

func shouldUseTUI(mode uiMode) bool {
	if mode == "auto" {
		return isTerminal(os.Stdout)
	}
	return mode == "on"
}

// runBuildWithUI runs BuildEmit in the background and shows its progress
// events until the build finishes.
func runBuildWithUI(ctx context.Context, title string, req *buildpipeline.BuildRequest) (*buildpipeline.Compilation, error) {
	events := make(chan buildpipeline.Event, 256)
	var (
		c   *buildpipeline.Compilation
		err error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer close(events)
		withSink := *req
		withSink.Progress = buildpipeline.ChannelSink{Ch: events}
		c, err = buildpipeline.BuildEmit(ctx, &withSink)
	}()

	if _, uiErr := tea.NewProgram(ui.NewProgressModel(title, events), tea.WithOutput(os.Stdout)).Run(); uiErr != nil {
		// the build blocks on a full channel unless someone keeps reading
		for range events {
		}
		<-finished
		if err == nil {
			err = uiErr
		}
		return c, err
	}
	<-finished
	return c, err
}
