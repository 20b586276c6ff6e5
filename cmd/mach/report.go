package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"mach/internal/buildpipeline"
	"mach/internal/diag"
	"mach/internal/packager"
)

var (
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgCyan)
	nameColor = color.New(color.Bold)
	dimColor  = color.New(color.Faint)
)

// printDiagnostics prints at most limit entries; info entries only when not
// quiet.
func printDiagnostics(out io.Writer, bag *diag.Bag, limit int, quiet bool) {
	if bag == nil {
		return
	}
	shown := 0
	for _, d := range bag.Items() {
		if quiet && d.Severity < diag.SevWarning {
			continue
		}
		if limit > 0 && shown == limit {
			fmt.Fprintf(out, "... %d more diagnostics\n", bag.Len()-shown)
			return
		}
		shown++
		label := infoColor.Sprint(d.Severity)
		if d.Severity >= diag.SevWarning {
			label = warnColor.Sprint(d.Severity)
		}
		if d.Primary.File != "" {
			fmt.Fprintf(out, "%s: %s [%s]: %s\n", d.Primary, label, d.Code.ID(), d.Message)
		} else {
			fmt.Fprintf(out, "%s [%s]: %s\n", label, d.Code.ID(), d.Message)
		}
	}
}

func printOutputs(out io.Writer, dist string, outputs []packager.Output) {
	var total uint64
	for _, o := range outputs {
		size := uint64(len(o.Content))
		total += size
		fmt.Fprintf(out, "  %s %s\n", nameColor.Sprint(filepath.Join(dist, o.FilePath)), dimColor.Sprint(humanize.Bytes(size)))
	}
	fmt.Fprintf(out, "wrote %d files, %s\n", len(outputs), humanize.Bytes(total))
}

func printBundles(out io.Writer, c *buildpipeline.Compilation) {
	for _, b := range c.Bundles {
		fmt.Fprintf(out, "%s (%s", nameColor.Sprint(b.Name), b.Kind)
		if b.Shared {
			fmt.Fprint(out, ", shared")
		}
		fmt.Fprintln(out, ")")
		for _, id := range b.Assets {
			fmt.Fprintf(out, "    %s\n", c.Graph.Asset(id).FilePath)
		}
		for _, id := range b.Inline {
			fmt.Fprintf(out, "    %s %s\n", c.Graph.Asset(id).FilePath, dimColor.Sprint("(inline)"))
		}
		for _, dep := range b.LoadMap {
			fmt.Fprintf(out, "    -> %s\n", dep.Name)
		}
	}
}

func printStageTimings(out io.Writer, timings buildpipeline.Timings) {
	for _, stage := range buildpipeline.Stages {
		if timings.Has(stage) {
			fmt.Fprintf(out, "%-10s %.1f ms\n", stage, toMillis(timings.Duration(stage)))
		}
	}
	fmt.Fprintf(out, "%-10s %.1f ms\n", "total", toMillis(timings.Sum()))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
