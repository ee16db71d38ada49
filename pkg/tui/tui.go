// Package tui renders the terminal surface: banner, run summaries, and
// step progress. Plain streaming output, no interactive screens.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

var (
	accent  = lipgloss.Color("#FF6B00")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintBanner prints the program header.
func PrintBanner(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  MELTFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Transient heat transfer with a moving laser source"))
	fmt.Println()
}

// RunSetup describes a run before stepping starts.
type RunSetup struct {
	RunID    string
	Deck     string
	Cells    [3]int
	Ranks    int
	TimeStep float64
	NumSteps int
	Resumed  bool
	Step     int
}

// PrintRunSetup prints the run configuration block.
func PrintRunSetup(s RunSetup) {
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Run:"), titleStyle.Render(s.RunID))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Deck:"), titleStyle.Render(s.Deck))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Cells:"),
		titleStyle.Render(fmt.Sprintf("%d x %d x %d", s.Cells[0], s.Cells[1], s.Cells[2])))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Ranks:"), titleStyle.Render(fmt.Sprintf("%d", s.Ranks)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Step:"),
		titleStyle.Render(fmt.Sprintf("%.3e s x %d steps", s.TimeStep, s.NumSteps)))
	if s.Resumed {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Resume:"),
			accentStyle.Render(fmt.Sprintf("from step %d", s.Step)))
	}
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Println()
}

// RunSummary describes a finished run.
type RunSummary struct {
	Steps    int
	Events   int
	Duration time.Duration
}

// PrintRunSummary prints the completion block.
func PrintRunSummary(s RunSummary) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ RUN COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Steps:"), titleStyle.Render(fmt.Sprintf("%d", s.Steps)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Events:"), titleStyle.Render(fmt.Sprintf("%d", s.Events)))
	if s.Duration > 0 {
		rate := float64(s.Steps) / s.Duration.Seconds()
		fmt.Printf("  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(s.Duration)),
			mutedStyle.Render(fmt.Sprintf("(%.0f steps/sec)", rate)))
	}
	fmt.Println()
}

// PrintError prints a failure line.
func PrintError(err error) {
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
}

// ShowProgress creates the stepping progress bar.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
