// Package cliui provides reusable terminal UI helpers (spinners, step
// indicators, key/value lines) for substream CLI commands.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"golang.org/x/term"
)

// clearLine erases the current terminal line.
const clearLine = "\x1b[2K"

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ValueStyle   = lipgloss.NewStyle().Bold(true)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// isTerminal reports whether w is attached to a terminal.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// plainWriter hides the terminal behind a writer.
type plainWriter struct {
	io.Writer
}

// Plain wraps w so that Step draws no spinner on it, for when other output
// such as debug logs shares the terminal.
func Plain(w io.Writer) io.Writer {
	return plainWriter{w}
}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time. When w is not a terminal only the
// final line is written.
func Step(w io.Writer, msg string, fn func() error) error {
	return StepWithUpdates(w, msg, func(func(string)) error {
		return fn()
	})
}

// StepWithUpdates is Step for work that reports progress: every line passed
// to update is printed above the spinner as it happens.
func StepWithUpdates(w io.Writer, msg string, fn func(update func(line string)) error) error {
	_, plain := w.(plainWriter)
	animate := !plain && isTerminal(w)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		frame int
	)
	done := make(chan struct{})

	// Callers hold mu.
	draw := func() {
		fmt.Fprintf(w, "\r  %s %s",
			spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
			msg,
		)
	}

	update := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if animate {
			fmt.Fprintf(w, "\r%s", clearLine)
		}
		fmt.Fprintf(w, "  %s %s\n", DimStyle.Render("·"), line)
		if animate {
			draw()
		}
	}

	if animate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(80 * time.Millisecond)
			defer ticker.Stop()

			for {
				mu.Lock()
				draw()
				frame++
				mu.Unlock()

				select {
				case <-done:
					return
				case <-ticker.C:
				}
			}
		}()
	}

	start := time.Now()
	err := fn(update)
	elapsed := time.Since(start)

	close(done)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if animate {
		fmt.Fprintf(w, "\r%s", clearLine)
	}
	fmt.Fprintf(w, "  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// KeyValue writes one aligned "key value" line. Empty values are skipped.
func KeyValue(w io.Writer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "    %s %s\n", KeyStyle.Render(fmt.Sprintf("%-10s", key)), ValueStyle.Render(value))
}
