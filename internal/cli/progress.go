// Package cli provides terminal output helpers for the pipeline runner.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Console writes status lines, colouring them when the writer is a terminal.
type Console struct {
	mu       sync.Mutex
	writer   io.Writer
	colorize bool
}

// NewConsole writes to w. Colour is enabled only for terminal files.
func NewConsole(w io.Writer) *Console {
	return &Console{writer: w, colorize: isTerminal(w)}
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer { return c.writer }

func (c *Console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, format, args...)
}

func (c *Console) Println(args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.writer, args...)
}

func (c *Console) Success(message string) { c.mark("✓", ColorGreen, message) }
func (c *Console) Error(message string)   { c.mark("✗", ColorRed, message) }
func (c *Console) Warning(message string) { c.mark("⚠", ColorYellow, message) }
func (c *Console) Info(message string)    { c.mark("ℹ", ColorBlue, message) }

// Heading prints a bold title line.
func (c *Console) Heading(title string) {
	c.Println(c.Colorize(title, ColorBold))
}

// Status prints "name: status", green for healthy, yellow for unknown and
// red otherwise.
func (c *Console) Status(name, status string) {
	color := ColorRed
	switch status {
	case "healthy":
		color = ColorGreen
	case "unknown":
		color = ColorYellow
	}
	c.Printf("%s: %s\n", name, c.Colorize(status, color))
}

// Colorize wraps text in color when colour output is enabled.
func (c *Console) Colorize(text, color string) string {
	if !c.colorize {
		return text
	}
	return color + text + ColorReset
}

func (c *Console) mark(symbol, color, message string) {
	c.Printf("%s %s\n", c.Colorize(symbol, color), message)
}

// ProgressBar renders batch progress on a single line.
type ProgressBar struct {
	total     int
	current   int
	width     int
	prefix    string
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
	colorize  bool
}

// NewProgressBar creates a progress bar for total steps writing to w.
func NewProgressBar(w io.Writer, total int, prefix string) *ProgressBar {
	if total <= 0 {
		total = 1
	}
	return &ProgressBar{
		total:     total,
		width:     40,
		prefix:    prefix,
		writer:    w,
		startTime: time.Now(),
		colorize:  isTerminal(w),
	}
}

// SetWidth sets the width of the bar in cells.
func (pb *ProgressBar) SetWidth(width int) *ProgressBar {
	pb.width = width
	return pb
}

// Increment advances the bar by one step.
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.current < pb.total {
		pb.current++
	}
	pb.render()
}

// Finish fills the bar and ends the line.
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.writer)
}

func (pb *ProgressBar) render() {
	percent := float64(pb.current) / float64(pb.total)
	filled := int(float64(pb.width) * percent)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)
	if pb.colorize {
		switch {
		case percent < 0.5:
			bar = ColorYellow + bar + ColorReset
		case percent < 1.0:
			bar = ColorCyan + bar + ColorReset
		default:
			bar = ColorGreen + bar + ColorReset
		}
	}

	output := fmt.Sprintf("\r%s [%s] %d/%d", pb.prefix, bar, pb.current, pb.total)
	if pb.current > 0 {
		output += " | " + formatDuration(time.Since(pb.startTime)) + " elapsed"
	}
	fmt.Fprint(pb.writer, output)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
