package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
	renderer *PatternRenderer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stderr
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
		renderer: NewPatternRenderer(useColor),
	}
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case ChaseBegin:
		return fmt.Sprintf("%s %s Chase %s (%s) with %s over %s",
			latency,
			f.colorize("===", color.FgYellow),
			stringData(event, "run"),
			stringData(event, "strategy"),
			f.colorizeCount("rules", intData(event, "rules")),
			f.colorizeCount("atoms", intData(event, "facts")))

	case RoundBegin:
		return fmt.Sprintf("%s %s Round %d starting with %s",
			latency,
			f.colorize("---", color.FgYellow),
			intData(event, "round"),
			f.colorizeCount("atoms", intData(event, "facts")))

	case RoundComplete:
		return fmt.Sprintf("%s Round %d: %s, %s",
			latency,
			intData(event, "round"),
			f.colorizeCount("triggers", intData(event, "triggers")),
			f.colorizeCount("added", intData(event, "added")))

	case RuleApplied:
		rule := f.renderer.RenderRule(stringData(event, "rule"))
		return fmt.Sprintf("%s %s",
			latency,
			f.renderer.RenderArrow(rule, f.colorizeCount("triggers", intData(event, "triggers"))))

	case ChaseComplete:
		status := stringData(event, "status")
		if errText := stringData(event, "error"); errText != "" {
			return fmt.Sprintf("%s %s Chase %s: %s",
				latency,
				f.colorize("✗", color.FgRed),
				status,
				errText)
		}
		return fmt.Sprintf("%s %s Chase %s after %d rounds with %s",
			latency,
			f.colorize("===", color.FgGreen),
			status,
			intData(event, "rounds"),
			f.colorizeCount("added", intData(event, "added")))

	case HomomorphismSearch:
		pattern := f.renderer.RenderPattern(nil, intData(event, "atoms"))
		if vars, ok := event.Data["vars"].([]string); ok {
			pattern = f.renderer.RenderPattern(vars, intData(event, "atoms"))
		}
		return fmt.Sprintf("%s %s",
			latency,
			f.renderer.RenderArrow(pattern, f.colorizeCount("results", intData(event, "results"))))

	case ErrorStore, ErrorRule:
		return fmt.Sprintf("%s %s %s in %s: %s",
			latency,
			f.colorize("✗", color.FgRed),
			event.Name,
			stringData(event, "rule"),
			stringData(event, "error"))

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

func intData(event Event, key string) int {
	if v, ok := event.Data[key].(int); ok {
		return v
	}
	return 0
}

func stringData(event Event, key string) string {
	if v, ok := event.Data[key].(string); ok {
		return v
	}
	return ""
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "rules":
		return color.CyanString(text)
	case "atoms", "added":
		return color.MagentaString(text)
	case "triggers", "results":
		return color.BlueString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

// isTerminal checks if the file descriptor is stdout or stderr.
// TODO: switch to golang.org/x/term once it is a direct dependency.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2)
}
