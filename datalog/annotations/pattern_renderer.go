package annotations

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// PatternRenderer pretty-prints rules and searched patterns
type PatternRenderer struct {
	useColor bool
}

// NewPatternRenderer creates a new renderer
func NewPatternRenderer(useColor bool) *PatternRenderer {
	return &PatternRenderer{useColor: useColor}
}

// RenderRule renders Rule(name)
func (r *PatternRenderer) RenderRule(name string) string {
	if r.useColor {
		return fmt.Sprintf("%s%s%s",
			color.BlueString("Rule("),
			color.CyanString(name),
			color.BlueString(")"))
	}
	return fmt.Sprintf("Rule(%s)", name)
}

// RenderPattern renders Pattern([X Y], n atoms). A negative atom count is
// left out.
func (r *PatternRenderer) RenderPattern(vars []string, atomCount int) string {
	varList := strings.Join(vars, " ")

	if r.useColor {
		result := fmt.Sprintf("%s%s%s",
			color.BlueString("Pattern(["),
			color.CyanString(varList),
			color.BlueString("]"))

		if atomCount >= 0 {
			result += fmt.Sprintf("%s%s%s",
				color.BlueString(", "),
				r.colorizeCount("atoms", atomCount),
				color.BlueString(")"))
		} else {
			result += color.BlueString(")")
		}
		return result
	}

	if atomCount >= 0 {
		return fmt.Sprintf("Pattern([%s], %d atoms)", varList, atomCount)
	}
	return fmt.Sprintf("Pattern([%s])", varList)
}

// RenderArrow renders "from → to"
func (r *PatternRenderer) RenderArrow(from, to string) string {
	arrow := " → "
	if r.useColor {
		arrow = color.YellowString(arrow)
	}
	return from + arrow + to
}

// colorizeCount formats a count with color based on size
func (r *PatternRenderer) colorizeCount(label string, count int) string {
	if !r.useColor {
		return fmt.Sprintf("%d %s", count, label)
	}

	countStr := fmt.Sprintf("%d", count)

	switch {
	case count == 0:
		countStr = color.RedString(countStr)
	case count < 100:
		countStr = color.GreenString(countStr)
	case count < 10000:
		countStr = color.YellowString(countStr)
	default:
		countStr = color.RedString(countStr)
	}

	return fmt.Sprintf("%s %s", countStr, label)
}
