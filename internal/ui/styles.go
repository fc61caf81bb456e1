package ui

import (
	"fmt"
	"strconv"
)

// ANSI256 color codes.
const (
	colorAccent   = 74  // blue
	colorMuted    = 245 // medium gray
	colorOK       = 71  // green
	colorWarn     = 178 // amber
	colorDanger   = 167 // red
	colorCritical = 197 // magenta-red
)

var noColor bool

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// Init disables color unless ShouldUseColor says otherwise.
func Init() {
	if !ShouldUseColor() {
		noColor = true
	}
}

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderError returns s in red.
func RenderError(s string) string { return paint(colorDanger, s) }

// SeverityName maps a severity to its named level, or "" between levels.
func SeverityName(sev int) string {
	switch sev {
	case 0:
		return "debug"
	case 1:
		return "info"
	case 2:
		return "low"
	case 5:
		return "medium"
	case 7:
		return "high"
	case 9:
		return "critical"
	case 10:
		return "emergency"
	}
	return ""
}

// RenderSeverity formats a severity as "7 high", colored by band.
func RenderSeverity(sev int) string {
	s := strconv.Itoa(sev)
	if name := SeverityName(sev); name != "" {
		s += " " + name
	}
	switch {
	case sev >= 9:
		return paint(colorCritical, s)
	case sev >= 7:
		return paint(colorDanger, s)
	case sev >= 5:
		return paint(colorWarn, s)
	case sev <= 1:
		return paint(colorMuted, s)
	}
	return s
}
