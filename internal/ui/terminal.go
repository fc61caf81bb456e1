package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout gets ANSI colors.
func ShouldUseColor() bool {
	return colorFor(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

// colorFor applies the NO_COLOR, CLICOLOR_FORCE and CLICOLOR conventions,
// in that order of precedence, and falls back to tty.
func colorFor(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0":
		return false
	}
	return tty
}
