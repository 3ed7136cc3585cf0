package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// health grades one line of `status` or `deps` output.
type health int

const (
	healthInfo health = iota
	healthOK
	healthDegraded
	healthDown
)

type badge struct {
	label string
	color string
}

var healthBadges = map[health]badge{
	healthInfo:     {"INFO", "\x1b[34m"},
	healthOK:       {"OK", "\x1b[32m"},
	healthDegraded: {"WARN", "\x1b[33m"},
	healthDown:     {"ERROR", "\x1b[31m"},
}

const (
	ansiReset  = "\x1b[0m"
	labelWidth = 14
)

// healthLine renders "  Downloaders:   [OK] 2 connected, 1 idle".
func healthLine(label string, h health, detail string, colorize bool) string {
	b := healthBadges[h]
	line := fmt.Sprintf("  %-*s [%s]", labelWidth, label+":", b.label)
	if detail != "" {
		line += " " + detail
	}
	if colorize {
		return b.color + line + ansiReset
	}
	return line
}

// sectionHeader renders a title with an underline of the same width.
func sectionHeader(title string, colorize bool) []string {
	title = "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(title))
	if !colorize {
		return []string{title, rule}
	}
	color := healthBadges[healthInfo].color
	return []string{color + title + ansiReset, color + rule + ansiReset}
}

// colorOutput reports whether w is a terminal that understands ANSI colours.
func colorOutput(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// shortID keeps the first uuid group, which is what the log prefixes show.
func shortID(id string) string {
	if head, _, ok := strings.Cut(id, "-"); ok && head != "" {
		return head
	}
	return id
}
