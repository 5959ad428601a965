// Package ui styles CLI output with ANSI 256 colors.
package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

type color int

const (
	accent  color = 74  // blue
	command color = 250 // light gray
	muted   color = 245 // medium gray
	warn    color = 214 // orange
	danger  color = 203 // red
)

var enabled = false

// Setup turns color on when stdout supports it and disable is false.
func Setup(disable bool) {
	enabled = !disable && colorSupported(int(os.Stdout.Fd()))
}

// Enabled reports whether Render* functions emit escape codes.
func Enabled() bool { return enabled }

// colorSupported honors NO_COLOR (https://no-color.org), then
// CLICOLOR_FORCE=1, then CLICOLOR=0, and otherwise asks whether fd is a
// terminal.
func colorSupported(fd int) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(fd)
}

func (c color) render(s string) string {
	if !enabled {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", int(c), s)
}

func RenderAccent(s string) string  { return accent.render(s) }
func RenderCommand(s string) string { return command.render(s) }
func RenderMuted(s string) string   { return muted.render(s) }

// RenderWarn marks channels inside their reminder window.
func RenderWarn(s string) string { return warn.render(s) }

// RenderDanger marks expired channels.
func RenderDanger(s string) string { return danger.render(s) }
