// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output: styled on a terminal, plain tab-separated
// text when piped.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Aleutian palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the shared text styles.
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
	Header  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Label:   lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
}

// Mode selects how a Printer renders.
type Mode int

const (
	// ModeAuto styles output only when it goes to a terminal.
	ModeAuto Mode = iota
	// ModeStyled always styles.
	ModeStyled
	// ModePlain never styles. Lines are tab separated for scripts.
	ModePlain
)

// ParseMode maps "auto", "styled" and "plain" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ModeAuto, nil
	case "styled", "color":
		return ModeStyled, nil
	case "plain", "machine":
		return ModePlain, nil
	default:
		return ModeAuto, fmt.Errorf("unknown output mode %q", s)
	}
}

// KV is one labelled value.
type KV struct {
	Key   string
	Value string
}

// Printer writes CLI output.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter returns a printer on w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	plain := mode == ModePlain
	if mode == ModeAuto {
		plain = !isTerminal(w)
	}
	return &Printer{w: w, plain: plain}
}

// Stdout returns an auto-mode printer on os.Stdout.
func Stdout() *Printer { return NewPrinter(os.Stdout, ModeAuto) }

// Plain reports whether the printer renders without styling.
func (p *Printer) Plain() bool { return p.plain }

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Title prints a heading. Plain mode omits it.
func (p *Printer) Title(text string) {
	if p.plain {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Success.Render("✓"), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Error.Render("✗"), Styles.Error.Render(text))
}

// Fields prints labelled values, boxed under title when styled and as
// "key<TAB>value" lines when plain.
func (p *Printer) Fields(title string, fields []KV) {
	if p.plain {
		for _, f := range fields {
			fmt.Fprintf(p.w, "%s\t%s\n", f.Key, f.Value)
		}
		return
	}
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Key))
	}
	lines := []string{Styles.Title.Render(title)}
	for _, f := range fields {
		label := Styles.Label.Render(f.Key + strings.Repeat(" ", width-lipgloss.Width(f.Key)))
		lines = append(lines, label+"  "+f.Value)
	}
	fmt.Fprintln(p.w, Styles.Box.Render(strings.Join(lines, "\n")))
}

// Table prints rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.plain {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.w, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(p.w, t.Render())
}

// Bar renders a fraction in [0, 1] as a bar of width cells.
func (p *Printer) Bar(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)
	if p.plain {
		return fmt.Sprintf("%.0f%%", fraction*100)
	}
	filled := int(fraction * float64(width))
	return Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3.0f%%", fraction*100)
}
