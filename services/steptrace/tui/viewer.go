// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui implements the terminal replay viewer for recorded traces.
//
// # Description
//
// The viewer steps through an assembler.Result one recorded event at a
// time. It shows the source with the current line highlighted, the
// variables before and after the step with changed names marked, and the
// formula and return value when the step carries them.
//
// # Thread Safety
//
// Models are bubbletea values and are only touched by the event loop.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/steptrace/services/steptrace/assembler"
)

const (
	defaultWidth      = 100
	defaultSourceRows = 9
	minPaneWidth      = 24
)

// KeyMap holds the viewer key bindings. It implements help.KeyMap.
type KeyMap struct {
	Prev  key.Binding
	Next  key.Binding
	First key.Binding
	Last  key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// DefaultKeyMap returns the arrow and vi style bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Prev: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev step"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next step"),
		),
		First: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g/home", "first"),
		),
		Last: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G/end", "last"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next},
		{k.First, k.Last},
		{k.Help, k.Quit},
	}
}

// Model is the bubbletea model for trace replay.
type Model struct {
	result *assembler.Result
	source []string
	title  string

	step int

	width  int
	height int

	keys     KeyMap
	help     help.Model
	quitting bool
}

// NewModel creates a viewer over result.
//
// # Inputs
//
//   - result: The trace to replay. Must not be nil.
//   - source: The traced program. When empty, the source pane is rebuilt
//     from the code recorded on each step, and lines that never ran are
//     left blank.
//   - title: Shown in the header, usually the file name.
//
// # Outputs
//
//   - Model: Ready for tea.NewProgram.
func NewModel(result *assembler.Result, source []byte, title string) Model {
	lines := sourceFromSteps(result.Steps)
	if len(source) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(source), "\n"), "\n")
	}
	return Model{
		result: result,
		source: lines,
		title:  title,
		keys:   DefaultKeyMap(),
		help:   help.New(),
	}
}

// Run starts the viewer in the alternate screen and blocks until the user
// quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Step returns the index of the step on screen.
func (m Model) Step() int {
	return m.step
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		last := len(m.result.Steps) - 1
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Prev):
			if m.step > 0 {
				m.step--
			}
		case key.Matches(msg, m.keys.Next):
			if m.step < last {
				m.step++
			}
		case key.Matches(msg, m.keys.First):
			m.step = 0
		case key.Matches(msg, m.keys.Last):
			m.step = max(last, 0)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if !m.result.Success {
		b.WriteString(errorStyle.Render(fmt.Sprintf("%s error: %s", m.result.ErrorKind, m.result.Error)))
		b.WriteString("\n")
	}

	if len(m.result.Steps) == 0 {
		if m.result.Traceback != "" {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(m.result.Traceback))
		}
		b.WriteString("\n")
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}

	step := m.result.Steps[m.step]
	b.WriteString("\n")
	b.WriteString(m.renderSource(step.Line))
	b.WriteString("\n\n")
	b.WriteString(m.renderVariables(step))
	b.WriteString("\n")

	if step.Formula != nil {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("formula  "))
		b.WriteString(formulaStyle.Render(step.Formula.Expr))
		if step.Formula.Latex != nil {
			b.WriteString(dimStyle.Render("   latex: " + *step.Formula.Latex))
		}
		b.WriteString("\n")
	}
	if step.ReturnValue != nil {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("return   "))
		b.WriteString(returnStyle.Render(renderValue(step.ReturnValue.V)))
		b.WriteString("\n")
	}
	if m.step == len(m.result.Steps)-1 && m.result.Stdout != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("stdout"))
		b.WriteString("\n")
		b.WriteString(m.result.Stdout)
		if !strings.HasSuffix(m.result.Stdout, "\n") {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = "steptrace"
	}
	head := titleStyle.Render(title)
	if n := len(m.result.Steps); n > 0 {
		step := m.result.Steps[m.step]
		head += statsStyle.Render(fmt.Sprintf("  step %d/%d  %s %s:%d",
			m.step+1, n, eventBadge(step.Event), step.Func, step.Line))
	}
	return head
}

// renderSource shows a window of source lines centred on line.
func (m Model) renderSource(line int) string {
	rows := defaultSourceRows
	if m.height > 0 {
		rows = max((m.height-16)/2, 3)
	}

	start := max(line-rows/2, 1)
	end := min(start+rows-1, len(m.source))
	start = max(min(start, end-rows+1), 1)

	var b strings.Builder
	for n := start; n <= end; n++ {
		text := m.source[n-1]
		num := lineNumStyle.Render(fmt.Sprintf("%4d", n))
		if n == line {
			b.WriteString(currentMarkStyle.Render("▶ ") + num + " " + currentLineStyle.Render(text))
		} else {
			b.WriteString("  " + num + " " + codeStyle.Render(text))
		}
		if n < end {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderVariables(step assembler.Step) string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	pane := max((width-3)/2, minPaneWidth)

	changed := make(map[string]bool)
	for _, name := range step.ChangedNames() {
		changed[name] = true
	}
	before := renderVars("before", step.Before, nil, pane)
	after := renderVars("after", step.After, changed, pane)
	return lipgloss.JoinHorizontal(lipgloss.Top, paneStyle.Width(pane).Render(before), " ", paneStyle.Width(pane).Render(after))
}

func renderVars(label string, vars map[string]any, changed map[string]bool, width int) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(label))
	if len(vars) == 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("(empty)"))
		return b.String()
	}
	for _, name := range sortedNames(vars) {
		b.WriteString("\n")
		value := truncate(renderValue(vars[name]), width-len(name)-5)
		if changed[name] {
			b.WriteString(changedStyle.Render("* " + name))
		} else {
			b.WriteString("  " + nameStyle.Render(name))
		}
		b.WriteString(" = ")
		b.WriteString(value)
	}
	return b.String()
}

// sourceFromSteps rebuilds the listing from the code recorded per step.
func sourceFromSteps(steps []assembler.Step) []string {
	last := 0
	for _, s := range steps {
		if s.Code != nil && s.Line > last {
			last = s.Line
		}
	}
	lines := make([]string, last)
	for _, s := range steps {
		if s.Code != nil && s.Line >= 1 {
			lines[s.Line-1] = *s.Code
		}
	}
	return lines
}

func sortedNames(vars map[string]any) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// renderValue shows a serialized value as compact JSON. Values decoded from
// msgpack may carry map[any]any, which JSON cannot encode.
func renderValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func truncate(s string, n int) string {
	if n < 1 {
		n = 1
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func eventBadge(event string) string {
	switch event {
	case "enter":
		return enterBadge.Render(event)
	case "exit":
		return exitBadge.Render(event)
	default:
		return lineBadge.Render(event)
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	lineNumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	codeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	currentLineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("24")).
				Bold(true)

	currentMarkStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	changedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	formulaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	returnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	enterBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Background(lipgloss.Color("22")).
			Padding(0, 1)

	lineBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Background(lipgloss.Color("17")).
			Padding(0, 1)

	exitBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Background(lipgloss.Color("58")).
			Padding(0, 1)
)
