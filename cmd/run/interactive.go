package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err         error
	mapCtx      *engine.Context
	reduceCtx   *engine.Context
	mapFiles    string
	reduceFiles string
	kindStr     string
	result      string
	funcs       []funcInfo
	inputs      []textinput.Model
	selected    int
	focusIdx    int
	state       modelState
}

type funcKind int

const (
	funcMap funcKind = iota
	funcReduce
	funcRereduce
)

type funcInfo struct {
	name   string
	kind   funcKind
	slot   int
	params []paramInfo
}

type paramInfo struct {
	name        string
	placeholder string
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(mapFiles, reduceFiles, kindStr string) *interactiveModel {
	return &interactiveModel{
		mapFiles:    mapFiles,
		reduceFiles: reduceFiles,
		kindStr:     kindStr,
		state:       stateSelectFunc,
	}
}

type loadedMsg struct {
	err       error
	mapCtx    *engine.Context
	reduceCtx *engine.Context
	funcs     []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadFunctions
}

func (m *interactiveModel) loadFunctions() tea.Msg {
	kind, err := parseKind(m.kindStr)
	if err != nil {
		return loadedMsg{err: err}
	}

	mapSources, err := readSources(m.mapFiles)
	if err != nil {
		return loadedMsg{err: err}
	}
	mapCtx, err := engine.NewContext(mapSources, engine.ContextConfig{Index: kind})
	if err != nil {
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for i := range mapSources {
		funcs = append(funcs, funcInfo{
			name: fmt.Sprintf("map[%d]", i),
			kind: funcMap,
			slot: i,
			params: []paramInfo{
				{name: "document", placeholder: `{"field": "value"}`},
				{name: "metadata", placeholder: `{"id": "doc1"}`},
			},
		})
	}

	var reduceCtx *engine.Context
	if m.reduceFiles != "" {
		reduceSources, err := readSources(m.reduceFiles)
		if err != nil {
			mapCtx.Close()
			return loadedMsg{err: err}
		}
		reduceCtx, err = engine.NewContext(reduceSources, engine.ContextConfig{Index: kind})
		if err != nil {
			mapCtx.Close()
			return loadedMsg{err: err}
		}
		for i := range reduceSources {
			funcs = append(funcs, funcInfo{
				name: fmt.Sprintf("reduce[%d]", i),
				kind: funcReduce,
				slot: i,
				params: []paramInfo{
					{name: "keys", placeholder: `["a", "b"]`},
					{name: "values", placeholder: `[1, 2]`},
				},
			})
			funcs = append(funcs, funcInfo{
				name: fmt.Sprintf("rereduce[%d]", i),
				kind: funcRereduce,
				slot: i,
				params: []paramInfo{
					{name: "reductions", placeholder: `[3, 4]`},
				},
			})
		}
	}

	return loadedMsg{funcs: funcs, mapCtx: mapCtx, reduceCtx: reduceCtx}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()

		case "q":
			// Inside a text field, q is just a character.
			if m.state != stateInputArgs {
				return m.quit()
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.funcs = msg.funcs
		m.mapCtx = msg.mapCtx
		m.reduceCtx = msg.reduceCtx

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	if m.mapCtx != nil {
		m.mapCtx.Close()
	}
	if m.reduceCtx != nil {
		m.reduceCtx.Close()
	}
	return m, tea.Quit
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.placeholder
		ti.Prompt = p.name + ": "
		ti.Width = 60
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
		if args[i] == "" {
			args[i] = f.params[i].placeholder
		}
	}

	switch f.kind {
	case funcMap:
		results, err := m.mapCtx.MapDoc([]byte(args[0]), []byte(args[1]))
		if err != nil {
			return callResultMsg{err: err}
		}
		return callResultMsg{result: formatMapResult(f.slot, results, m.mapCtx.Logs())}

	case funcReduce:
		keys, err := splitJSONList(args[0])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("keys: %w", err)}
		}
		values, err := splitJSONList(args[1])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("values: %w", err)}
		}
		out, err := m.reduceCtx.ReduceOne(f.slot, keys, values)
		if err != nil {
			return callResultMsg{err: err}
		}
		return callResultMsg{result: string(out)}

	case funcRereduce:
		reductions, err := splitJSONList(args[0])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("reductions: %w", err)}
		}
		out, err := m.reduceCtx.Rereduce(f.slot, reductions)
		if err != nil {
			return callResultMsg{err: err}
		}
		return callResultMsg{result: string(out)}
	}

	return callResultMsg{err: fmt.Errorf("unknown function kind")}
}

// splitJSONList splits a JSON array into the raw bytes of its elements.
func splitJSONList(s string) ([][]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %w", err)
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

func formatMapResult(slot int, results []viewengine.MapResult, logs []string) string {
	var b strings.Builder
	mr := results[slot]
	if kvs, ok := mr.KVs(); ok {
		if len(kvs) == 0 {
			b.WriteString("(no rows)\n")
		}
		for _, kv := range kvs {
			fmt.Fprintf(&b, "%s => %s\n", kv.Key, kv.Value)
		}
	} else {
		fmt.Fprintf(&b, "function failed: %v\n", mr.Err())
	}
	if len(logs) > 0 {
		b.WriteString("\nlog:\n")
		for _, line := range logs {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.funcs) == 0 {
		return "Compiling functions..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("View Engine"))
	b.WriteString(" ")
	b.WriteString(m.mapFiles)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render("json"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f funcInfo) string {
	var params []string
	for _, p := range f.params {
		params = append(params, p.name+": "+typeStyle.Render("json"))
	}
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")"
}

func runInteractive(mapFiles, reduceFiles, kindStr string) error {
	p := tea.NewProgram(newInteractiveModel(mapFiles, reduceFiles, kindStr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
