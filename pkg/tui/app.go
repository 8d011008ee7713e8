// Package tui is the interactive review screen. Its screens follow the
// review workflow: the findings list, the review card of one finding, and
// the justification input.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/japaniel/termaudit/pkg/glossary"
	"github.com/japaniel/termaudit/pkg/review"
	"github.com/japaniel/termaudit/pkg/scan"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	termStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	expectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// ResultMsg carries one scan result from the orchestrator into the UI loop.
type ResultMsg struct {
	Result scan.Result
}

type resultsClosedMsg struct{}

// Option customizes the model.
type Option func(*Model)

// WithRescan sets the action bound to the "r" key.
func WithRescan(fn func()) Option {
	return func(m *Model) { m.rescan = fn }
}

// WithGlossary shows the glossary entries of the reviewed term on the card.
// The index may be refreshed with Replace while the program runs.
func WithGlossary(ix *glossary.Index) Option {
	return func(m *Model) { m.glossary = ix }
}

// Model drives a review.Workflow from key presses.
type Model struct {
	wf      *review.Workflow
	results <-chan scan.Result
	rescan  func()

	glossary *glossary.Index

	input    textinput.Model
	cursor   int
	scanning bool
	status   string
	err      error
	width    int
	height   int
}

// New creates the model. results may be nil when findings are pushed with
// ResultMsg by the caller.
func New(wf *review.Workflow, results <-chan scan.Result, opts ...Option) *Model {
	ti := textinput.New()
	ti.Placeholder = "Justificativa (mínimo 10 caracteres)"
	ti.CharLimit = 500

	m := &Model{wf: wf, results: results, input: ti}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// waitForResult blocks on the results channel; the returned message
// re-arms it.
func (m *Model) waitForResult() tea.Cmd {
	if m.results == nil {
		return nil
	}
	ch := m.results
	return func() tea.Msg {
		res, ok := <-ch
		if !ok {
			return resultsClosedMsg{}
		}
		return ResultMsg{Result: res}
	}
}

// Init is called once when the program starts.
func (m *Model) Init() tea.Cmd {
	return m.waitForResult()
}

// Update is called when a message is received.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(20, msg.Width-6)
		return m, nil

	case ResultMsg:
		m.applyResult(msg.Result)
		return m, m.waitForResult()

	case resultsClosedMsg:
		m.results = nil
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.wf.State() {
		case review.Listing:
			return m.updateListing(msg)
		case review.Reviewing:
			return m.updateReviewing(msg)
		case review.Justifying:
			return m.updateJustifying(msg)
		}
	}
	return m, nil
}

func (m *Model) applyResult(res scan.Result) {
	m.scanning = false
	if res.Err != nil {
		var terr *scan.TransportError
		switch {
		case errors.Is(res.Err, scan.ErrScanTimeout):
			m.err = fmt.Errorf("a análise excedeu o tempo limite")
		case errors.As(res.Err, &terr):
			m.err = fmt.Errorf("falha ao contactar o verificador: %v", terr.Err)
		default:
			m.err = res.Err
		}
		return
	}
	m.err = nil
	m.wf.SetInconsistencies(res.Inconsistencies)
	m.clampCursor()
	m.status = fmt.Sprintf("%d inconsistência(s) encontrada(s)", len(res.Inconsistencies))
}

func (m *Model) clampCursor() {
	n := len(m.wf.Inconsistencies())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) updateListing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.wf.Inconsistencies())-1 {
			m.cursor++
		}
	case "r":
		if m.rescan != nil {
			m.scanning = true
			m.rescan()
		}
	case "enter":
		if err := m.wf.Select(m.cursor); err != nil {
			m.err = err
		} else {
			m.err = nil
		}
	}
	return m, nil
}

func (m *Model) updateReviewing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch msg.String() {
	case "g":
		err = m.wf.ChooseGlobalFix()
		if err == nil {
			m.status = "Correção global enviada ao editor"
		}
	case "l":
		err = m.wf.ChooseLocalException()
		if err == nil {
			m.input.Reset()
			return m, m.input.Focus()
		}
	case "i":
		err = m.wf.Ignore()
		if err == nil {
			m.status = "Ignorado neste ciclo"
		}
	case "esc":
		err = m.wf.Cancel()
	}
	m.err = err
	m.clampCursor()
	return m, nil
}

func (m *Model) updateJustifying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.err = m.wf.Cancel()
		return m, nil
	case tea.KeyEnter:
		if err := m.wf.Confirm(m.input.Value()); err != nil {
			var ve *review.ValidationError
			if errors.As(err, &ve) {
				m.err = fmt.Errorf("a justificativa precisa de pelo menos %d caracteres (tem %d)", ve.Min, ve.Got)
			} else {
				m.err = err
			}
			return m, nil
		}
		m.input.Blur()
		m.input.Reset()
		m.err = nil
		m.status = "Exceção local registrada nas notas culturais"
		m.clampCursor()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the current screen.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Auditoria de Terminologia"))
	b.WriteString("\n\n")

	switch m.wf.State() {
	case review.Listing:
		m.viewList(&b)
	case review.Reviewing:
		m.viewCard(&b)
		b.WriteString(mutedStyle.Render("g correção global · l exceção local · i ignorar · esc voltar"))
	case review.Justifying:
		m.viewCard(&b)
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("enter confirmar · esc voltar"))
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(mutedStyle.Render(m.status))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewList(b *strings.Builder) {
	items := m.wf.Inconsistencies()
	if m.scanning {
		b.WriteString(mutedStyle.Render("Analisando…"))
		b.WriteString("\n")
	}
	if len(items) == 0 {
		b.WriteString("Nenhuma inconsistência. A terminologia está consistente.\n\n")
		b.WriteString(mutedStyle.Render("r analisar · q sair"))
		return
	}
	for i, inc := range items {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		fmt.Fprintf(b, "%s%s  %s → %s\n", prefix, inc.Location, termStyle.Render(inc.SourceTerm), expectedStyle.Render(inc.ExpectedTarget))
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("↑/↓ mover · enter revisar · r analisar · q sair"))
}

func (m *Model) viewCard(b *strings.Builder) {
	inc, ok := m.wf.Active()
	if !ok {
		return
	}
	body := fmt.Sprintf("%s\n\nTermo: %s\nEsperado: %s\n\n%s",
		inc.Location,
		termStyle.Render(inc.SourceTerm),
		expectedStyle.Render(inc.ExpectedTarget),
		mutedStyle.Render(inc.Context))
	if notes := m.glossaryNotes(inc.SourceTerm, inc.ExpectedTarget); notes != "" {
		body += "\n\n" + notes
	}
	b.WriteString(cardStyle.Render(body))
	b.WriteString("\n\n")
}

// glossaryNotes describes the glossary entries for source: the definition and
// original word of the expected rendering, and any other approved renderings.
func (m *Model) glossaryNotes(source, expected string) string {
	if m.glossary == nil {
		return ""
	}
	var lines, others []string
	for _, t := range m.glossary.Lookup(source) {
		if t.Target() != expected {
			others = append(others, t.Target())
			continue
		}
		if t.OriginalWord != "" {
			lines = append(lines, "Original: "+t.OriginalWord)
		}
		if t.Definition != "" {
			lines = append(lines, "Definição: "+t.Definition)
		}
	}
	if len(others) > 0 {
		lines = append(lines, "Alternativas: "+strings.Join(others, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return mutedStyle.Render(strings.Join(lines, "\n"))
}
