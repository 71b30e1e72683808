package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrSyncAborted = errors.New("views: sync aborted")

// SyncStep is one unit of a multi-step sync run. Run returns a one-line
// summary on success.
type SyncStep struct {
	Name string
	Run  func(context.Context) (string, error)
}

type StepResult struct {
	Name    string
	Summary string
	Err     error
}

type stepDoneMsg struct {
	index   int
	summary string
	err     error
}

// SyncModel runs steps in order behind a spinner. Aborting cancels the
// context handed to the running step.
type SyncModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	steps   []SyncStep
	current int
	results []StepResult
	spinner spinner.Model
	aborted bool
}

func NewSyncModel(ctx context.Context, steps []SyncStep) SyncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle
	ctx, cancel := context.WithCancel(ctx)
	return SyncModel{ctx: ctx, cancel: cancel, steps: steps, spinner: s}
}

func (m SyncModel) Init() tea.Cmd {
	if len(m.steps) == 0 {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, m.runStep(0))
}

func (m SyncModel) runStep(i int) tea.Cmd {
	step := m.steps[i]
	ctx := m.ctx
	return func() tea.Msg {
		summary, err := step.Run(ctx)
		return stepDoneMsg{index: i, summary: summary, err: err}
	}
}

func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if typed.String() == "ctrl+c" || typed.String() == "q" {
			m.aborted = true
			m.cancel()
			return m, tea.Quit
		}
	case stepDoneMsg:
		if typed.index != m.current {
			return m, nil
		}
		m.results = append(m.results, StepResult{Name: m.steps[typed.index].Name, Summary: typed.summary, Err: typed.err})
		m.current++
		if m.Done() {
			return m, tea.Quit
		}
		return m, m.runStep(m.current)
	case spinner.TickMsg:
		if m.Done() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}
	return m, nil
}

func (m SyncModel) Done() bool {
	return m.current >= len(m.steps)
}

func (m SyncModel) Results() []StepResult {
	return m.results
}

func (m SyncModel) View() string {
	var b strings.Builder
	for _, r := range m.results {
		b.WriteString(renderStepResult(r) + "\n")
	}
	if !m.Done() && !m.aborted {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.steps[m.current].Name))
	}
	return b.String()
}

func renderStepResult(r StepResult) string {
	if r.Err != nil {
		return errorStyle.Render(fmt.Sprintf("[FAIL] %s: %v", r.Name, r.Err))
	}
	return statusStyle.Render(fmt.Sprintf("[OK] %s", r.Name)) + " " + r.Summary
}

// RunSync runs steps behind a spinner when interactive, otherwise it prints
// one line per finished step. It returns the first step error, if any.
func RunSync(ctx context.Context, steps []SyncStep, out io.Writer, interactive bool) ([]StepResult, error) {
	var results []StepResult
	if interactive {
		sm := NewSyncModel(ctx, steps)
		defer sm.cancel()
		final, err := tea.NewProgram(sm, tea.WithOutput(out), tea.WithContext(ctx)).Run()
		if err != nil {
			return nil, err
		}
		m, ok := final.(SyncModel)
		if !ok {
			return nil, fmt.Errorf("views: unexpected model %T", final)
		}
		if m.aborted {
			return m.Results(), ErrSyncAborted
		}
		results = m.Results()
	} else {
		for _, step := range steps {
			summary, err := step.Run(ctx)
			r := StepResult{Name: step.Name, Summary: summary, Err: err}
			results = append(results, r)
			fmt.Fprintln(out, renderStepResult(r))
		}
	}
	for _, r := range results {
		if r.Err != nil {
			return results, fmt.Errorf("%s: %w", r.Name, r.Err)
		}
	}
	return results, nil
}
