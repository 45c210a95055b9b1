package scaffold

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
)

// ErrCancelled is returned when the user aborts the prompt with ctrl+c.
var ErrCancelled = errors.New("scaffolding cancelled")

// Prompter asks for the project folder and template on a terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer
	Fs  afero.Fs
	// Cwd is the directory relative folders are created in.
	Cwd string
}

// Ask prompts for whichever of dir and template is empty. The folder is
// asked again while it names an existing path and the template while it
// names no template. Empty answers take the defaults.
func (p *Prompter) Ask(dir, template string) (string, string, error) {
	m := newPromptModel(p, dir, template)
	if m.step == answered {
		return dir, template, nil
	}

	var prog *tea.Program
	in := p.In
	if f, ok := in.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		// Piped input ends; a terminal does not.
		in = &eofNotifier{r: in, eof: func() { go prog.Send(inputClosedMsg{}) }}
	}
	prog = tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(p.Out))

	final, err := prog.Run()
	if err != nil {
		return "", "", fmt.Errorf("prompt: %w", err)
	}
	fm := final.(promptModel)
	if fm.err != nil {
		return "", "", fm.err
	}
	return fm.dir, fm.template, nil
}

type inputClosedMsg struct{}

// eofNotifier calls eof once when the underlying reader is exhausted.
type eofNotifier struct {
	r    io.Reader
	eof  func()
	once sync.Once
}

func (e *eofNotifier) Read(b []byte) (int, error) {
	n, err := e.r.Read(b)
	if errors.Is(err, io.EOF) {
		e.once.Do(e.eof)
	}
	return n, err
}

type promptStep int

const (
	askDir promptStep = iota
	askTemplate
	answered
)

type promptStyles struct {
	answer lipgloss.Style
	notice lipgloss.Style
}

func defaultPromptStyles() promptStyles {
	return promptStyles{
		answer: lipgloss.NewStyle().Foreground(lipgloss.Color("#3fb950")),
		notice: lipgloss.NewStyle().Foreground(lipgloss.Color("#d29922")),
	}
}

type promptModel struct {
	p       *Prompter
	step    promptStep
	input   textinput.Model
	styles  promptStyles
	history []string

	dir      string
	template string
	err      error
}

func newPromptModel(p *Prompter, dir, template string) promptModel {
	ti := textinput.New()
	ti.Width = 40
	m := promptModel{p: p, input: ti, styles: defaultPromptStyles(), dir: dir, template: template}
	m.advance()
	return m
}

// advance moves to the first unanswered question.
func (m *promptModel) advance() {
	switch {
	case m.dir == "":
		m.step = askDir
		m.input.Prompt = "Project folder: "
		m.input.Placeholder = DefaultProjectName
		m.input.ShowSuggestions = false
	case m.template == "":
		m.step = askTemplate
		m.input.Prompt = "Project template: "
		m.input.Placeholder = DefaultTemplate + " (tab completes: " + strings.Join(Templates(), ", ") + ")"
		m.input.SetSuggestions(Templates())
		m.input.ShowSuggestions = true
	default:
		m.step = answered
		m.input.Blur()
		return
	}
	m.input.Reset()
	m.input.Focus()
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case inputClosedMsg:
		m.err = io.ErrUnexpectedEOF
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.err = ErrCancelled
			return m, tea.Quit
		case "enter", "ctrl+j":
			m.submit()
			if m.err != nil || m.step == answered {
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *promptModel) submit() {
	answer := strings.TrimSpace(m.input.Value())

	switch m.step {
	case askDir:
		dir := FormatTargetDir(answer)
		if dir == "" {
			dir = DefaultProjectName
		}
		exists, err := afero.Exists(m.p.Fs, filepath.Join(m.p.Cwd, dir))
		if err != nil {
			m.err = err
			return
		}
		if exists {
			m.reject(answer, dir+" is not empty, please choose another project name")
			return
		}
		m.accept(dir)
		m.dir = dir

	case askTemplate:
		if answer == "" {
			answer = DefaultTemplate
		}
		if !slices.Contains(Templates(), answer) {
			m.reject(answer, fmt.Sprintf("unknown template %q", answer))
			return
		}
		m.accept(answer)
		m.template = answer
	}
	m.advance()
}

func (m *promptModel) accept(value string) {
	m.history = append(m.history, m.input.Prompt+m.styles.answer.Render(value))
}

func (m *promptModel) reject(answer, notice string) {
	m.history = append(m.history, m.input.Prompt+answer, m.styles.notice.Render(notice))
	m.input.Reset()
}

func (m promptModel) View() string {
	var b strings.Builder
	for _, line := range m.history {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if m.step != answered && m.err == nil {
		b.WriteString(m.input.View())
		b.WriteByte('\n')
	}
	return b.String()
}
