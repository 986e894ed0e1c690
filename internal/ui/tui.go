package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIRenderer drives a bubbletea program showing stage progress with a bar,
// spinner, and ETA.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. Fails when output is not a TTY.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexModel(tracker, cfg.ProjectDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			// Unresponsive TUI must not hang shutdown.
		}
	}
	return nil
}

type (
	progressUpdateMsg ProgressEvent
	errorMsg          ErrorEvent
	completeMsg       CompletionStats
	tickMsg           time.Time
)

// indexModel is the bubbletea model behind TUIRenderer.
type indexModel struct {
	tracker    *ProgressTracker
	projectDir string
	styles     Styles

	spinner  spinner.Model
	bar      progress.Model
	stage    Stage
	lastFile string
	errors   []ErrorEvent
	stats    *CompletionStats
	quitting bool
}

func newIndexModel(tracker *ProgressTracker, projectDir string) *indexModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return &indexModel{
		tracker:    tracker,
		projectDir: projectDir,
		styles:     DefaultStyles(),
		spinner:    sp,
		bar:        bar,
	}
}

func (m *indexModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *indexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case progressUpdateMsg:
		m.stage = msg.Stage
		if msg.CurrentFile != "" {
			m.lastFile = msg.CurrentFile
		}
		return m, nil

	case errorMsg:
		m.errors = append(m.errors, ErrorEvent(msg))
		return m, nil

	case completeMsg:
		stats := CompletionStats(msg)
		m.stats = &stats
		m.quitting = true
		return m, tea.Quit

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *indexModel) View() string {
	if m.stats != nil {
		return m.completeView()
	}

	stats := m.tracker.Stats()
	var b strings.Builder

	header := "quarry index"
	if m.projectDir != "" {
		header += " " + m.styles.Label.Render(m.projectDir)
	}
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n\n")

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.styles.Active.Render(stats.Stage.String()))
	if stats.Total > 0 {
		b.WriteString(fmt.Sprintf(" %d/%d", stats.Current, stats.Total))
	}
	b.WriteString("\n")

	b.WriteString(m.bar.ViewAs(stats.Progress))
	if stats.ETA > 0 {
		b.WriteString(m.styles.Label.Render(fmt.Sprintf("  eta %s", stats.ETA.Round(time.Second))))
	}
	b.WriteString("\n")

	if stats.CurrentFile != "" {
		b.WriteString(m.styles.Dim.Render(stats.CurrentFile))
		b.WriteString("\n")
	}

	if stats.ErrorCount > 0 || stats.WarnCount > 0 {
		b.WriteString(m.styles.Warning.Render(
			fmt.Sprintf("%d errors, %d warnings", stats.ErrorCount, stats.WarnCount)))
		b.WriteString("\n")
	}

	return m.styles.Panel.Render(b.String()) + "\n"
}

func (m *indexModel) completeView() string {
	line := fmt.Sprintf("Complete: %d files, %d chunks in %s",
		m.stats.Files, m.stats.Chunks, m.stats.Duration.Round(100*time.Millisecond))
	out := m.styles.Success.Render(line)
	if m.stats.Errors > 0 || m.stats.Warnings > 0 {
		out += m.styles.Warning.Render(
			fmt.Sprintf(" (%d errors, %d warnings)", m.stats.Errors, m.stats.Warnings))
	}
	return out + "\n"
}
