package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/knowbase/internal/models"
	"github.com/raphaelgruber/knowbase/internal/service"
)

const pollInterval = time.Second

// Theme holds the color scheme for the watch display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Warn    lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status.
type tickMsg time.Time

// jobUpdateMsg carries the polled job record.
type jobUpdateMsg struct {
	job *models.IngestionJob
	err error
}

// controlMsg reports the outcome of a pause/resume/cancel keypress.
type controlMsg struct {
	action string
	err    error
}

// watchModel is the bubbletea model for live job progress. The pipeline
// runs in this process, so the p/r/c keys drive the controller directly.
type watchModel struct {
	ctrl     *service.Controller
	kbID     string
	job      *models.IngestionJob
	progress progress.Model
	theme    Theme
	notice   string
	done     bool
	quitting bool
	err      error
}

func newWatchModel(ctrl *service.Controller, kbID string) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return watchModel{
		ctrl:     ctrl,
		kbID:     kbID,
		progress: prog,
		theme:    defaultTheme,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchJob(),
		m.progress.Init(),
	)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The run lives in this process: leaving the watch cancels it.
			m.quitting = true
			return m, tea.Sequence(m.control("cancel"), tea.Quit)
		case "p":
			return m, m.control("pause")
		case "r":
			return m, m.control("resume")
		case "c":
			return m, m.control("cancel")
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job
		if m.job.Status.Terminal() {
			m.done = true
			if m.job.Status == models.JobFailed && m.job.Error != nil {
				m.err = fmt.Errorf("%s", *m.job.Error)
			}
			return m, tea.Quit
		}
		return m, tickCmd()

	case controlMsg:
		if msg.err != nil {
			m.notice = m.theme.warnStyle().Render(fmt.Sprintf("%s: %v", msg.action, msg.err))
		} else {
			m.notice = ""
		}
		return m, m.fetchJob()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}
	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(float64(m.job.Progress) / 100)
	line := fmt.Sprintf("%s %s %d%%  %s (%d%%)\n", status, bar, m.job.Progress, m.job.Phase, m.job.PhaseProgress)

	phases := ""
	for _, d := range m.job.PhaseDetails {
		mark := " "
		switch d.Status {
		case models.JobCompleted:
			mark = m.theme.completedStyle().Render("✓")
		case models.JobRunning:
			mark = m.theme.statusStyle().Render("›")
		case models.JobFailed:
			mark = m.theme.errorStyle().Render("✗")
		case models.JobPaused:
			mark = m.theme.warnStyle().Render("‖")
		}
		phases += fmt.Sprintf("  %s %-10s %3d%%\n", mark, d.Name, d.Progress)
	}

	met := m.job.Metrics
	metrics := fmt.Sprintf("  docs %d/%d  chunks %d  embedded %d  failed %d\n",
		met.DocumentsCleaned, met.DocumentsCrawled, met.ChunksQueued, met.ChunksEmbedded, met.ChunksFailed)

	out := line + phases + metrics
	if m.job.Message != "" {
		out += m.theme.hintStyle().Render("  "+m.job.Message) + "\n"
	}
	if m.notice != "" {
		out += m.notice + "\n"
	}
	out += m.theme.hintStyle().Render("p pause · r resume · c cancel · q quit (cancels the run)") + "\n"
	return out
}

func (m watchModel) finalView() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Ingestion failed: %s\n", m.err))
	}
	if m.quitting {
		return m.theme.hintStyle().Render("\nIngestion cancelled.\n")
	}

	if m.job != nil {
		met := m.job.Metrics
		output := m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		output += fmt.Sprintf("  Documents loaded:  %d\n", met.DocumentsCrawled)
		output += fmt.Sprintf("  Chunks created:    %d\n", met.ChunksCreated)
		output += fmt.Sprintf("  Chunks embedded:   %d\n", met.ChunksEmbedded)
		if met.ChunksFailed > 0 {
			output += m.theme.warnStyle().Render(fmt.Sprintf("  Chunks failed:     %d\n", met.ChunksFailed))
		}
		return output
	}
	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchJob polls the controller. Runs as a command to keep Update
// non-blocking.
func (m watchModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		j, err := m.ctrl.GetStatus(ctx, m.kbID)
		return jobUpdateMsg{job: j, err: err}
	}
}

func (m watchModel) control(action string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		switch action {
		case "pause":
			_, err = m.ctrl.PauseIngestion(ctx, m.kbID)
		case "resume":
			_, err = m.ctrl.ResumeIngestion(ctx, m.kbID)
		case "cancel":
			_, err = m.ctrl.CancelIngestion(ctx, m.kbID)
		}
		return controlMsg{action: action, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runWatch runs the interactive watch UI until the job reaches a terminal
// state or the user quits.
func runWatch(ctrl *service.Controller, kbID string) error {
	p := tea.NewProgram(newWatchModel(ctrl, kbID))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
