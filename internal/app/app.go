// Package app is the interactive terminal front end.
package app

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/mrtstat/internal/analyser"
	"github.com/brensch/mrtstat/internal/config"
	"github.com/brensch/mrtstat/internal/inspector"
	"github.com/brensch/mrtstat/internal/orchestrator"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle  = lipgloss.NewStyle().Padding(0, 1)
	sourceHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	sourceStatusStyle = map[string]lipgloss.Style{
		orchestrator.StatusBuffered:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		orchestrator.StatusStreaming:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		orchestrator.StatusComplete:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.StatusFatal:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.StatusFetchFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

const (
	menuRun     = "Run Statistics"
	menuInspect = "Inspect Reports"
	menuCompare = "Compare Runs"
	menuExit    = "Exit"
)

// SourceProgress is the display state of one source.
type SourceProgress struct {
	Name    string
	Status  string
	Records int
	Errors  int
	ErrMsg  string
	Start   time.Time
	Elapsed time.Duration
}

type AppModel struct {
	Cfg    config.Config
	DB     *sql.DB
	Logger *slog.Logger

	State            AppState
	menuChoices      []string
	menuCursor       int
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	mu             sync.RWMutex
	sources        map[string]*SourceProgress
	sourceOrder    []string
	overallTotal   int64
	overallCurrent int64
	currentTaskTag string
	lastActivity   string
	taskStartTime  time.Time
	lastOutput     string

	lastError error
	Quitting  bool

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg
	cancel    context.CancelFunc
}

func NewAppModel(cfg config.Config, db *sql.DB, logger *slog.Logger) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &AppModel{
		Cfg:             cfg,
		DB:              db,
		Logger:          logger,
		State:           ShowMenu,
		menuChoices:     []string{menuRun, menuInspect, menuCompare, menuExit},
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		sources:         make(map[string]*SourceProgress),
		termWidth:       120,
		termHeight:      40,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case m.State == ShowMenu:
			cmds = append(cmds, m.handleMenuKey(msg))
		case m.State == ShowError || m.State == ShowResult:
			switch msg.String() {
			case "enter", "esc":
				m.State = ShowMenu
				m.lastError = nil
				m.lastOutput = ""
			case "ctrl+c", "q":
				m.Quitting = true
				m.State = Exiting
				return m, tea.Quit
			}
		case m.State == Exiting:
			return m, nil
		default:
			if msg.String() == "ctrl+c" || msg.String() == "q" {
				m.Logger.Info("Quit requested during task")
				if m.cancel != nil {
					m.cancel()
				}
				m.Quitting = true
				m.State = Exiting
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case ProgressMsg:
		m.mu.Lock()
		m.currentTaskTag = msg.Tag
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		m.mu.Unlock()
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.overallProgress.SetPercent(percent), m.waitForActivity())
	case SourceProgressMsg:
		m.mu.Lock()
		sp, ok := m.sources[msg.URL]
		if !ok {
			sp = &SourceProgress{Name: path.Base(msg.URL), Start: time.Now()}
			m.sources[msg.URL] = sp
			m.sourceOrder = append(m.sourceOrder, msg.URL)
		}
		sp.Status = msg.Status
		sp.ErrMsg = msg.ErrMsg
		sp.Records, sp.Errors = msg.Records, msg.Errors
		if msg.Elapsed > 0 {
			sp.Elapsed = msg.Elapsed
		}
		m.mu.Unlock()
		cmds = append(cmds, m.waitForActivity())
	case TaskFinishedMsg:
		m.Logger.Info("Task finished", "task", msg.Tag, "duration", msg.EndTime.Sub(msg.StartTime).Round(time.Millisecond), "error", msg.Err)
		m.resetTask()
		m.uiMsgChan = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		switch {
		case msg.Err != nil:
			m.lastError = fmt.Errorf("Task '%s' failed: %w", msg.Tag, msg.Err)
			m.State = ShowError
		case msg.Output != "":
			m.lastOutput = msg.Output
			m.State = ShowResult
		default:
			m.State = ShowMenu
		}
	case GeneralErrorMsg:
		m.Logger.Error("General error", "error", msg.Err)
		m.lastError = msg.Err
		m.State = ShowError
		m.uiMsgChan = nil
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case progress.FrameMsg:
		if m.State.busy() {
			progModel, frameCmd := m.overallProgress.Update(msg)
			if newModel, ok := progModel.(progress.Model); ok {
				m.overallProgress = newModel
				cmds = append(cmds, frameCmd)
			}
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *AppModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- MRT Attribute Statistics ---"))
	b.WriteString("\n\n")

	switch m.State {
	case ShowMenu:
		b.WriteString(m.viewMenu())
	case RunningStats, InspectingReports, ComparingRuns:
		b.WriteString(m.viewProgress())
	case ShowResult:
		b.WriteString(m.lastOutput)
	case ShowError:
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	switch {
	case m.State == ShowMenu:
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select. 'q' or Ctrl+C to quit."))
	case m.State == ShowError || m.State == ShowResult:
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu. 'q' or Ctrl+C to quit."))
	case m.State.busy():
		b.WriteString(infoStyle.Render("Task running... 'q' or Ctrl+C to cancel and quit."))
	}
	return b.String()
}

func (m *AppModel) viewMenu() string {
	var b strings.Builder
	b.WriteString("Select an action:\n")
	for i, choice := range m.menuChoices {
		line := "  " + choice
		if m.menuCursor == i {
			line = "> " + selectedStyle.Render(choice)
		}
		b.WriteString(menuStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	fmt.Fprintf(&b, "%s Running Task: %s %s\n", m.spinner.View(), m.currentTaskTag, m.lastActivity)
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	fmt.Fprintf(&b, " (%d/%d)\n\n", m.overallCurrent, m.overallTotal)

	maxLines := max(m.termHeight-10, 1)
	startIdx := max(len(m.sourceOrder)-maxLines, 0)
	if len(m.sourceOrder) == 0 {
		return b.String()
	}

	b.WriteString(sourceHeaderStyle.Render(fmt.Sprintf("%-40s | %-15s | %-10s | %-6s | %s", "Source", "Status", "Records", "Errors", "Elapsed")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", m.termWidth))
	b.WriteString("\n")
	for _, url := range m.sourceOrder[startIdx:] {
		sp := m.sources[url]
		style, ok := sourceStatusStyle[sp.Status]
		if !ok {
			style = infoStyle
		}
		elapsed := ""
		if sp.Elapsed > 0 {
			elapsed = sp.Elapsed.Round(time.Millisecond).String()
		} else if !sp.Start.IsZero() {
			elapsed = time.Since(sp.Start).Round(time.Second).String() + "..."
		}
		name := sp.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		b.WriteString(fmt.Sprintf("%-40s | %-15s | %-10d | %-6d | %s", name, style.Render(sp.Status), sp.Records, sp.Errors, elapsed))
		if sp.ErrMsg != "" {
			errMsg := "  -> " + sp.ErrMsg
			if m.termWidth > 1 && len(errMsg) >= m.termWidth {
				errMsg = errMsg[:m.termWidth-1]
			}
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(errMsg))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("An error occurred:"))
	b.WriteString("\n\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	} else {
		b.WriteString("Unknown error.")
	}
	b.WriteString("\n")
	return b.String()
}

func (m *AppModel) resetTask() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = make(map[string]*SourceProgress)
	m.sourceOrder = nil
	m.overallCurrent = 0
	m.overallTotal = 0
	m.currentTaskTag = ""
	m.lastActivity = ""
}

func (m *AppModel) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.menuChoices)-1 {
			m.menuCursor++
		}
	case "enter":
		m.lastError = nil
		m.resetTask()
		m.taskStartTime = time.Now()
		choice := m.menuChoices[m.menuCursor]
		m.Logger.Debug("Menu selection", "choice", choice)
		if choice == menuExit {
			m.Quitting = true
			m.State = Exiting
			return tea.Quit
		}

		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.uiMsgChan = make(chan tea.Msg)
		m.currentTaskTag = choice
		var taskCmd tea.Cmd
		switch choice {
		case menuRun:
			m.State = RunningStats
			taskCmd = m.startRunTask(ctx, m.uiMsgChan)
		case menuInspect:
			m.State = InspectingReports
			taskCmd = m.startInspectTask(ctx, m.uiMsgChan)
		case menuCompare:
			m.State = ComparingRuns
			taskCmd = m.startCompareTask(ctx, m.uiMsgChan)
		}
		return tea.Batch(taskCmd, m.waitForActivity())
	case "ctrl+c", "q":
		m.Quitting = true
		m.State = Exiting
		return tea.Quit
	}
	return nil
}

// waitForActivity reads the next message from the running task. Each
// message from the task schedules the following read.
func (m *AppModel) waitForActivity() tea.Cmd {
	uiMsgChan := m.uiMsgChan
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// progressMsgs converts a pipeline event into display messages.
func progressMsgs(p orchestrator.Progress) []tea.Msg {
	sp := SourceProgressMsg{
		URL:     p.URL,
		Status:  p.Status,
		Records: p.Records,
		Errors:  p.Errors,
		Elapsed: p.Elapsed,
	}
	if p.Err != nil {
		sp.ErrMsg = p.Err.Error()
	}
	return []tea.Msg{
		NewProgress(string(p.Phase), p.Completed, p.Total, path.Base(p.URL)),
		sp,
	}
}

func (m *AppModel) startRunTask(ctx context.Context, uiMsgChan chan tea.Msg) tea.Cmd {
	cfg, db, logger, start := m.Cfg, m.DB, m.Logger, m.taskStartTime
	return func() tea.Msg {
		events := make(chan orchestrator.Progress)
		translated := make(chan struct{})
		go func() {
			defer close(translated)
			for p := range events {
				for _, msg := range progressMsgs(p) {
					uiMsgChan <- msg
				}
			}
		}()
		go func() {
			var out bytes.Buffer
			_, err := orchestrator.Run(ctx, cfg, db, logger, orchestrator.Options{Stdout: &out, Progress: events})
			close(events)
			<-translated
			uiMsgChan <- NewTaskFinished(menuRun, start, err, out.String())
		}()
		return nil
	}
}

func (m *AppModel) startInspectTask(ctx context.Context, uiMsgChan chan tea.Msg) tea.Cmd {
	cfg, db, logger, start := m.Cfg, m.DB, m.Logger, m.taskStartTime
	return func() tea.Msg {
		go func() {
			uiMsgChan <- NewProgress(menuInspect, 0, 1, "Reading reports...")
			var out bytes.Buffer
			err := inspector.InspectReports(ctx, db, cfg.ReportDir, &out, logger)
			uiMsgChan <- NewTaskFinished(menuInspect, start, err, out.String())
		}()
		return nil
	}
}

func (m *AppModel) startCompareTask(ctx context.Context, uiMsgChan chan tea.Msg) tea.Cmd {
	db, logger, start := m.DB, m.Logger, m.taskStartTime
	return func() tea.Msg {
		go func() {
			uiMsgChan <- NewProgress(menuCompare, 0, 1, "Comparing runs...")
			var out bytes.Buffer
			err := analyser.RunAnalysis(ctx, db, &out, logger)
			uiMsgChan <- NewTaskFinished(menuCompare, start, err, out.String())
		}()
		return nil
	}
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result, line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+len(word)+1 > maxWidth {
			result.WriteString(line.String())
			result.WriteString("\n")
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	result.WriteString(line.String())
	return result.String()
}
