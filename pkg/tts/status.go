package tts

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// ModelNotFound is reported as the model path when none resolves.
const ModelNotFound = "not found"

// Status is a point-in-time snapshot of the speaker.
type Status struct {
	EngineRunning      bool      `json:"engine_running"`
	EngineState        string    `json:"engine_state"`
	EnginePid          int       `json:"engine_pid,omitempty"`
	EngineStarted      time.Time `json:"engine_started,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	Mute               bool      `json:"mute"`
	ModelFound         bool      `json:"model_found"`
	ModelPath          string    `json:"model_path"`
	ActiveProcesses    int       `json:"active_processes"`
	TempFiles          int       `json:"temp_files"`
	AvailableFallbacks []string  `json:"available_fallbacks"`
	AvailablePlayers   []string  `json:"available_players"`
}

// Status derives a snapshot on demand. It never starts the engine.
func (s *Speaker) Status() Status {
	info := s.supervisor.Info()
	model, found := s.models.ResolveModel()
	if !found {
		model = ModelNotFound
	}

	st := Status{
		EngineRunning:      info.State == EngineRunning && info.Alive,
		EngineState:        info.State.String(),
		EnginePid:          info.Pid,
		EngineStarted:      info.Started,
		Mute:               s.Muted(),
		ModelFound:         found,
		ModelPath:          model,
		ActiveProcesses:    s.tracker.ProcessCount(),
		TempFiles:          s.tracker.FileCount(),
		AvailableFallbacks: s.fallbacks.Available(),
		AvailablePlayers:   s.players.Available(),
	}
	if err := s.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Render formats the snapshot for a terminal.
func (st Status) Render() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)
	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Width(20)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	row := func(key, value string) {
		b.WriteString(keyStyle.Render(key))
		b.WriteString(value)
		b.WriteString("\n")
	}
	list := func(items []string) string {
		if len(items) == 0 {
			return warnStyle.Render("none")
		}
		return strings.Join(items, ", ")
	}

	b.WriteString(titleStyle.Render("grace-tts status"))
	b.WriteString("\n")

	engine := badStyle.Render(st.EngineState)
	if st.EngineRunning {
		engine = okStyle.Render(fmt.Sprintf("running (pid %d, started %s)",
			st.EnginePid, humanize.Time(st.EngineStarted)))
	}
	row("Engine", engine)

	if st.ModelFound {
		row("Voice model", okStyle.Render(st.ModelPath))
	} else {
		row("Voice model", badStyle.Render(st.ModelPath))
	}

	if st.Mute {
		row("Mute", warnStyle.Render("on"))
	} else {
		row("Mute", "off")
	}

	row("Players", list(st.AvailablePlayers))
	row("Fallback engines", list(st.AvailableFallbacks))
	row("Tracked processes", humanize.Comma(int64(st.ActiveProcesses)))
	row("Temp files", humanize.Comma(int64(st.TempFiles)))

	if st.LastError != "" {
		row("Last error", badStyle.Render(st.LastError))
	}

	return b.String()
}
