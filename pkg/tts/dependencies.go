package tts

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grace-ai/grace-tts/pkg/tts/engines"
)

// PathResolver locates executables by name.
type PathResolver interface {
	LookPath(name string) (string, error)
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func(name string) (string, error)

// LookPath calls f(name).
func (f PathResolverFunc) LookPath(name string) (string, error) {
	return f(name)
}

// SystemPath resolves executables through $PATH.
var SystemPath PathResolver = PathResolverFunc(exec.LookPath)

// resolvedCommand is a command template whose binary was found.
type resolvedCommand struct {
	engines.Command
	Path string
}

// availableCommands filters cmds down to those whose binary resolves,
// keeping their order.
func availableCommands(paths PathResolver, cmds []engines.Command) []resolvedCommand {
	var out []resolvedCommand
	for _, c := range cmds {
		bin, err := c.Binary()
		if err != nil {
			continue
		}
		path, err := paths.LookPath(bin)
		if err != nil {
			continue
		}
		out = append(out, resolvedCommand{Command: c, Path: path})
	}
	return out
}

func commandNames(cmds []resolvedCommand) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return names
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Name         string
	Role         string
	Installed    bool
	Path         string
	Instructions string
}

// CheckDependencies reports on piper, its voice model, every fallback
// engine and every player named by cfg.
func CheckDependencies(cfg *Config, paths PathResolver, models ModelResolver) []DependencyStatus {
	var results []DependencyStatus

	piper := DependencyStatus{Name: cfg.Piper.Binary, Role: "engine"}
	if p, err := paths.LookPath(cfg.Piper.Binary); err == nil {
		piper.Installed, piper.Path = true, p
	} else {
		piper.Instructions = installInstructions("piper")
	}
	results = append(results, piper)

	model := DependencyStatus{Name: "voice model", Role: "engine"}
	if p, ok := models.ResolveModel(); ok {
		model.Path = p
		if err := engines.ValidateModel(p); err != nil {
			model.Instructions = err.Error()
		} else {
			model.Installed = true
		}
	} else {
		model.Instructions = "Download a voice from https://github.com/rhasspy/piper/releases\n    and place the .onnx file in the models directory"
	}
	results = append(results, model)

	check := func(role string, cmds []engines.Command) {
		for _, c := range cmds {
			st := DependencyStatus{Name: c.Name, Role: role}
			if bin, err := c.Binary(); err == nil {
				if p, err := paths.LookPath(bin); err == nil {
					st.Installed, st.Path = true, p
				}
			}
			if !st.Installed {
				st.Instructions = installInstructions(c.Name)
			}
			results = append(results, st)
		}
	}
	check("fallback", cfg.FallbackEngines)
	check("player", cfg.Players)

	return results
}

// PrintReport prints a formatted dependency report
func PrintReport(results []DependencyStatus) string {
	var report strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	installedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	missingStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	optionalStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	report.WriteString(titleStyle.Render("Dependencies"))
	report.WriteString("\n")

	for _, st := range results {
		switch {
		case st.Installed:
			report.WriteString(installedStyle.Render(fmt.Sprintf("  ✓ %s (%s): ", st.Name, st.Role)))
			report.WriteString(st.Path + "\n")
		case st.Role == "engine":
			report.WriteString(missingStyle.Render(fmt.Sprintf("  ✗ %s (%s): ", st.Name, st.Role)))
			report.WriteString("Not found\n")
			report.WriteString(fmt.Sprintf("    %s\n", st.Instructions))
		default:
			report.WriteString(optionalStyle.Render(fmt.Sprintf("  ○ %s (%s): ", st.Name, st.Role)))
			report.WriteString("Not installed (optional)\n")
			if st.Instructions != "" {
				report.WriteString(fmt.Sprintf("    %s\n", st.Instructions))
			}
		}
	}

	return report.String()
}

// installInstructions returns a platform hint for installing name.
func installInstructions(name string) string {
	pkg, ok := map[string]string{
		"espeak":   "espeak-ng",
		"festival": "festival",
		"aplay":    "alsa-utils",
		"play":     "sox",
		"paplay":   "pulseaudio-utils",
	}[name]

	if name == "piper" {
		return "Download from: https://github.com/rhasspy/piper/releases\n    Extract and add to PATH"
	}
	if !ok {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return "Install with: brew install " + pkg
	case "linux":
		distro := detectLinuxDistro()
		switch distro {
		case "debian", "ubuntu":
			return "Install with: sudo apt-get install " + pkg
		case "fedora", "rhel":
			return "Install with: sudo dnf install " + pkg
		case "arch":
			return "Install with: sudo pacman -S " + pkg
		}
		return "Install with your package manager: " + pkg
	default:
		return ""
	}
}

// detectLinuxDistro attempts to detect the Linux distribution
func detectLinuxDistro() string {
	// Try to read /etc/os-release
	if data, err := os.ReadFile("/etc/os-release"); err == nil {
		content := strings.ToLower(string(data))
		if strings.Contains(content, "ubuntu") {
			return "ubuntu"
		} else if strings.Contains(content, "debian") {
			return "debian"
		} else if strings.Contains(content, "fedora") {
			return "fedora"
		} else if strings.Contains(content, "arch") {
			return "arch"
		} else if strings.Contains(content, "rhel") || strings.Contains(content, "centos") {
			return "rhel"
		}
	}
	return "unknown"
}
