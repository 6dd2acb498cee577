// Package platform selects, once, the per-OS commands and paths the install
// pipeline needs: interpreter candidates, prerequisite installers, build
// plan and binary locations.
package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// PrereqMode says how the prerequisite command list is consumed.
type PrereqMode int

const (
	// FirstSuccess stops at the first command that exits 0.
	FirstSuccess PrereqMode = iota
	// RunAll runs every command regardless of outcome.
	RunAll
)

// Command is one shell command line run in Dir ("" means the home directory).
// A non-empty Label starts a new progress task before the command runs.
type Command struct {
	Label    string
	Line     string
	Dir      string
	Required bool
}

// Strategy holds every platform-dependent decision.
type Strategy struct {
	OS   string
	Home string

	NeedsPythonBootstrap bool
	// BootstrapInterpreter exists once the runtime archive was extracted.
	BootstrapInterpreter string
	PythonCandidates     []string

	Prerequisites []string
	PrereqMode    PrereqMode

	VenvDir    string
	VenvPip    string
	VenvPython string

	Build []Command

	MainBinary  string
	QuantizeDir string
}

// Current returns the strategy for the running OS.
func Current(home string) Strategy { return For(runtime.GOOS, home) }

// For returns the strategy for goos rooted at home.
func For(goos, home string) Strategy {
	s := Strategy{OS: goos, Home: home, VenvDir: filepath.Join(home, "venv")}
	switch goos {
	case "windows":
		py := filepath.Join(home, "python", "python.exe")
		s.NeedsPythonBootstrap = true
		s.BootstrapInterpreter = py
		s.PythonCandidates = []string{py}
		s.Prerequisites = []string{s.Quote(py) + " -m pip install --user virtualenv"}
		s.PrereqMode = RunAll
		s.VenvPip = filepath.Join(s.VenvDir, "Scripts", "pip.exe")
		s.VenvPython = filepath.Join(s.VenvDir, "Scripts", "python.exe")
		buildDir := filepath.Join(home, "build")
		cmake := s.Quote(filepath.Join(s.VenvDir, "Scripts", "cmake"))
		cache := filepath.Join(buildDir, "CMakeCache.txt")
		s.Build = []Command{
			{Label: "Installing cmake", Line: s.Quote(s.VenvPip) + " install cmake", Required: true},
			{Line: "if not exist build mkdir build"},
			{Line: fmt.Sprintf("if exist %s del /f /q %s", s.Quote(cache), s.Quote(cache))},
			{Label: "Building", Line: cmake + " ..", Dir: buildDir, Required: true},
			{Line: cmake + " --build . --config Release", Dir: buildDir, Required: true},
		}
		s.MainBinary = filepath.Join(buildDir, "Release", "llama")
		s.QuantizeDir = filepath.Join(buildDir, "Release")
	default:
		s.PythonCandidates = []string{"python3", "python"}
		if goos == "linux" {
			s.Prerequisites = linuxPrerequisites(readDistroIDs())
			s.PrereqMode = FirstSuccess
		} else {
			s.Prerequisites = []string{
				"pip3 install --user virtualenv",
				"pip install --user virtualenv",
			}
			s.PrereqMode = RunAll
		}
		s.VenvPip = filepath.Join(s.VenvDir, "bin", "pip")
		s.VenvPython = filepath.Join(s.VenvDir, "bin", "python")
		s.Build = []Command{{Label: "Building", Line: "make", Required: true}}
		s.MainBinary = filepath.Join(home, "main")
		s.QuantizeDir = home
	}
	return s
}

const (
	aptPrereq = "apt-get install build-essential python3-venv -y"
	dnfPrereq = "dnf install make automake gcc gcc-c++ kernel-devel python3-virtualenv -y"
)

// linuxPrerequisites puts dnf first on Fedora-like hosts; apt-get otherwise.
func linuxPrerequisites(ids []string) []string {
	for _, id := range ids {
		switch id {
		case "fedora", "rhel", "centos":
			return []string{dnfPrereq, aptPrereq}
		}
	}
	return []string{aptPrereq, dnfPrereq}
}

// VenvCommand creates the environment with interpreter.
func (s Strategy) VenvCommand(interpreter string) string {
	return fmt.Sprintf("%s -m venv %s", s.Quote(interpreter), s.Quote(s.VenvDir))
}

// QuantizeCommand quantizes one shard from f16 into q4 (type 2 is q4_0).
func (s Strategy) QuantizeCommand(f16, q4 string) string {
	return fmt.Sprintf("./quantize %s %s 2", s.Quote(f16), s.Quote(q4))
}

// ConvertCommand converts the raw shards of model into ggml f16.
func (s Strategy) ConvertCommand(model string) string {
	return fmt.Sprintf("%s convert-pth-to-ggml.py models/%s/ 1", s.Quote(s.VenvPython), model)
}

// Quote makes arg a single shell word for this platform's shell.
func (s Strategy) Quote(arg string) string {
	if s.OS == "windows" {
		if arg != "" && !strings.ContainsAny(arg, " \t\"&|<>^%") {
			return arg
		}
		return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
	}
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$`!*?[](){};&|<>~#") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
