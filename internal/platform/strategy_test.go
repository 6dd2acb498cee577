package platform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_Windows(t *testing.T) {
	home := filepath.Join("C:", "llama")
	s := For("windows", home)
	assert.True(t, s.NeedsPythonBootstrap)
	assert.Equal(t, []string{filepath.Join(home, "python", "python.exe")}, s.PythonCandidates)
	assert.Equal(t, RunAll, s.PrereqMode)
	assert.Equal(t, filepath.Join(home, "venv", "Scripts", "pip.exe"), s.VenvPip)
	assert.Equal(t, filepath.Join(home, "build", "Release", "llama"), s.MainBinary)
	assert.Equal(t, filepath.Join(home, "build", "Release"), s.QuantizeDir)

	require.Len(t, s.Build, 5)
	assert.Contains(t, s.Build[0].Line, "install cmake")
	assert.True(t, s.Build[0].Required)
	assert.False(t, s.Build[1].Required)
	assert.Contains(t, s.Build[2].Line, "CMakeCache.txt")
	assert.Equal(t, filepath.Join(home, "build"), s.Build[3].Dir)
	assert.Equal(t, "Building", s.Build[3].Label)
	assert.Contains(t, s.Build[4].Line, "--build . --config Release")
}

func TestFor_Darwin(t *testing.T) {
	s := For("darwin", "/Users/me/llama.cpp")
	assert.False(t, s.NeedsPythonBootstrap)
	assert.Equal(t, []string{"python3", "python"}, s.PythonCandidates)
	assert.Equal(t, RunAll, s.PrereqMode)
	assert.Len(t, s.Prerequisites, 2)
	assert.Equal(t, "/Users/me/llama.cpp/venv/bin/pip", s.VenvPip)
	assert.Equal(t, []Command{{Label: "Building", Line: "make", Required: true}}, s.Build)
	assert.Equal(t, "/Users/me/llama.cpp/main", s.MainBinary)
	assert.Equal(t, "/Users/me/llama.cpp", s.QuantizeDir)
}

func TestFor_LinuxUsesFallbackChain(t *testing.T) {
	old := osReleasePath
	osReleasePath = filepath.Join(t.TempDir(), "missing")
	defer func() { osReleasePath = old }()

	s := For("linux", "/home/me/llama.cpp")
	assert.Equal(t, FirstSuccess, s.PrereqMode)
	assert.Equal(t, []string{aptPrereq, dnfPrereq}, s.Prerequisites)
}

func TestLinuxPrerequisites_FedoraFirst(t *testing.T) {
	ids := parseDistroIDs("NAME=\"Fedora Linux\"\nID=fedora\n# comment\nVERSION_ID=39\n")
	assert.Equal(t, []string{"fedora"}, ids)
	assert.Equal(t, []string{dnfPrereq, aptPrereq}, linuxPrerequisites(ids))

	ids = parseDistroIDs("ID=ubuntu\nID_LIKE=\"debian\"\n")
	assert.Equal(t, []string{"ubuntu", "debian"}, ids)
	assert.Equal(t, []string{aptPrereq, dnfPrereq}, linuxPrerequisites(ids))

	ids = parseDistroIDs("ID=rocky\nID_LIKE=\"rhel centos fedora\"\n")
	assert.Equal(t, dnfPrereq, linuxPrerequisites(ids)[0])
}

func TestQuote(t *testing.T) {
	unix := For("darwin", "/h")
	assert.Equal(t, "plain", unix.Quote("plain"))
	assert.Equal(t, "'two words'", unix.Quote("two words"))
	assert.Equal(t, `'it'\''s $HOME'`, unix.Quote("it's $HOME"))
	assert.Equal(t, "''", unix.Quote(""))

	win := For("windows", `C:\h`)
	assert.Equal(t, `C:\h\x`, win.Quote(`C:\h\x`))
	assert.Equal(t, `"a \"b\" c"`, win.Quote(`a "b" c`))
}

func TestCommands(t *testing.T) {
	s := For("darwin", "/h")
	assert.Equal(t, "python3 -m venv /h/venv", s.VenvCommand("python3"))
	assert.Equal(t, "./quantize /h/models/7B/ggml-model-f16.bin /h/models/7B/ggml-model-q4_0.bin 2",
		s.QuantizeCommand("/h/models/7B/ggml-model-f16.bin", "/h/models/7B/ggml-model-q4_0.bin"))
	assert.Equal(t, "/h/venv/bin/python convert-pth-to-ggml.py models/13B/ 1", s.ConvertCommand("13B"))
}
