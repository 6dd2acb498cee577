package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llamactl/internal/cancel"
	"llamactl/internal/common/fsutil"
	"llamactl/internal/download"
	"llamactl/internal/notify"
	"llamactl/internal/platform"
	"llamactl/internal/registry"
	"llamactl/internal/runner"
	"llamactl/pkg/types"
)

// Executor runs shell command lines and reports exit status 0. A non-nil
// error means the command never ran; runner.ErrBusy marks a refusal because
// another process is active. *runner.Runner implements it.
type Executor interface {
	Run(ctx context.Context, command, dir string, onLine func(string)) (bool, error)
	Stop()
}

// Downloader is one cancellable file transfer. *download.Task implements it.
type Downloader interface {
	Download(ctx context.Context, onProgress download.ProgressFunc) error
	Cancel()
}

// DownloadFunc creates a transfer of url into destDir.
type DownloadFunc func(url, destDir string) (Downloader, error)

// Generator is an alternative query backend that runs inference in-process.
type Generator interface {
	Generate(ctx context.Context, weightsPath string, req types.QueryRequest, onText func(string)) error
}

// Options configure a Pipeline. Zero-valued collaborators get defaults.
type Options struct {
	Home             string
	SourceURL        string
	WeightsURL       string
	PythonArchiveURL string
	Shell            string

	Strategy    *platform.Strategy
	Executor    Executor
	NewDownload DownloadFunc
	Syncer      SourceSyncer
	Generator   Generator
	Sink        notify.Sink
	Token       *cancel.Token
	Logger      zerolog.Logger
}

// Pipeline is one installation rooted at a home directory. Only one Install
// runs at a time.
type Pipeline struct {
	home       string
	modelsDir  string
	sourceURL  string
	weightsURL string
	pythonURL  string

	strategy    platform.Strategy
	exec        Executor
	newDownload DownloadFunc
	syncer      SourceSyncer
	gen         Generator
	sink        notify.Sink
	token       *cancel.Token
	log         zerolog.Logger
	newID       func() string

	mu      sync.Mutex
	running bool
	runID   string
	em      *notify.Emitter
	active  Downloader

	// gens cancels in-flight in-process generations, keyed by sequence.
	gens   map[uint64]context.CancelFunc
	genSeq uint64
}

// New builds a pipeline. The home directory is expanded but not created.
func New(opts Options) (*Pipeline, error) {
	home, err := fsutil.ExpandHome(opts.Home)
	if err != nil {
		return nil, err
	}
	if home == "" {
		return nil, fmt.Errorf("empty home directory")
	}
	if abs, err := filepath.Abs(home); err == nil {
		home = abs
	}
	p := &Pipeline{
		home:        home,
		modelsDir:   filepath.Join(home, "models"),
		sourceURL:   opts.SourceURL,
		weightsURL:  opts.WeightsURL,
		pythonURL:   opts.PythonArchiveURL,
		exec:        opts.Executor,
		newDownload: opts.NewDownload,
		syncer:      opts.Syncer,
		gen:         opts.Generator,
		sink:        opts.Sink,
		token:       opts.Token,
		log:         opts.Logger,
		newID:       uuid.NewString,
	}
	if opts.Strategy != nil {
		p.strategy = *opts.Strategy
	} else {
		p.strategy = platform.Current(home)
	}
	if p.sink == nil {
		p.sink = notify.Discard{}
	}
	if p.token == nil {
		p.token = cancel.New()
	}
	p.em = notify.NewEmitter(p.sink)
	if p.exec == nil {
		p.exec = runner.New(home, p.token,
			runner.WithShell(opts.Shell),
			runner.WithLogger(p.log),
			runner.WithOutput(func(line string) { p.emitter().Output(line, notify.LevelInfo) }),
		)
	}
	if p.newDownload == nil {
		p.newDownload = func(url, destDir string) (Downloader, error) {
			t, err := download.New(url, destDir)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	}
	if p.syncer == nil {
		p.syncer = GitSyncer{Log: p.log}
	}
	return p, nil
}

// Home is the absolute installation directory.
func (p *Pipeline) Home() string { return p.home }

// ModelsDir is <home>/models.
func (p *Pipeline) ModelsDir() string { return p.modelsDir }

// Running reports whether an Install is in progress, and its run id.
func (p *Pipeline) Running() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, p.runID
}

// Active returns the handle of the running process when the executor
// tracks one.
func (p *Pipeline) Active() (runner.Handle, bool) {
	if a, ok := p.exec.(interface{ Active() (runner.Handle, bool) }); ok {
		return a.Active()
	}
	return runner.Handle{}, false
}

// Stop sets the cancellation flag, kills the active process and aborts the
// active download and in-process generation. No further step, download or spawn starts until the next
// Install.
func (p *Pipeline) Stop() {
	p.token.Stop()
	p.exec.Stop()
	p.mu.Lock()
	dl := p.active
	for _, stopGen := range p.gens {
		stopGen()
	}
	p.mu.Unlock()
	if dl != nil {
		dl.Cancel()
	}
	p.log.Info().Msg("stop requested")
}

// Installed lists models whose quantized weights are present on disk.
func (p *Pipeline) Installed() ([]string, error) {
	return registry.Installed(p.modelsDir)
}

// Models describes every supported size class and whether it is installed.
func (p *Pipeline) Models() []types.Model {
	var out []types.Model
	for _, size := range registry.Sizes() {
		spec, _ := registry.Parse(string(size))
		out = append(out, types.Model{
			Name:      string(spec.Name),
			Shards:    spec.ShardCount,
			Files:     spec.FileList,
			Installed: fsutil.PathExists(spec.QuantizedPath(p.modelsDir, 0)),
		})
	}
	return out
}

// Exec runs an arbitrary command line in cwd (home when empty). Output goes
// to the output notification path. It fails with runner.ErrBusy while
// another process is active.
func (p *Pipeline) Exec(ctx context.Context, command, cwd string) (bool, error) {
	if cwd != "" && !filepath.IsAbs(cwd) {
		cwd = filepath.Join(p.home, cwd)
	}
	return p.runCommand(ctx, command, cwd, nil)
}

// runCommand executes one command line. Only a busy refusal is returned as an
// error; spawn failures are already logged by the executor and count as a
// failed command.
func (p *Pipeline) runCommand(ctx context.Context, command, dir string, onLine func(string)) (bool, error) {
	ok, err := p.exec.Run(ctx, command, dir, onLine)
	if errors.Is(err, runner.ErrBusy) {
		return false, err
	}
	return ok, nil
}

func (p *Pipeline) emitter() *notify.Emitter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.em
}

// startProgress is suppressed once the run was stopped.
func (p *Pipeline) startProgress(em *notify.Emitter, task string) {
	if p.token.Stopped() {
		return
	}
	p.log.Info().Str("task", task).Msg("start progress")
	em.StartProgress(task)
}

// fetch downloads url into dir as the single active transfer. Failures are
// logged and reported as error output; the caller continues either way.
func (p *Pipeline) fetch(ctx context.Context, em *notify.Emitter, task, url, dir string) {
	if p.token.Stopped() {
		return
	}
	dl, err := p.newDownload(url, dir)
	if err != nil {
		p.log.Error().Err(err).Str("url", url).Msg("download setup failed")
		em.Output(err.Error(), notify.LevelError)
		return
	}
	p.mu.Lock()
	p.active = dl
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()
	// Stop may have run before the transfer was registered.
	if p.token.Stopped() {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.log.Error().Err(err).Str("dir", dir).Msg("create download dir")
	}

	p.startProgress(em, task)
	err = dl.Download(ctx, func(pct float64) { em.Progress(task, pct) })
	if err != nil && !p.token.Stopped() {
		p.log.Error().Err(err).Str("url", url).Msg("download failed")
		em.Output(fmt.Sprintf("%s: %v", task, err), notify.LevelError)
	}
	em.Progress("download", 0)
}
