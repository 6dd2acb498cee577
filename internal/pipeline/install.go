package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"llamactl/internal/common/fsutil"
	"llamactl/internal/notify"
	"llamactl/internal/platform"
	"llamactl/internal/registry"
)

type stepFunc func(ctx context.Context, em *notify.Emitter) error

// Install runs the full pipeline for the given models, in order. Model names
// are validated before anything runs. A Stop during the run ends it early
// and silently: Install returns nil and no finished event is published.
// Fatal step failures return a *FatalError. Cancelling ctx acts like Stop.
func (p *Pipeline) Install(ctx context.Context, models ...string) error {
	specs, em, runID, err := p.begin(models)
	if err != nil {
		return err
	}
	return p.run(ctx, specs, em, runID, models)
}

// Start validates models and claims the pipeline like Install, then runs
// the install in the background. It returns the run id; the outcome is
// reported through the sink and the log.
func (p *Pipeline) Start(ctx context.Context, models ...string) (string, error) {
	specs, em, runID, err := p.begin(models)
	if err != nil {
		return "", err
	}
	go func() {
		if err := p.run(ctx, specs, em, runID, models); err != nil {
			p.log.Error().Err(err).Str("run_id", runID).Msg("background install failed")
		}
	}()
	return runID, nil
}

// begin validates the request, marks the pipeline as running and clears
// the cancellation flag.
func (p *Pipeline) begin(models []string) ([]registry.ModelSpec, *notify.Emitter, string, error) {
	specs, err := registry.ParseAll(models)
	if err != nil {
		return nil, nil, "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, nil, "", ErrAlreadyRunning
	}
	p.running = true
	p.runID = p.newID()
	p.em = notify.NewEmitter(p.sink).WithRunID(p.runID)
	p.token.Reset()
	return specs, p.em, p.runID, nil
}

func (p *Pipeline) run(ctx context.Context, specs []registry.ModelSpec, em *notify.Emitter, runID string, models []string) error {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	stopOnDone := context.AfterFunc(ctx, p.Stop)
	defer stopOnDone()

	log := p.log.With().Str("run_id", runID).Logger()
	log.Info().Strs("models", models).Str("home", p.home).Msg("install started")
	if err := os.MkdirAll(p.home, 0o755); err != nil {
		return fmt.Errorf("create home: %w", err)
	}

	type namedStep struct {
		name string
		run  stepFunc
	}
	steps := []namedStep{{"source_sync", p.syncSource}}
	if p.strategy.NeedsPythonBootstrap {
		steps = append(steps, namedStep{"python_bootstrap", p.bootstrapPython})
	}
	steps = append(steps,
		namedStep{"prerequisites", p.installPrerequisites},
		namedStep{"venv", p.createVenv},
		namedStep{"dependencies", p.installDependencies},
		namedStep{"build", p.build},
	)
	for _, spec := range specs {
		steps = append(steps,
			namedStep{"download_weights", func(ctx context.Context, em *notify.Emitter) error {
				return p.downloadWeights(ctx, em, spec)
			}},
			namedStep{"convert", func(ctx context.Context, em *notify.Emitter) error {
				return p.convert(ctx, em, spec)
			}},
			namedStep{"quantize", func(ctx context.Context, em *notify.Emitter) error {
				return p.quantize(ctx, em, spec)
			}},
		)
	}

	for _, s := range steps {
		if p.token.Stopped() {
			log.Info().Str("step", s.name).Msg("install stopped")
			return nil
		}
		if err := p.runStep(ctx, em, s.name, s.run); err != nil {
			log.Error().Err(err).Msg("install aborted")
			em.Output(err.Error(), notify.LevelError)
			return err
		}
	}
	if p.token.Stopped() {
		log.Info().Msg("install stopped")
		return nil
	}
	log.Info().Msg("install finished")
	em.Finished()
	return nil
}

// runStep times one step. Errors that surface after Stop are swallowed:
// a killed process is not a failure.
func (p *Pipeline) runStep(ctx context.Context, em *notify.Emitter, name string, fn stepFunc) error {
	start := time.Now()
	err := fn(ctx, em)
	result := "ok"
	switch {
	case p.token.Stopped():
		result = "stopped"
		err = nil
	case err != nil:
		result = "fatal"
		if !IsFatal(err) {
			err = &FatalError{Step: name, Err: err}
		}
	}
	observeStep(name, result, time.Since(start))
	p.log.Debug().Str("step", name).Str("result", result).Dur("took", time.Since(start)).Msg("step done")
	return err
}

// syncSource clones the source tree, or pulls when a repository already
// exists. Failures are reported and the run continues.
func (p *Pipeline) syncSource(ctx context.Context, em *notify.Emitter) error {
	hooks := SyncHooks{
		Start:    func(task string) { p.startProgress(em, task) },
		Progress: em.Progress,
		Message:  func(line string) { em.Output(line, notify.LevelInfo) },
	}
	if err := p.syncer.Sync(ctx, p.sourceURL, p.home, hooks); err != nil {
		p.log.Warn().Err(err).Str("url", p.sourceURL).Msg("source sync failed")
		em.Output("source sync failed: "+err.Error(), notify.LevelError)
	}
	return nil
}

// bootstrapPython fetches and unpacks a self-contained interpreter into home.
func (p *Pipeline) bootstrapPython(ctx context.Context, em *notify.Emitter) error {
	if fsutil.PathExists(p.strategy.BootstrapInterpreter) {
		p.log.Info().Str("file", p.strategy.BootstrapInterpreter).Msg("skip python bootstrap, interpreter exists")
		return nil
	}
	archive := filepath.Join(p.home, fileNameFromURL(p.pythonURL))
	p.fetch(ctx, em, "downloading self contained python", p.pythonURL, p.home)
	if p.token.Stopped() {
		return nil
	}
	if !fsutil.PathExists(archive) {
		em.Output("python archive missing, skipping extraction", notify.LevelError)
		return nil
	}

	p.startProgress(em, "Extracting python")
	em.Progress("extracting python", 0)
	if err := extractTarGz(archive, p.home); err != nil {
		p.log.Error().Err(err).Str("file", archive).Msg("extract python")
		em.Output("extract python: "+err.Error(), notify.LevelError)
	}
	em.Progress("extracting python", 100)
	if err := os.Remove(archive); err != nil {
		p.log.Warn().Err(err).Str("file", archive).Msg("remove python archive")
	}
	return nil
}

// installPrerequisites only fails the run when the runner is busy.
func (p *Pipeline) installPrerequisites(ctx context.Context, em *notify.Emitter) error {
	p.startProgress(em, "Installing pre-requisites")
	ok := false
	for _, cmd := range p.strategy.Prerequisites {
		done, err := p.runCommand(ctx, cmd, "", nil)
		if err != nil {
			return err
		}
		if done {
			ok = true
			if p.strategy.PrereqMode == platform.FirstSuccess {
				break
			}
		}
	}
	if !ok && !p.token.Stopped() {
		p.log.Warn().Msg("prerequisite installation failed, continuing")
		em.Output("pre-requisite installation failed, continuing", notify.LevelError)
	}
	return nil
}

// createVenv tries every interpreter candidate; the last attempt's result
// decides the step status.
func (p *Pipeline) createVenv(ctx context.Context, em *notify.Emitter) error {
	if fsutil.PathExists(p.strategy.VenvPython) {
		p.log.Info().Str("dir", p.strategy.VenvDir).Msg("skip venv, already exists")
		return nil
	}
	p.startProgress(em, "Creating virtual environment")
	ok := false
	for _, interp := range p.strategy.PythonCandidates {
		var err error
		if ok, err = p.runCommand(ctx, p.strategy.VenvCommand(interp), "", nil); err != nil {
			return err
		}
	}
	if !ok && !p.token.Stopped() {
		p.log.Warn().Str("dir", p.strategy.VenvDir).Msg("venv creation failed")
		em.Output("virtual environment creation failed", notify.LevelError)
	}
	return nil
}

var pythonDeps = []string{"torch", "torchvision", "torchaudio", "sentencepiece", "numpy"}

func (p *Pipeline) installDependencies(ctx context.Context, em *notify.Emitter) error {
	pip := p.strategy.Quote(p.strategy.VenvPip)
	p.startProgress(em, "Upgrading setuptools")
	ok, err := p.runCommand(ctx, pip+" install --upgrade pip setuptools wheel", "", nil)
	if err != nil {
		return err
	}
	if !ok {
		return fatal("dependencies", "pip setuptools wheel upgrade failed")
	}
	p.startProgress(em, "Installing Python dependencies")
	ok, err = p.runCommand(ctx, pip+" install "+strings.Join(pythonDeps, " "), "", nil)
	if err != nil {
		return err
	}
	if !ok {
		return fatal("dependencies", "dependency installation failed")
	}
	return nil
}

func (p *Pipeline) build(ctx context.Context, em *notify.Emitter) error {
	for _, c := range p.strategy.Build {
		if p.token.Stopped() {
			return nil
		}
		if c.Label != "" {
			p.startProgress(em, c.Label)
		}
		ok, err := p.runCommand(ctx, c.Line, c.Dir, nil)
		if err != nil {
			return err
		}
		if !ok && c.Required {
			return fatal("build", "running '%s' failed", c.Line)
		}
	}
	return nil
}

// downloadWeights fetches missing shard files into models/<NAME>/ and the
// shared tokenizer files into models/.
func (p *Pipeline) downloadWeights(ctx context.Context, em *notify.Emitter, spec registry.ModelSpec) error {
	dir := spec.Dir(p.modelsDir)
	base := strings.TrimRight(p.weightsURL, "/")
	for _, file := range spec.FileList {
		if fsutil.PathExists(filepath.Join(dir, file)) {
			p.log.Debug().Str("file", file).Str("model", string(spec.Name)).Msg("skip download, exists")
			continue
		}
		if p.token.Stopped() {
			return nil
		}
		p.fetch(ctx, em, "downloading "+file, base+"/"+string(spec.Name)+"/"+file, dir)
	}
	for _, file := range registry.SharedFiles {
		if fsutil.PathExists(filepath.Join(p.modelsDir, file)) {
			p.log.Debug().Str("file", file).Msg("skip download, exists")
			continue
		}
		if p.token.Stopped() {
			return nil
		}
		p.fetch(ctx, em, "downloading "+file, base+"/"+file, p.modelsDir)
	}
	return nil
}

func (p *Pipeline) convert(ctx context.Context, em *notify.Emitter, spec registry.ModelSpec) error {
	out := spec.F16Path(p.modelsDir, 0)
	if fsutil.PathExists(out) {
		p.log.Info().Str("file", out).Msg("skip conversion, file exists")
		return nil
	}
	p.startProgress(em, fmt.Sprintf("Converting %s to ggml", spec.Name))
	ok, err := p.runCommand(ctx, p.strategy.ConvertCommand(string(spec.Name)), p.home, nil)
	if err != nil {
		return err
	}
	if !ok && !p.token.Stopped() {
		p.log.Error().Str("model", string(spec.Name)).Msg("conversion failed")
		em.Output(fmt.Sprintf("conversion of %s failed", spec.Name), notify.LevelError)
	}
	return nil
}

func (p *Pipeline) quantize(ctx context.Context, em *notify.Emitter, spec registry.ModelSpec) error {
	p.startProgress(em, fmt.Sprintf("Quantizing %s", spec.Name))
	for i := 0; i < spec.ShardCount; i++ {
		f16 := spec.F16Path(p.modelsDir, i)
		q4 := spec.QuantizedPath(p.modelsDir, i)
		if fsutil.AllExist(f16, q4) {
			p.log.Debug().Str("file", q4).Msg("skip quantization, files exist")
			continue
		}
		if p.token.Stopped() {
			return nil
		}
		ok, err := p.runCommand(ctx, p.strategy.QuantizeCommand(f16, q4), p.strategy.QuantizeDir, nil)
		if err != nil {
			return err
		}
		if !ok && !p.token.Stopped() {
			p.log.Error().Str("file", q4).Msg("quantization failed")
			em.Output(fmt.Sprintf("quantization of %s shard %d failed", spec.Name, i), notify.LevelError)
		}
	}
	return nil
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}
