package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"llamactl/internal/common/fsutil"
	"llamactl/internal/notify"
	"llamactl/internal/queryfilter"
	"llamactl/internal/registry"
	"llamactl/pkg/types"
)

const defaultQueryModel = registry.Size7B

// Query runs one completion and streams generated text to onText. Exactly
// one queryFinished event is published per call that passes model
// validation, including when the weights are missing (no process is
// started then). While another process is active the query is refused with
// runner.ErrBusy and produces no text.
func (p *Pipeline) Query(ctx context.Context, req types.QueryRequest, onText func(string)) error {
	name := req.Model
	if name == "" {
		name = string(defaultQueryModel)
	}
	spec, err := registry.Parse(name)
	if err != nil {
		return err
	}
	em := notify.NewEmitter(p.sink).WithRunID(p.newID())
	if onText == nil {
		onText = func(string) {}
	}

	weights := spec.QuantizedPath(p.modelsDir, 0)
	if !fsutil.PathExists(weights) {
		p.log.Info().Str("model", string(spec.Name)).Str("file", weights).Msg("query: weights missing")
		em.QueryFinished()
		return nil
	}

	if p.gen != nil {
		err := p.generate(ctx, weights, req, onText)
		em.QueryFinished()
		return err
	}

	rel, err := filepath.Rel(p.home, weights)
	if err != nil {
		rel = weights
	}
	cmd := p.queryCommand(req, filepath.ToSlash(rel))
	p.log.Info().Str("model", string(spec.Name)).Bool("full", req.Full).Msg("query")

	if req.Full {
		_, err := p.runCommand(ctx, cmd, p.home, onText)
		em.QueryFinished()
		return err
	}

	filter := queryfilter.New()
	signaled := false
	_, err = p.runCommand(ctx, cmd, p.home, func(line string) {
		r := filter.Feed(line)
		if r.Forward {
			onText(line)
		}
		if r.Terminal && !req.SkipEnd {
			signaled = true
			em.QueryFinished()
		}
	})
	if !signaled {
		em.QueryFinished()
	}
	return err
}

// generate runs the in-process backend under a context that Stop cancels.
// Nothing is generated once the token is stopped.
func (p *Pipeline) generate(ctx context.Context, weights string, req types.QueryRequest, onText func(string)) error {
	if p.token.Stopped() {
		return nil
	}
	ctx, stopGen := context.WithCancel(ctx)
	defer stopGen()
	p.mu.Lock()
	if p.gens == nil {
		p.gens = map[uint64]context.CancelFunc{}
	}
	p.genSeq++
	id := p.genSeq
	p.gens[id] = stopGen
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.gens, id)
		p.mu.Unlock()
	}()
	// Stop may have run before stopGen was registered.
	if p.token.Stopped() {
		return nil
	}
	err := p.gen.Generate(ctx, weights, req, onText)
	if err != nil && p.token.Stopped() {
		return nil
	}
	return err
}

// queryCommand builds the inference command line. Only sampling fields that
// are set become flags.
func (p *Pipeline) queryCommand(req types.QueryRequest, modelPath string) string {
	parts := []string{p.strategy.Quote(p.strategy.MainBinary)}
	add := func(flag, v string) { parts = append(parts, "--"+flag, v) }
	addInt := func(flag string, v *int) {
		if v != nil {
			add(flag, strconv.Itoa(*v))
		}
	}
	addFloat := func(flag string, v *float64) {
		if v != nil {
			add(flag, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}

	if req.Seed != nil {
		add("seed", strconv.FormatInt(*req.Seed, 10))
	}
	addInt("threads", req.Threads)
	addInt("n_predict", req.NPredict)
	add("model", p.strategy.Quote(modelPath))
	addInt("top_k", req.TopK)
	addFloat("top_p", req.TopP)
	addFloat("temp", req.Temp)
	addInt("batch_size", req.BatchSize)
	addInt("repeat_last_n", req.RepeatLastN)
	addFloat("repeat_penalty", req.RepeatPenalty)
	parts = append(parts, "-p", p.strategy.Quote(req.Prompt))
	return strings.Join(parts, " ")
}
