//go:build llama

package inproc

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"llamactl/pkg/types"
)

const llamaBuilt = true

type loadedModel struct {
	path string
	m    *llama.LLama
}

// Generate streams the completion of req.Prompt to onText. Calls are
// serialized; the model stays loaded until a different path is requested
// or Close is called.
func (g *Generator) Generate(ctx context.Context, weightsPath string, req types.QueryRequest, onText func(string)) error {
	if strings.TrimSpace(weightsPath) == "" {
		return errors.New("model path is empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.model == nil || g.model.path != weightsPath {
		g.closeLocked()
		m, err := llama.New(weightsPath, llama.SetContext(g.ctxSize))
		if err != nil {
			return err
		}
		g.model = &loadedModel{path: weightsPath, m: m}
		g.log.Info().Str("file", weightsPath).Int("ctx", g.ctxSize).Msg("model loaded")
	}

	m := g.model.m
	m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		onText(tok)
		return true
	})
	defer m.SetTokenCallback(nil)

	if _, err := m.Predict(req.Prompt, predictOptions(paramsFrom(req, g.threads))...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Close frees the loaded model.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
	return nil
}

func (g *Generator) closeLocked() {
	if g.model != nil {
		g.model.m.Free()
		g.model = nil
	}
}

func predictOptions(p predictParams) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(p.Tokens),
		llama.SetThreads(p.Threads),
		llama.SetTopK(p.TopK),
		llama.SetTopP(p.TopP),
		llama.SetTemperature(p.Temp),
		llama.SetPenalty(p.Penalty),
		llama.SetBatch(p.Batch),
		llama.SetRepeat(p.RepeatLastN),
	}
	if p.HasSeed {
		po = append(po, llama.SetSeed(p.Seed))
	}
	return po
}
