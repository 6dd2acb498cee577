// Package inproc runs queries inside the process through go-llama.cpp
// instead of spawning the inference binary. Real inference needs the
// 'llama' build tag; default builds report ErrUnavailable.
package inproc

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"llamactl/pkg/types"
)

// ErrUnavailable is returned when the binary was built without llama support.
var ErrUnavailable = errors.New("in-process inference not built (missing 'llama' build tag)")

// IsUnavailable reports whether err means the backend is not compiled in.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// Generator loads quantized weights once per path and streams tokens.
type Generator struct {
	ctxSize int
	threads int
	log     zerolog.Logger

	mu    sync.Mutex
	model *loadedModel
}

func New(ctxSize, threads int, log zerolog.Logger) *Generator {
	return &Generator{ctxSize: ctxSize, threads: threads, log: log}
}

// Available reports whether this build can run inference in-process.
func Available() bool { return llamaBuilt }

// predictParams is the backend-neutral form of a QueryRequest.
type predictParams struct {
	Tokens      int
	Threads     int
	TopK        int
	TopP        float32
	Temp        float32
	Penalty     float32
	Batch       int
	RepeatLastN int
	Seed        int
	HasSeed     bool
}

// Defaults mirror the inference binary's own.
const (
	defaultTokens  = 128
	defaultTopK    = 40
	defaultTopP    = 0.95
	defaultTemp    = 0.8
	defaultPenalty = 1.3
	defaultBatch   = 8
	defaultRepeat  = 64
)

func paramsFrom(req types.QueryRequest, threads int) predictParams {
	p := predictParams{
		Tokens:      defaultTokens,
		Threads:     threads,
		TopK:        defaultTopK,
		TopP:        defaultTopP,
		Temp:        defaultTemp,
		Penalty:     defaultPenalty,
		Batch:       defaultBatch,
		RepeatLastN: defaultRepeat,
	}
	if req.NPredict != nil && *req.NPredict > 0 {
		p.Tokens = *req.NPredict
	}
	if req.Threads != nil && *req.Threads > 0 {
		p.Threads = *req.Threads
	}
	if p.Threads < 1 {
		p.Threads = 1
	}
	if req.TopK != nil {
		p.TopK = *req.TopK
	}
	if req.TopP != nil {
		p.TopP = float32(*req.TopP)
	}
	if req.Temp != nil {
		p.Temp = float32(*req.Temp)
	}
	if req.RepeatPenalty != nil {
		p.Penalty = float32(*req.RepeatPenalty)
	}
	if req.BatchSize != nil && *req.BatchSize > 0 {
		p.Batch = *req.BatchSize
	}
	if req.RepeatLastN != nil {
		p.RepeatLastN = *req.RepeatLastN
	}
	if req.Seed != nil && *req.Seed >= 0 {
		p.Seed = int(*req.Seed)
		p.HasSeed = true
	}
	return p
}
