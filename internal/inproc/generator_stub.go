//go:build !llama

package inproc

import (
	"context"

	"llamactl/pkg/types"
)

const llamaBuilt = false

type loadedModel struct{}

func (g *Generator) Generate(ctx context.Context, weightsPath string, req types.QueryRequest, onText func(string)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return ErrUnavailable
}

func (g *Generator) Close() error { return nil }
