package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"llamactl/internal/config"
	"llamactl/internal/notify"
	"llamactl/pkg/types"
)

type queryFlags struct {
	model         string
	prompt        string
	seed          int64
	threads       int
	nPredict      int
	topK          int
	topP          float64
	temp          float64
	batchSize     int
	repeatLastN   int
	repeatPenalty float64
	full          bool
	skipEnd       bool
}

// request builds a QueryRequest. Sampling fields are set only for flags
// given on the command line.
func (q *queryFlags) request(cmd *cobra.Command, args []string) types.QueryRequest {
	req := types.QueryRequest{Model: q.model, Prompt: q.prompt, Full: q.full, SkipEnd: q.skipEnd}
	if req.Prompt == "" && len(args) > 0 {
		req.Prompt = strings.Join(args, " ")
	}
	f := cmd.Flags()
	if f.Changed("seed") {
		req.Seed = &q.seed
	}
	if f.Changed("threads") {
		req.Threads = &q.threads
	}
	if f.Changed("n-predict") {
		req.NPredict = &q.nPredict
	}
	if f.Changed("top-k") {
		req.TopK = &q.topK
	}
	if f.Changed("top-p") {
		req.TopP = &q.topP
	}
	if f.Changed("temp") {
		req.Temp = &q.temp
	}
	if f.Changed("batch-size") {
		req.BatchSize = &q.batchSize
	}
	if f.Changed("repeat-last-n") {
		req.RepeatLastN = &q.repeatLastN
	}
	if f.Changed("repeat-penalty") {
		req.RepeatPenalty = &q.repeatPenalty
	}
	return req
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&q.model, "model", "", "Model size class (default 7B)")
	f.StringVarP(&q.prompt, "prompt", "p", "", "Prompt text (or pass it as arguments)")
	f.Int64Var(&q.seed, "seed", -1, "RNG seed")
	f.IntVar(&q.threads, "threads", 4, "Inference threads")
	f.IntVar(&q.nPredict, "n-predict", 128, "Number of tokens to predict")
	f.IntVar(&q.topK, "top-k", 40, "Top-k sampling")
	f.Float64Var(&q.topP, "top-p", 0.95, "Top-p sampling")
	f.Float64Var(&q.temp, "temp", 0.8, "Sampling temperature")
	f.IntVar(&q.batchSize, "batch-size", 8, "Prompt batch size")
	f.IntVar(&q.repeatLastN, "repeat-last-n", 64, "Tokens considered for the repeat penalty")
	f.Float64Var(&q.repeatPenalty, "repeat-penalty", 1.3, "Repeat penalty")
	f.BoolVar(&q.full, "full", false, "Print raw process output, banner included")
	f.BoolVar(&q.skipEnd, "skip-end", false, "Wait for process exit instead of the end marker")
}

func newQueryCmd(g *globals) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:     "query [PROMPT...]",
		Short:   "Run a completion against an installed model",
		Example: "  llamactl query --model 7B --n-predict 64 \"The capital of France is\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := q.request(cmd, args)
			if strings.TrimSpace(req.Prompt) == "" {
				return fmt.Errorf("prompt is required")
			}
			gen, release, err := g.generator()
			if err != nil {
				return err
			}
			defer release()
			p, err := g.newPipeline(notify.LogSink{Log: g.log}, gen)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			out := cmd.OutOrStdout()
			// The process backend yields whole lines, the in-process one token pieces.
			write := func(text string) { fmt.Fprintln(out, text) }
			if g.cfg.QueryBackend == config.BackendInproc {
				write = func(text string) { fmt.Fprint(out, text) }
			}
			if err := p.Query(ctx, req, write); err != nil {
				return err
			}
			if g.cfg.QueryBackend == config.BackendInproc {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	q.bind(cmd)
	return cmd
}
