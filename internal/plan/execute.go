package plan

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mikesmitty/mv2/host"
)

// Runner invokes the host on a prepared script. *host.Host implements it.
type Runner interface {
	Measure(ctx context.Context, script string) (*host.Result, error)
	Status(ctx context.Context, script string) (int, error)
}

// RunResult is the outcome of one run.
type RunResult struct {
	Name     string
	Script   string
	Mode     Mode
	Rows     [][]int
	MXRPath  string
	ExitCode int
	Elapsed  time.Duration
	// Interrupted runs keep the rows printed before the interrupt.
	Interrupted bool
}

// Execute prepares and runs every run of p in order. It stops at the first
// failing run and returns the results gathered so far with the error; an
// interrupted measurement is included with the rows it printed.
func Execute(ctx context.Context, p *Plan, runner Runner) ([]RunResult, error) {
	results := make([]RunResult, 0, len(p.Runs))
	for _, r := range p.Runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		logger := log.WithFields(log.Fields{"run": r.Name, "script": r.Output})
		for _, w := range r.Writes {
			fields := log.Fields{"type": w.Type, "value": w.Value(r.Radix)}
			if w.Raw == "" {
				fields["register"] = w.Register.Describe()
			}
			logger.WithFields(fields).Debug("substituting")
		}

		if err := r.Prepare(ctx); err != nil {
			return results, fmt.Errorf("plan: run %q: %w", r.Name, err)
		}

		res := RunResult{Name: r.Name, Script: r.Output, Mode: r.Mode}
		start := time.Now()
		switch r.Mode {
		case ModeStatus:
			code, err := runner.Status(ctx, r.Output)
			if err != nil {
				return results, fmt.Errorf("plan: run %q: %w", r.Name, err)
			}
			res.ExitCode = code
		default:
			out, err := runner.Measure(ctx, r.Output)
			if out != nil {
				res.Rows = out.Rows
				res.MXRPath = out.MXRPath
				res.Interrupted = out.Interrupted
			}
			if err != nil {
				if out != nil {
					res.Elapsed = time.Since(start)
					results = append(results, res)
				}
				return results, fmt.Errorf("plan: run %q: %w", r.Name, err)
			}
		}
		res.Elapsed = time.Since(start)
		logger.WithFields(log.Fields{"elapsed": res.Elapsed, "exit_code": res.ExitCode, "rows": len(res.Rows)}).Info("run finished")
		results = append(results, res)
	}
	return results, nil
}
