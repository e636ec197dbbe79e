package solver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Mode selects how a batch of literals is sent.
type Mode string

const (
	// ModeSequential awaits each answer before sending the next literal.
	ModeSequential Mode = "sequential"
	// ModeConcurrent sends literals in parallel up to Options.Concurrency.
	ModeConcurrent Mode = "concurrent"
)

// Failure reasons reported to the Recorder.
const (
	ResultOK        = "ok"
	ResultTimeout   = "timeout"
	ResultStatus    = "status"
	ResultBody      = "body"
	ResultTransport = "transport"
)

// Result pairs a literal with the solver's raw answer.
type Result struct {
	Literal string `json:"literal"`
	Raw     string `json:"raw"`
}

// Recorder observes individual solver calls.
type Recorder interface {
	ObserveSolverCall(result string, duration time.Duration)
}

// Options configures a Dispatcher.
type Options struct {
	Mode        Mode
	Concurrency int
	// Timeout bounds each solver call.
	Timeout time.Duration
}

// DefaultOptions returns concurrent dispatch with four workers and a 15s
// per-call timeout.
func DefaultOptions() Options {
	return Options{
		Mode:        ModeConcurrent,
		Concurrency: 4,
		Timeout:     15 * time.Second,
	}
}

// Dispatcher sends ready literals to a Solver. A failed call is logged and
// dropped; it never affects the other literals of the batch.
type Dispatcher struct {
	solver   Solver
	opts     Options
	logger   *slog.Logger
	recorder Recorder
}

// NewDispatcher creates a dispatcher. Zero option fields take their defaults.
func NewDispatcher(s Solver, opts Options, logger *slog.Logger, recorder Recorder) *Dispatcher {
	def := DefaultOptions()
	if opts.Mode == "" {
		opts.Mode = def.Mode
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{solver: s, opts: opts, logger: logger, recorder: recorder}
}

// Options returns the effective options.
func (d *Dispatcher) Options() Options {
	return d.opts
}

// Dispatch solves every literal and returns the successful answers in
// submission order.
func (d *Dispatcher) Dispatch(ctx context.Context, literals []string) []Result {
	if len(literals) == 0 {
		return nil
	}
	if d.opts.Mode == ModeSequential || len(literals) == 1 {
		return d.sequential(ctx, literals)
	}
	return d.concurrent(ctx, literals)
}

func (d *Dispatcher) sequential(ctx context.Context, literals []string) []Result {
	var out []Result
	for _, lit := range literals {
		if raw, ok := d.solveOne(ctx, lit); ok {
			out = append(out, Result{Literal: lit, Raw: raw})
		}
	}
	return out
}

func (d *Dispatcher) concurrent(ctx context.Context, literals []string) []Result {
	slots := make([]*Result, len(literals))

	// A plain Group: one failed call must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, lit := range literals {
		g.Go(func() error {
			if raw, ok := d.solveOne(ctx, lit); ok {
				slots[i] = &Result{Literal: lit, Raw: raw}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []Result
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (d *Dispatcher) solveOne(ctx context.Context, literal string) (raw string, ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("Solver call panicked", "literal", literal, "panic", p)
			d.observe(ResultTransport, time.Since(start))
			raw, ok = "", false
		}
	}()

	raw, err := d.solver.Solve(callCtx, literal)
	elapsed := time.Since(start)
	if err != nil {
		reason := classify(callCtx, err)
		d.logger.Warn("Solver call failed",
			"literal", literal,
			"reason", reason,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		d.observe(reason, elapsed)
		return "", false
	}

	d.logger.Debug("Solver call succeeded", "literal", literal, "duration_ms", elapsed.Milliseconds())
	d.observe(ResultOK, elapsed)
	return raw, true
}

func (d *Dispatcher) observe(result string, elapsed time.Duration) {
	if d.recorder != nil {
		d.recorder.ObserveSolverCall(result, elapsed)
	}
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ResultTimeout
	case errors.Is(err, ErrStatus):
		return ResultStatus
	case errors.Is(err, ErrEmptyBody) || errors.Is(err, ErrUnparsable):
		return ResultBody
	default:
		return ResultTransport
	}
}
