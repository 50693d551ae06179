// Package scan runs the fixed-rate input pipeline: sample the matrix,
// debounce, sequence key events against the layer stack and emit reports.
//
// All mutable state lives in a Context that is owned by the goroutine calling
// Tick or Run. Nothing in a tick blocks except the sampler and the transport.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/necocen/necoboard/debounce"
	"github.com/necocen/necoboard/emitter"
	"github.com/necocen/necoboard/layer"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
	"github.com/necocen/necoboard/sequencer"
)

// DefaultPeriod is the scan period of a 1 kHz scan rate.
const DefaultPeriod = time.Millisecond

// ErrConfig is wrapped by every error New returns for invalid configuration.
var ErrConfig = errors.New("invalid scan configuration")

// Config configures a Scanner.
type Config struct {
	Period     time.Duration
	Debounce   debounce.Config
	StackDepth int
	Emitter    emitter.Config
}

// Stats are the counters kept by a Scanner.
type Stats struct {
	Ticks               uint64
	MissedTicks         uint64
	ReadFailures        uint64
	InvariantViolations uint64
	LayerOverflows      uint64
	ReportOverflows     uint64
	TransportErrors     uint64
	Events              uint64
}

// Context is the complete mutable state of the pipeline.
type Context struct {
	Tick      uint64
	Frame     *matrix.Frame
	Debouncer *debounce.Debouncer
	Stack     *layer.Stack
	Sequencer *sequencer.Sequencer
	Emitter   *emitter.Emitter
	Stats     Stats
}

// Report is what one tick produced.
type Report struct {
	Tick    uint64
	Events  []sequencer.Event
	Result  emitter.Result
	ReadErr error
	SendErr error
}

// Observer is notified after every tick, on the scan goroutine.
type Observer interface {
	Observe(r Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Report)

func (fn ObserverFunc) Observe(r Report) { fn(r) }

// Scanner drives a Context from a sampler.
type Scanner struct {
	cfg       Config
	table     *layout.Table
	resolver  *layer.Resolver
	sampler   matrix.Sampler
	logger    *slog.Logger
	ctx       *Context
	observers []Observer
}

// New validates the configuration and builds a scanner with fresh state.
func New(cfg Config, table *layout.Table, sampler matrix.Sampler, transport emitter.Transport, logger *slog.Logger) (*Scanner, error) {
	var errs []error
	if table == nil {
		errs = append(errs, errors.New("no layout table"))
	}
	if sampler == nil {
		errs = append(errs, errors.New("no matrix sampler"))
	}
	if cfg.Period < 0 {
		errs = append(errs, fmt.Errorf("negative scan period %s", cfg.Period))
	}
	if cfg.Debounce.Window < 0 {
		errs = append(errs, fmt.Errorf("negative debounce window %d", cfg.Debounce.Window))
	}
	if cfg.StackDepth < 0 {
		errs = append(errs, fmt.Errorf("negative layer stack depth %d", cfg.StackDepth))
	}
	if cfg.StackDepth == 1 {
		errs = append(errs, errors.New("layer stack depth 1 leaves no room above the base layer"))
	}
	if cfg.Emitter.Rollover < 0 {
		errs = append(errs, fmt.Errorf("negative rollover %d", cfg.Emitter.Rollover))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scanner{
		cfg:      cfg,
		table:    table,
		resolver: layer.NewResolver(table),
		sampler:  sampler,
		logger:   logger,
	}
	stack := layer.NewStack(cfg.StackDepth)
	s.ctx = &Context{
		Frame:     matrix.NewFrame(table.Grid()),
		Debouncer: debounce.New(table.Grid(), cfg.Debounce, logger.With("component", "debounce")),
		Stack:     stack,
		Sequencer: sequencer.New(s.resolver, stack, logger.With("component", "sequencer")),
		Emitter:   emitter.New(cfg.Emitter, transport, logger.With("component", "emitter")),
	}
	return s, nil
}

// AddObserver registers an observer. It must not be called while Run is
// active.
func (s *Scanner) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Context returns the scanner state. It must only be read from the scan
// goroutine or while the scanner is stopped.
func (s *Scanner) Context() *Context { return s.ctx }

// Resolver returns the resolver over the scanner's layout.
func (s *Scanner) Resolver() *layer.Resolver { return s.resolver }

// Period returns the effective scan period.
func (s *Scanner) Period() time.Duration { return s.cfg.Period }

// Tick runs one scan tick.
func (s *Scanner) Tick() Report {
	c := s.ctx
	c.Tick++
	rep := Report{Tick: c.Tick}

	var changes []debounce.Change
	if err := s.sampler.Sample(c.Frame); err != nil {
		c.Frame.Clear()
		c.Stats.ReadFailures++
		rep.ReadErr = err
		s.logger.Debug("Matrix read failed, treating tick as all released", "tick", c.Tick, "error", err)
		changes = c.Debouncer.ScanReleased(c.Tick)
	} else {
		changes = c.Debouncer.Scan(c.Frame, c.Tick)
	}
	rep.Events = c.Sequencer.Process(changes, c.Tick)
	res, err := c.Emitter.Emit(rep.Events, c.Sequencer.Held())
	rep.Result = res
	if err != nil {
		c.Stats.TransportErrors++
		rep.SendErr = err
		s.logger.Warn("Report transport failed", "tick", c.Tick, "error", err)
	}

	c.Stats.Ticks++
	c.Stats.Events += uint64(len(rep.Events))
	c.Stats.InvariantViolations = c.Sequencer.Violations()
	c.Stats.LayerOverflows = c.Sequencer.LayerOverflows()
	c.Stats.ReportOverflows = c.Emitter.Overflows()

	for _, o := range s.observers {
		o.Observe(rep)
	}
	return rep
}

// Run ticks at the configured period until ctx is cancelled. A tick that
// overruns the period counts the skipped periods as missed ticks.
func (s *Scanner) Run(ctx context.Context) error {
	period := s.cfg.Period
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.logger.Info("Scan loop started", "period", period, "layers", s.table.NumLayers(),
		"window", s.ctx.Debouncer.Window(), "rollover", s.ctx.Emitter.Config().Rollover)
	for {
		select {
		case <-ctx.Done():
			st := s.ctx.Stats
			s.logger.Info("Scan loop stopped", "ticks", st.Ticks, "missed", st.MissedTicks,
				"read_failures", st.ReadFailures, "violations", st.InvariantViolations,
				"transport_errors", st.TransportErrors)
			return nil
		case <-ticker.C:
			start := time.Now()
			s.Tick()
			if elapsed := time.Since(start); elapsed > period {
				missed := uint64(elapsed / period)
				s.ctx.Stats.MissedTicks += missed
				s.logger.Debug("Scan tick overran", "elapsed", elapsed, "missed", missed)
			}
		}
	}
}
