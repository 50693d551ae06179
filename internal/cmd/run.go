package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/necocen/necoboard/debounce"
	"github.com/necocen/necoboard/emitter"
	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/internal/log"
	"github.com/necocen/necoboard/internal/sim"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
	"github.com/necocen/necoboard/scan"
	"github.com/necocen/necoboard/trace"
	"github.com/necocen/necoboard/viiperlink"
)

type ScanConfig struct {
	Period     time.Duration `help:"Scan tick period" default:"1ms" env:"NECOBOARD_SCAN_PERIOD"`
	Debounce   int           `help:"Debounce window in ticks" default:"5" env:"NECOBOARD_SCAN_DEBOUNCE"`
	Initial    string        `help:"Handling of keys already active at startup" enum:"ignore,accept" default:"ignore" env:"NECOBOARD_SCAN_INITIAL"`
	StackDepth int           `help:"Maximum active layers including the base layer" default:"4" env:"NECOBOARD_SCAN_STACK_DEPTH"`
}

type ReportConfig struct {
	Rollover int    `help:"Key slots per keyboard report" default:"6" env:"NECOBOARD_REPORT_ROLLOVER"`
	Overflow string `help:"What to report when more keys are held than there are slots" enum:"drop-newest,error-rollover" default:"drop-newest" env:"NECOBOARD_REPORT_OVERFLOW"`
	Resend   string `help:"Send reports only on change or on every tick" enum:"on-change,always" default:"on-change" env:"NECOBOARD_REPORT_RESEND"`
	Encoding string `help:"Keyboard report encoding for the raw log and --report.output" enum:"boot,nkro,wire" default:"boot" env:"NECOBOARD_REPORT_ENCODING"`
	Output   string `help:"Append every report, prefixed with its report ID, to this file" env:"NECOBOARD_REPORT_OUTPUT"`
}

type ViiperConfig struct {
	Addr     string        `help:"VIIPER API server address; reports are not forwarded when empty" env:"NECOBOARD_VIIPER_ADDR"`
	Password string        `help:"VIIPER API password" env:"NECOBOARD_VIIPER_PASSWORD"`
	Bus      uint32        `help:"Bus to attach the keyboard to; 0 creates a bus for this run" default:"0" env:"NECOBOARD_VIIPER_BUS"`
	Vendor   uint16        `help:"USB vendor ID of the virtual keyboard; 0 keeps the server default" default:"0"`
	Product  uint16        `help:"USB product ID of the virtual keyboard; 0 keeps the server default" default:"0"`
	Timeout  time.Duration `help:"Dial and request timeout" default:"5s" env:"NECOBOARD_VIIPER_TIMEOUT"`
}

// Run simulates the keyboard: frames come from a script or the interactive
// console and go through the full scan pipeline.
type Run struct {
	Layout    string  `help:"Layout document (yaml, toml or json); the built-in necoboard layout when empty" env:"NECOBOARD_LAYOUT"`
	Script    string  `help:"Play a frame script (yaml, toml or json) instead of opening the console"`
	Realtime  bool    `help:"Play the script at the scan period, publishing frames through the interrupt hand-off ring, instead of as fast as possible"`
	Analog    bool    `help:"Route frames through simulated analog readings, the Kalman filter and the threshold"`
	Threshold float64 `help:"Activation threshold for --analog" default:"40"`
	Seed      uint64  `help:"Noise seed for --analog" default:"1"`
	Trace     string  `help:"Append a CBOR key-event trace to this file" env:"NECOBOARD_TRACE"`

	Scan   ScanConfig   `embed:"" prefix:"scan."`
	Report ReportConfig `embed:"" prefix:"report."`
	Viiper ViiperConfig `embed:"" prefix:"viiper."`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Execute(ctx, stop, logger, rawLogger, os.Stdout)
}

// ScanConfig converts the flags into a scan configuration.
func (r *Run) ScanConfig() (scan.Config, error) {
	initial, err := debounce.ParseInitialPolicy(r.Scan.Initial)
	if err != nil {
		return scan.Config{}, err
	}
	overflow, err := emitter.ParseOverflowPolicy(r.Report.Overflow)
	if err != nil {
		return scan.Config{}, err
	}
	resend, err := emitter.ParseResendPolicy(r.Report.Resend)
	if err != nil {
		return scan.Config{}, err
	}
	return scan.Config{
		Period:     r.Scan.Period,
		Debounce:   debounce.Config{Window: r.Scan.Debounce, Initial: initial},
		StackDepth: r.Scan.StackDepth,
		Emitter:    emitter.Config{Rollover: r.Report.Rollover, Overflow: overflow, Resend: resend},
	}, nil
}

// Execute runs the simulation until the script ends, the console quits or
// ctx is cancelled. Script output goes to out.
func (r *Run) Execute(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, rawLogger log.RawLogger, out io.Writer) (err error) {
	table, err := loadTable(r.Layout)
	if err != nil {
		return err
	}
	cfg, err := r.ScanConfig()
	if err != nil {
		return err
	}
	enc, err := emitter.ParseEncoding(r.Report.Encoding)
	if err != nil {
		return err
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = errors.Join(err, closers[i]())
		}
	}()

	transports := emitter.Multi{rawTransport{raw: rawLogger, enc: enc}}
	if r.Report.Output != "" {
		f, err := os.OpenFile(r.Report.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open report output: %w", err)
		}
		closers = append(closers, f.Close)
		transports = append(transports, emitter.NewWriterTransport(f, enc))
		logger.Info("Writing reports", "file", r.Report.Output, "encoding", enc)
	}
	if r.Viiper.Addr != "" {
		link, err := r.attach(ctx, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), r.Viiper.Timeout)
			defer cancel()
			return link.Close(ctx)
		})
		go func() {
			if err := link.WatchLEDs(); err != nil {
				logger.Warn("LED stream ended", "error", err)
			}
		}()
		transports = append(transports, link.Sink)
	}

	g := table.Grid()
	var (
		player *sim.Player
		manual *sim.Manual
		source matrix.Sampler
	)
	if r.Script != "" {
		script, err := sim.LoadScript(r.Script)
		if err != nil {
			return err
		}
		if player, err = sim.NewPlayer(script, table); err != nil {
			return fmt.Errorf("script %s: %w", r.Script, err)
		}
		source = player
	} else {
		manual = sim.NewManual(g)
		source = manual
	}
	if r.Analog {
		source = matrix.NewAnalogSampler(sim.NewAnalogReader(source, g, r.Seed), g,
			matrix.AnalogConfig{Threshold: float32(r.Threshold)})
	}

	// In realtime mode frames reach the scanner the way sensor interrupts
	// would: a producer goroutine publishes into a Handoff ring.
	var handoff *matrix.Handoff
	feed := source
	if player != nil && r.Realtime {
		handoff = matrix.NewHandoff(g, handoffSlots)
		source = handoff
	}

	scanner, err := scan.New(cfg, table, source, transports, logger)
	if err != nil {
		return err
	}
	if r.Trace != "" {
		rec, err := trace.Create(r.Trace, table)
		if err != nil {
			return err
		}
		closers = append(closers, func() error {
			if err := rec.Err(); err != nil {
				return errors.Join(fmt.Errorf("write trace %s: %w", r.Trace, err), rec.Close())
			}
			return rec.Close()
		})
		scanner.AddObserver(rec)
		logger.Info("Recording trace", "file", r.Trace, "session", rec.Session())
	}

	if manual != nil {
		return sim.NewConsole(scanner, manual, table, out).Run(ctx, cancel)
	}

	scanner.AddObserver(scan.ObserverFunc(func(rep scan.Report) {
		for _, line := range sim.FormatReport(rep, table) {
			fmt.Fprintln(out, line)
		}
	}))
	// Run past the end of the script so the final releases settle.
	total := uint64(player.Ticks() + scanner.Context().Debouncer.Window() + 1)
	logger.Info("Playing script", "file", r.Script, "ticks", total, "realtime", r.Realtime)
	if r.Realtime {
		runCtx, stopRun := context.WithCancel(ctx)
		defer stopRun()
		scanner.AddObserver(scan.ObserverFunc(func(rep scan.Report) {
			if rep.Tick >= total {
				stopRun()
			}
		}))
		done := make(chan struct{})
		go func() {
			defer close(done)
			publishFrames(runCtx, feed, handoff, g, scanner.Period(), logger)
		}()
		err := scanner.Run(runCtx)
		stopRun()
		<-done
		if err != nil {
			return err
		}
	} else {
		for scanner.Context().Tick < total && ctx.Err() == nil {
			scanner.Tick()
		}
	}

	st := scanner.Context().Stats
	logger.Info("Script finished", "ticks", st.Ticks, "events", st.Events,
		"read_failures", st.ReadFailures, "violations", st.InvariantViolations,
		"layer_overflows", st.LayerOverflows, "report_overflows", st.ReportOverflows,
		"transport_errors", st.TransportErrors)
	return nil
}

// handoffSlots is the frame ring capacity between the producer and the scan
// loop.
const handoffSlots = 4

// publishFrames samples src once per period and publishes each frame to h
// until ctx is cancelled. Failed reads publish nothing, so the scan loop sees
// ErrNoData for that tick.
func publishFrames(ctx context.Context, src matrix.Sampler, h *matrix.Handoff, g matrix.Grid, period time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	f := matrix.NewFrame(g)
	var dropped uint64
	for {
		select {
		case <-ctx.Done():
			if dropped > 0 {
				logger.Debug("Frame producer stopped", "dropped", dropped)
			}
			return
		case <-ticker.C:
			if err := src.Sample(f); err != nil {
				logger.Debug("Sensor read failed", "error", err)
				continue
			}
			if !h.Publish(f) {
				dropped++
			}
		}
	}
}

func (r *Run) attach(ctx context.Context, logger *slog.Logger) (*viiperlink.Link, error) {
	cfg := viiperlink.DefaultConfig()
	cfg.Password = r.Viiper.Password
	if r.Viiper.Timeout > 0 {
		cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout = r.Viiper.Timeout, r.Viiper.Timeout, r.Viiper.Timeout
	}
	client := viiperlink.New(r.Viiper.Addr, &cfg)
	ping, err := client.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("ping VIIPER server %s: %w", r.Viiper.Addr, err)
	}
	logger.Info("Connected to VIIPER server", "addr", r.Viiper.Addr, "server", ping.Server, "version", ping.Version)

	var opts viiperlink.CreateOptions
	if r.Viiper.Vendor != 0 {
		opts.IDVendor = &r.Viiper.Vendor
	}
	if r.Viiper.Product != 0 {
		opts.IDProduct = &r.Viiper.Product
	}
	return viiperlink.Attach(ctx, client, r.Viiper.Bus, &opts, logger.With("component", "viiper"))
}

func loadTable(path string) (*layout.Table, error) {
	if path == "" {
		return layout.Necoboard(), nil
	}
	return layout.Load(path)
}

// rawTransport hex-dumps every report to the raw logger.
type rawTransport struct {
	raw log.RawLogger
	enc emitter.Encoding
}

func (t rawTransport) SendKeyboard(r hid.KeyboardReport) error {
	if t.raw == nil {
		return nil
	}
	t.raw.Log("KBD", emitter.EncodeKeyboard(r, t.enc))
	return nil
}

func (t rawTransport) SendConsumer(r hid.ConsumerReport) error {
	if t.raw == nil {
		return nil
	}
	t.raw.Log("CON", r.BuildReport())
	return nil
}
