package sim

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/scan"
)

// Console is an interactive driver: the user presses and releases cells on
// a Manual sampler and advances the scanner tick by tick.
type Console struct {
	scanner *scan.Scanner
	manual  *Manual
	table   *layout.Table
	out     io.Writer
}

// NewConsole drives scanner, whose sampler must be manual.
func NewConsole(scanner *scan.Scanner, manual *Manual, table *layout.Table, out io.Writer) *Console {
	return &Console{scanner: scanner, manual: manual, table: table, out: out}
}

// Run reads commands with line editing until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "necoboard> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return nil
		}
		if c.Exec(line) {
			cancel()
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should quit.
func (c *Console) Exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "press", "p":
		c.cmdSet(true, args)
	case "release", "r":
		if len(args) == 1 && args[0] == "all" {
			c.manual.ReleaseAll()
			return false
		}
		c.cmdSet(false, args)
	case "tap":
		c.cmdTap(args)
	case "tick", "t":
		c.cmdTick(args)
	case "fail":
		c.cmdFail(args)
	case "state", "s":
		c.cmdState()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
necoboard console:
  press <cell>...    - Press cells ("r,c" or a base-layer token such as Q or LOWER)
  release <cell>...  - Release cells ("release all" releases everything)
  tap <cell>...      - Press, settle, release and settle
  tick [n]           - Advance n scan ticks (default 1)
  fail [on|off]      - Make matrix reads fail
  state              - Show held keys, layers and counters
  quit               - Exit`)
}

func (c *Console) cmdSet(active bool, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: press|release <cell>...")
		return
	}
	cells, err := ParseCells(args, c.table)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.manual.Set(active, cells...)
}

// settleTicks is enough ticks for a debounced transition to complete.
func (c *Console) settleTicks() int {
	return c.scanner.Context().Debouncer.Window() + 1
}

func (c *Console) cmdTap(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: tap <cell>...")
		return
	}
	cells, err := ParseCells(args, c.table)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.manual.Set(true, cells...)
	c.tick(c.settleTicks())
	c.manual.Set(false, cells...)
	c.tick(c.settleTicks())
}

func (c *Console) cmdTick(args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			fmt.Fprintf(c.out, "Error: invalid tick count %q\n", args[0])
			return
		}
		n = v
	}
	c.tick(n)
}

func (c *Console) cmdFail(args []string) {
	on := !c.manual.Failing()
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			on = true
		case "off", "false", "0":
			on = false
		default:
			fmt.Fprintf(c.out, "Error: expected on or off, got %q\n", args[0])
			return
		}
	}
	c.manual.SetFailing(on)
	fmt.Fprintf(c.out, "Matrix reads failing: %v\n", on)
}

func (c *Console) cmdState() {
	ctx := c.scanner.Context()
	var held []string
	for _, e := range ctx.Sequencer.Held().AppendBySeq(nil) {
		held = append(held, fmt.Sprintf("%s=%s", e.Cell, c.table.Token(e.Key)))
	}
	var layers []string
	for _, id := range ctx.Stack.Layers() {
		name := c.table.Layer(id).Name
		if ctx.Stack.Toggled(id) {
			name += "*"
		}
		layers = append(layers, name)
	}
	effective := c.scanner.Resolver().Effective(ctx.Stack)
	st := ctx.Stats
	fmt.Fprintf(c.out, "tick:     %d\n", ctx.Tick)
	fmt.Fprintf(c.out, "pressed:  %v\n", c.manual.Active())
	fmt.Fprintf(c.out, "held:     [%s]\n", strings.Join(held, " "))
	fmt.Fprintf(c.out, "layers:   [%s] effective=%s\n", strings.Join(layers, " "), c.table.Layer(effective).Name)
	fmt.Fprintf(c.out, "counters: events=%d read_failures=%d violations=%d layer_overflows=%d report_overflows=%d transport_errors=%d\n",
		st.Events, st.ReadFailures, st.InvariantViolations, st.LayerOverflows, st.ReportOverflows, st.TransportErrors)
}

func (c *Console) tick(n int) {
	for range n {
		for _, line := range FormatReport(c.scanner.Tick(), c.table) {
			fmt.Fprintln(c.out, line)
		}
	}
}

// FormatReport renders the observable output of one tick, one line per
// event, sent report or failure. Quiet ticks render nothing.
func FormatReport(rep scan.Report, table *layout.Table) []string {
	var out []string
	prefix := fmt.Sprintf("tick %d:", rep.Tick)
	if rep.ReadErr != nil {
		out = append(out, fmt.Sprintf("%s read failed: %v", prefix, rep.ReadErr))
	}
	for _, ev := range rep.Events {
		out = append(out, fmt.Sprintf("%s %-7s %s %s", prefix, ev.Kind, ev.Cell, table.Token(ev.Key)))
	}
	if rep.Result.SentKeyboard {
		kb := rep.Result.Keyboard
		names := make([]string, len(kb.Keys))
		for i, k := range kb.Keys {
			names[i] = hid.KeyName(k)
		}
		line := fmt.Sprintf("%s report  mods=0x%02x keys=[%s]", prefix, kb.Modifiers, strings.Join(names, " "))
		if rep.Result.Overflow {
			line += " overflow"
		}
		out = append(out, line)
	}
	if rep.Result.SentConsumer {
		name := "none"
		if u := rep.Result.Consumer.Usage; u != 0 {
			name = hid.ConsumerName(u)
		}
		out = append(out, fmt.Sprintf("%s consumer %s", prefix, name))
	}
	if rep.SendErr != nil {
		out = append(out, fmt.Sprintf("%s send failed: %v", prefix, rep.SendErr))
	}
	return out
}
