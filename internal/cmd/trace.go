package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/necocen/necoboard/internal/sim"
	"github.com/necocen/necoboard/trace"
)

// TraceCommand groups trace subcommands.
type TraceCommand struct {
	Show TraceShow `cmd:"" help:"Print the records of a trace file"`
}

type TraceShow struct {
	File    string `arg:"" help:"Trace file written by run --trace" type:"existingfile"`
	Session string `help:"Only records of this session"`
	Type    string `help:"Only records of this type (event, report, fault)"`
	Cell    string `help:"Only events of this cell (\"r,c\" or a base-layer token)"`
	Layout  string `help:"Layout used to resolve --cell tokens; the built-in necoboard layout when empty"`
	From    uint64 `help:"First tick to show"`
	To      uint64 `help:"Last tick to show; 0 shows to the end"`
}

func (c *TraceShow) Run() error {
	return c.Execute(os.Stdout)
}

// Filter builds the record filter from the flags.
func (c *TraceShow) Filter() (trace.Filter, error) {
	f := trace.Filter{Session: c.Session, FromTick: c.From, ToTick: c.To}
	if c.Type != "" {
		t, err := trace.ParseRecordType(c.Type)
		if err != nil {
			return f, err
		}
		f.Type = &t
	}
	if c.Cell != "" {
		table, err := loadTable(c.Layout)
		if err != nil {
			return f, err
		}
		cell, err := sim.ParseCell(c.Cell, table)
		if err != nil {
			return f, err
		}
		f.Cell = &cell
	}
	return f, nil
}

func (c *TraceShow) Execute(out io.Writer) error {
	filter, err := c.Filter()
	if err != nil {
		return err
	}
	r, err := trace.Open(c.File, filter)
	if err != nil {
		return err
	}
	defer r.Close()

	session := ""
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read trace: %w", err)
		}
		if rec.Session != session {
			session = rec.Session
			fmt.Fprintf(out, "# session %s\n", session)
		}
		fmt.Fprintln(out, rec.String())
	}
}
