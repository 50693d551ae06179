package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/necocen/necoboard/layout"
)

// LayoutCommand groups layout subcommands.
type LayoutCommand struct {
	Check LayoutCheck `cmd:"" help:"Validate a layout document"`
	Show  LayoutShow  `cmd:"" help:"Print a layout as a document"`
}

type LayoutCheck struct {
	File string `arg:"" help:"Layout document (yaml, toml or json)" type:"existingfile"`
}

func (c *LayoutCheck) Run(logger *slog.Logger) error {
	return c.Execute(logger, os.Stdout)
}

func (c *LayoutCheck) Execute(logger *slog.Logger, out io.Writer) error {
	t, err := layout.Load(c.File)
	if err != nil {
		logger.Error("Layout is invalid", "file", c.File)
		return err
	}
	fmt.Fprintf(out, "%s: ok, %dx%d grid, %d layers, %d composite\n",
		c.File, t.Grid().Rows, t.Grid().Cols, t.RegularLayers(), len(t.Composites()))
	return nil
}

type LayoutShow struct {
	File   string `arg:"" optional:"" help:"Layout document; the built-in necoboard layout when omitted" type:"existingfile"`
	Format string `help:"Output format" enum:"yaml,toml,json" default:"yaml"`
}

func (c *LayoutShow) Run() error {
	return c.Execute(os.Stdout)
}

func (c *LayoutShow) Execute(out io.Writer) error {
	t, err := loadTable(c.File)
	if err != nil {
		return err
	}
	format, err := layout.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	data, err := t.Document().Encode(format)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
