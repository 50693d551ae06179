package cmd_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/internal/cmd"
	"github.com/necocen/necoboard/internal/log"
	"github.com/necocen/necoboard/layout"
)

const lowerScript = `name: lower-q
steps:
  - ticks: 1
  - press: [LOWER, Q]
    ticks: 3
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseRun() cmd.Run {
	return cmd.Run{
		Threshold: 40,
		Seed:      1,
		Scan:      cmd.ScanConfig{Period: time.Millisecond, Debounce: 3, Initial: "ignore", StackDepth: 4},
		Report:    cmd.ReportConfig{Rollover: 6, Overflow: "drop-newest", Resend: "on-change", Encoding: "wire"},
		Viiper:    cmd.ViiperConfig{Timeout: time.Second},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	r := baseRun()
	r.Script = writeFile(t, "script.yaml", lowerScript)
	r.Trace = filepath.Join(dir, "keys.trace")
	r.Report.Output = filepath.Join(dir, "reports.bin")

	var out, raw bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Execute(ctx, cancel, discardLogger(), log.NewRaw(&raw), &out))

	assert.Contains(t, out.String(), "tick 4: press   (0,1) 1")
	assert.Contains(t, out.String(), "tick 4: report  mods=0x00 keys=[1]")
	assert.Contains(t, out.String(), "tick 7: release (0,1) 1")
	assert.Contains(t, raw.String(), "KBD 3 bytes: 00 01 1e")

	reports, err := os.ReadFile(r.Report.Output)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 0x00, 0x00, // tick 1 keyboard
		0x02, 0x00, 0x00, // tick 1 consumer
		0x01, 0x00, 0x01, hid.Key1, // tick 4
		0x01, 0x00, 0x00, // tick 7
	}, reports)

	var shown bytes.Buffer
	show := cmd.TraceShow{File: r.Trace, Type: "event"}
	require.NoError(t, show.Execute(&shown))
	assert.Contains(t, shown.String(), "# session ")
	assert.Contains(t, shown.String(), "press   (0,1) 1")
	assert.Contains(t, shown.String(), "release (0,1) 1")
	assert.NotContains(t, shown.String(), "REPORT")
}

func TestRunScriptAnalog(t *testing.T) {
	r := baseRun()
	r.Script = writeFile(t, "script.yaml", lowerScript)
	r.Analog = true

	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Execute(ctx, cancel, discardLogger(), log.NewRaw(nil), &out))
	assert.Contains(t, out.String(), "tick 1: report  mods=0x00 keys=[]")
}

func TestRunScriptRealtime(t *testing.T) {
	r := baseRun()
	r.Script = writeFile(t, "script.yaml", lowerScript)
	r.Realtime = true

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Execute(ctx, cancel, discardLogger(), log.NewRaw(nil), &out))
	assert.Contains(t, out.String(), "tick 1:")
	assert.NoError(t, ctx.Err(), "run stops after the script instead of the deadline")
}

func TestRunReportsTraceWriteErrors(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	r := baseRun()
	r.Script = writeFile(t, "script.yaml", lowerScript)
	r.Trace = "/dev/full"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := r.Execute(ctx, cancel, discardLogger(), log.NewRaw(nil), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write trace /dev/full")
}

func TestRunRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *cmd.Run)
	}{
		{name: "missing script", modify: func(r *cmd.Run) { r.Script = filepath.Join(t.TempDir(), "none.yaml") }},
		{name: "unknown cell in script", modify: func(r *cmd.Run) {
			r.Script = writeFile(t, "bad.yaml", "steps:\n  - press: [Nope]\n")
		}},
		{name: "bad overflow policy", modify: func(r *cmd.Run) { r.Report.Overflow = "panic" }},
		{name: "bad encoding", modify: func(r *cmd.Run) { r.Report.Encoding = "morse" }},
		{name: "stack depth one", modify: func(r *cmd.Run) { r.Scan.StackDepth = 1 }},
		{name: "invalid layout", modify: func(r *cmd.Run) { r.Layout = "../../layout/testdata/bad_transparent.yaml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRun()
			r.Script = writeFile(t, "script.yaml", lowerScript)
			tt.modify(&r)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			assert.Error(t, r.Execute(ctx, cancel, discardLogger(), log.NewRaw(nil), io.Discard))
		})
	}
}

func TestLayoutCheck(t *testing.T) {
	var out bytes.Buffer
	c := cmd.LayoutCheck{File: "../../layout/testdata/gaming.toml"}
	require.NoError(t, c.Execute(discardLogger(), &out))
	assert.Contains(t, out.String(), "ok, 2x4 grid, 3 layers, 0 composite")

	bad := cmd.LayoutCheck{File: "../../layout/testdata/bad_transparent.yaml"}
	assert.ErrorIs(t, bad.Execute(discardLogger(), &out), layout.ErrTransparentBase)
}

func TestLayoutShowRoundTrips(t *testing.T) {
	for _, format := range []string{"yaml", "toml", "json"} {
		t.Run(format, func(t *testing.T) {
			var out bytes.Buffer
			c := cmd.LayoutShow{Format: format}
			require.NoError(t, c.Execute(&out))

			f, err := layout.ParseFormat(format)
			require.NoError(t, err)
			table, err := layout.Parse(out.Bytes(), f)
			require.NoError(t, err)
			assert.Equal(t, layout.Necoboard().Document(), table.Document())
		})
	}
}

func TestConfigInit(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "conf", "run.yaml")
	c := cmd.ConfigInit{Command: "run", Format: "yaml", Output: dest}
	got, err := c.Execute()
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var root map[string]any
	require.NoError(t, yaml.Unmarshal(data, &root))
	scan, ok := root["scan"].(map[string]any)
	require.True(t, ok, "scan section missing")
	assert.Equal(t, "1ms", scan["period"])
	assert.Equal(t, 4, scan["stack_depth"])
	report, ok := root["report"].(map[string]any)
	require.True(t, ok, "report section missing")
	assert.Equal(t, "drop-newest", report["overflow"])

	_, err = c.Execute()
	assert.Error(t, err, "existing file without --force")
	c.Force = true
	_, err = c.Execute()
	assert.NoError(t, err)
}
