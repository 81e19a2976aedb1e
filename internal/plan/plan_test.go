package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikesmitty/mv2"
	"github.com/mikesmitty/mv2/host"
	"github.com/mikesmitty/mv2/script"
)

const digitalScript = `<script>
  <command>
    <type>2C</type>
    <value>00</value>
  </command>
  <command>
    <type>2C</type>
    <value>00</value>
  </command>
  <command>
    <type>2D</type>
    <value>00</value>
  </command>
</script>
`

func writePlan(t *testing.T, hcl string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MV2DigitalScript.xml"), []byte(digitalScript), 0o644))
	p := filepath.Join(dir, "plan.hcl")
	require.NoError(t, os.WriteFile(p, []byte(hcl), 0o644))
	return dir, p
}

func TestLoad(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir, path := writePlan(t, `
run "axes" {
  script = "MV2DigitalScript.xml"

  write "2C" {
    measurement_axis = "Bz"
    sensing_range    = 1
  }
  write "2C" {
    output           = "z"
    resolution       = 3
    sensing_range    = 3
    measurement_axis = "T"
  }
  write "2D" {
    value = "A5"
  }
}

run "check" {
  script = "MV2DigitalScript.xml"
  output = "check.xml"
  mode   = "status"
  radix  = "decimal"

  write "2C" {}
}
`)

	// --- Act ---
	p, err := Load(path)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, p.Runs, 2)

	axes := p.Runs[0]
	assert.Equal(t, "axes", axes.Name)
	assert.Equal(t, filepath.Join(dir, "MV2DigitalScript.xml"), axes.Script)
	assert.Equal(t, filepath.Join(dir, "MV2DigitalScript_temp.xml"), axes.Output)
	assert.Equal(t, ModeValues, axes.Mode)
	assert.Equal(t, script.Hex, axes.Radix)

	want := []script.Substitution{
		{Type: "2C", Value: "06"},
		{Type: "2C", Value: "FF"},
		{Type: "2D", Value: "A5"},
	}
	if diff := cmp.Diff(want, axes.Substitutions()); diff != "" {
		t.Fatalf("substitutions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, mv2.Settings{MeasurementAxis: mv2.AxisBz, SensingRange: mv2.Range300mT}, axes.Writes[0].Settings)

	check := p.Runs[1]
	assert.Equal(t, ModeStatus, check.Mode)
	assert.Equal(t, script.Decimal, check.Radix)
	assert.Equal(t, filepath.Join(dir, "check.xml"), check.Output)
	assert.Equal(t, []script.Substitution{{Type: "2C", Value: "00"}}, check.Substitutions())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		hcl   string
		check func(t *testing.T, err error)
	}{
		{
			name: "invalid option",
			hcl: `
run "a" {
  script = "s.xml"
  write "2C" { measurement_axis = "invalid" }
}`,
			check: func(t *testing.T, err error) {
				var invalid *mv2.InvalidOptionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, mv2.FieldMeasurementAxis, invalid.Field)
			},
		},
		{
			name: "unknown field",
			hcl: `
run "a" {
  script = "s.xml"
  write "2C" { gain = 2 }
}`,
			check: func(t *testing.T, err error) {
				var unknown *mv2.UnknownFieldError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, "gain", unknown.Name)
			},
		},
		{
			name: "bool option",
			hcl: `
run "a" {
  script = "s.xml"
  write "2C" { output = true }
}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "bool")
			},
		},
		{
			name: "value and options",
			hcl: `
run "a" {
  script = "s.xml"
  write "2C" {
    value  = "01"
    output = "x"
  }
}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "cannot be combined")
			},
		},
		{
			name: "write to read command",
			hcl: `
run "a" {
  script = "s.xml"
  write "1C" { output = "x" }
}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "command 1C reads a register")
			},
		},
		{
			name: "unknown mode",
			hcl: `
run "a" {
  script = "s.xml"
  mode   = "stream"
}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, `unknown mode "stream"`)
			},
		},
		{
			name: "duplicate run",
			hcl:  `run "a" { script = "s.xml" }` + "\n" + `run "a" { script = "s.xml" }`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "duplicate run")
			},
		},
		{
			name: "output overwrites script",
			hcl: `
run "a" {
  script = "s.xml"
  output = "s.xml"
}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "overwrite")
			},
		},
		{
			name: "missing script",
			hcl:  `run "a" { }`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to decode")
			},
		},
		{
			name: "syntax error",
			hcl:  `run "a" {`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to parse")
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, path := writePlan(t, tc.hcl)
			_, err := Load(path)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

type fakeRunner struct {
	scripts []string
	status  int
	fail    error
	// interrupted makes Measure return the rows so far with fail.
	interrupted bool
}

func (f *fakeRunner) Measure(_ context.Context, s string) (*host.Result, error) {
	f.scripts = append(f.scripts, s)
	if f.interrupted {
		return &host.Result{Rows: [][]int{{1, 2, 3}}, MXRPath: "mxr_files/newMXR_0.mxr", Interrupted: true}, f.fail
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return &host.Result{Rows: [][]int{{1, 2, 3}}, MXRPath: "mxr_files/newMXR_0.mxr"}, nil
}

func (f *fakeRunner) Status(_ context.Context, s string) (int, error) {
	f.scripts = append(f.scripts, s)
	return f.status, f.fail
}

func TestExecute(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir, path := writePlan(t, `
run "bx" {
  script = "MV2DigitalScript.xml"
  write "2C" {
    measurement_axis = "Bx"
    resolution       = 3
  }
  write "2C" {
    measurement_axis = "By"
    resolution       = 3
  }
}
run "status" {
  script = "MV2DigitalScript.xml"
  output = "status.xml"
  mode   = "status"
  write "2D" { value = "7F" }
}
`)
	p, err := Load(path)
	require.NoError(t, err)
	runner := &fakeRunner{status: 2}

	// --- Act ---
	results, err := Execute(context.Background(), p, runner)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, [][]int{{1, 2, 3}}, results[0].Rows)
	assert.Equal(t, "mxr_files/newMXR_0.mxr", results[0].MXRPath)
	assert.Equal(t, 2, results[1].ExitCode)
	assert.Equal(t, []string{
		filepath.Join(dir, "MV2DigitalScript_temp.xml"),
		filepath.Join(dir, "status.xml"),
	}, runner.scripts)

	b, err := os.ReadFile(filepath.Join(dir, "MV2DigitalScript_temp.xml"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "<value>30</value>"))
	assert.Equal(t, 1, strings.Count(string(b), "<value>31</value>"))

	b, err = os.ReadFile(filepath.Join(dir, "status.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "<value>7F</value>")
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	_, path := writePlan(t, `
run "one" {
  script = "MV2DigitalScript.xml"
  write "2C" { measurement_axis = "Bz" }
}
run "two" {
  script = "MV2DigitalScript.xml"
  write "2C" { measurement_axis = "T" }
}
`)
	p, err := Load(path)
	require.NoError(t, err)
	boom := errors.New("boom")
	runner := &fakeRunner{fail: boom}

	results, err := Execute(context.Background(), p, runner)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, results)
	assert.Len(t, runner.scripts, 1)
}

func TestExecute_InterruptedKeepsRows(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	_, path := writePlan(t, `
run "one" {
  script = "MV2DigitalScript.xml"
  write "2C" { measurement_axis = "Bz" }
}
run "two" {
  script = "MV2DigitalScript.xml"
  write "2C" { measurement_axis = "T" }
}
`)
	p, err := Load(path)
	require.NoError(t, err)
	runner := &fakeRunner{fail: context.Canceled, interrupted: true}

	// --- Act ---
	results, err := Execute(context.Background(), p, runner)

	// --- Assert ---
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.True(t, results[0].Interrupted)
	assert.Equal(t, [][]int{{1, 2, 3}}, results[0].Rows)
	assert.Len(t, runner.scripts, 1)
}

func TestExecute_UnmatchedType(t *testing.T) {
	t.Parallel()

	_, path := writePlan(t, `
run "one" {
  script = "MV2DigitalScript.xml"
  write "2E" { measurement_axis = "Bz" }
}
`)
	p, err := Load(path)
	require.NoError(t, err)
	runner := &fakeRunner{}

	_, err = Execute(context.Background(), p, runner)
	var unmatched *script.UnmatchedError
	require.ErrorAs(t, err, &unmatched)
	assert.Empty(t, runner.scripts, "the host must not run on a partially rewritten script")
}

func TestExecute_Cancelled(t *testing.T) {
	t.Parallel()

	_, path := writePlan(t, `run "one" { script = "MV2DigitalScript.xml" }`)
	p, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Execute(ctx, p, &fakeRunner{})
	assert.ErrorIs(t, err, context.Canceled)
}
