// Package plan loads and executes measurement plans.
//
// A plan is an HCL file made of ordered run blocks. Each run rewrites the
// values of selected commands in a script, using register values encoded
// from sensor options, then hands the rewritten script to MV2Host:
//
//	run "axes" {
//	  script = "MV2DigitalScript.xml"
//	  radix  = "hex"
//
//	  write "2C" {
//	    measurement_axis = "By"
//	    resolution       = 3
//	  }
//	  write "2D" { value = "FF" }
//	}
package plan

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/mikesmitty/mv2"
	"github.com/mikesmitty/mv2/script"
)

// Mode selects how a run's outcome is collected.
type Mode string

const (
	// ModeValues parses the comma separated values printed by the host.
	ModeValues Mode = "values"
	// ModeStatus only records the host's exit code.
	ModeStatus Mode = "status"
)

// Plan is an ordered list of runs.
type Plan struct {
	Path string
	Runs []*Run
}

// Run is one host invocation on a rewritten script.
type Run struct {
	Name   string
	Script string
	Output string
	Mode   Mode
	Radix  script.Radix
	Writes []Write
}

// Write sets the value of the next command of Type in the script. Type is
// usually mv2.CmdWriteRegister0 ("2C"), the digital configuration register.
type Write struct {
	Type     string
	Settings mv2.Settings
	Register mv2.Register
	// Raw is set when the block gave a literal value instead of options.
	Raw string
}

// Value is the text written into the script's <value> element.
func (w Write) Value(radix script.Radix) string {
	if w.Raw != "" {
		return w.Raw
	}
	return script.Format(w.Register, radix)
}

type hclPlanFile struct {
	Runs []*hclRun `hcl:"run,block"`
}

type hclRun struct {
	Name   string      `hcl:"name,label"`
	Script string      `hcl:"script"`
	Output *string     `hcl:"output,optional"`
	Mode   *string     `hcl:"mode,optional"`
	Radix  *string     `hcl:"radix,optional"`
	Writes []*hclWrite `hcl:"write,block"`
}

type hclWrite struct {
	Type    string   `hcl:"type,label"`
	Value   *string  `hcl:"value,optional"`
	Options hcl.Body `hcl:",remain"`
}

// Load parses the plan at path. Script paths are resolved relative to the
// plan file. Every write is encoded here, so an invalid option fails the
// whole plan before anything runs.
func Load(path string) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("plan: failed to parse %s: %w", path, diags)
	}

	var parsed hclPlanFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("plan: failed to decode %s: %w", path, diags)
	}

	base := filepath.Dir(path)
	p := &Plan{Path: path, Runs: make([]*Run, 0, len(parsed.Runs))}
	seen := make(map[string]bool, len(parsed.Runs))
	for _, hr := range parsed.Runs {
		if seen[hr.Name] {
			return nil, fmt.Errorf("plan: %s: duplicate run %q", path, hr.Name)
		}
		seen[hr.Name] = true

		r, err := newRun(hr, base)
		if err != nil {
			return nil, fmt.Errorf("plan: %s: run %q: %w", path, hr.Name, err)
		}
		p.Runs = append(p.Runs, r)
	}
	return p, nil
}

func newRun(hr *hclRun, base string) (*Run, error) {
	r := &Run{
		Name:   hr.Name,
		Script: resolve(base, hr.Script),
		Mode:   ModeValues,
	}
	if hr.Output != nil {
		r.Output = resolve(base, *hr.Output)
	} else {
		ext := filepath.Ext(r.Script)
		r.Output = strings.TrimSuffix(r.Script, ext) + "_temp" + ext
	}
	if r.Output == r.Script {
		return nil, fmt.Errorf("output would overwrite script %s", r.Script)
	}
	if hr.Mode != nil {
		switch m := Mode(*hr.Mode); m {
		case ModeValues, ModeStatus:
			r.Mode = m
		default:
			return nil, fmt.Errorf("unknown mode %q", *hr.Mode)
		}
	}
	if hr.Radix != nil {
		radix, err := script.ParseRadix(*hr.Radix)
		if err != nil {
			return nil, err
		}
		r.Radix = radix
	}

	for _, hw := range hr.Writes {
		w, err := newWrite(hw)
		if err != nil {
			return nil, err
		}
		r.Writes = append(r.Writes, w)
	}
	return r, nil
}

func newWrite(hw *hclWrite) (Write, error) {
	w := Write{Type: hw.Type}
	if err := mv2.CheckWrite(hw.Type); err != nil {
		return w, err
	}

	attrs, diags := hw.Options.JustAttributes()
	if diags.HasErrors() {
		return w, fmt.Errorf("write %q: %w", hw.Type, diags)
	}

	if hw.Value != nil {
		if len(attrs) > 0 {
			return w, fmt.Errorf("write %q: value cannot be combined with sensor options", hw.Type)
		}
		if *hw.Value == "" {
			return w, fmt.Errorf("write %q: empty value", hw.Type)
		}
		w.Raw = *hw.Value
		return w, nil
	}

	// Sort for a deterministic first error.
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opt, err := optionValue(attrs[name])
		if err != nil {
			return w, fmt.Errorf("write %q: %s: %w", hw.Type, name, err)
		}
		if err := w.Settings.Set(mv2.Field(name), opt); err != nil {
			return w, fmt.Errorf("write %q: %w", hw.Type, err)
		}
	}

	reg, err := mv2.Encode(w.Settings)
	if err != nil {
		return w, fmt.Errorf("write %q: %w", hw.Type, err)
	}
	w.Register = reg
	return w, nil
}

// optionValue evaluates an option attribute. Numbers and strings are both
// accepted, so resolution = 3 and output = "x" read naturally.
func optionValue(attr *hcl.Attribute) (mv2.Option, error) {
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("value is required")
	}
	if v.Type() == cty.Bool {
		return "", fmt.Errorf("unsuitable value type bool")
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return mv2.Option(s.AsString()), nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Substitutions lists the script substitutions of r in order.
func (r *Run) Substitutions() []script.Substitution {
	subs := make([]script.Substitution, len(r.Writes))
	for i, w := range r.Writes {
		subs[i] = script.Substitution{Type: w.Type, Value: w.Value(r.Radix)}
	}
	return subs
}

// Prepare writes the rewritten script of r to r.Output.
func (r *Run) Prepare(_ context.Context) error {
	return script.RewriteFile(r.Script, r.Output, func(lines []string) error {
		return script.Substitute(lines, r.Substitutions())
	})
}
