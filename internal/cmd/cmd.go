package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mikesmitty/mv2"
	"github.com/mikesmitty/mv2/host"
	"github.com/mikesmitty/mv2/internal/config"
	"github.com/mikesmitty/mv2/internal/plan"
	"github.com/mikesmitty/mv2/mxr"
	"github.com/mikesmitty/mv2/script"
)

func loadConfig(cmd *cobra.Command) (*config.MV2Desc, error) {
	desc := config.NewMV2Desc()
	if err := desc.Parse(cmd); err != nil {
		return nil, err
	}
	desc.PostParse()
	return &desc, nil
}

func newHost(opt config.MV2Opt) (*host.Host, error) {
	return host.New(opt.HostOpts(), mxr.NewAllocator(opt.MXR.Dir))
}

// settingsFromFlags starts from the configured register and applies the
// option flags that were set on the command line.
func settingsFromFlags(cmd *cobra.Command, base mv2.Settings) (mv2.Settings, error) {
	s := base
	for _, f := range mv2.Fields() {
		name := flagName(f)
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return s, err
		}
		if err := s.Set(f, mv2.Option(v)); err != nil {
			return s, err
		}
	}
	return s, nil
}

func flagName(f mv2.Field) string {
	return strings.ReplaceAll(string(f), "_", "-")
}

func optionFlags(cmd *cobra.Command) {
	for _, f := range mv2.Fields() {
		opts, _ := mv2.Options(f)
		valid := make([]string, len(opts))
		for i, o := range opts {
			valid[i] = string(o)
		}
		cmd.Flags().String(flagName(f), "", fmt.Sprintf("%s option (%s)", f, strings.Join(valid, ", ")))
	}
}

func radixFrom(cmd *cobra.Command, opt config.MV2Opt) (script.Radix, error) {
	if cmd.Flags().Changed("radix") {
		v, _ := cmd.Flags().GetString("radix")
		return script.ParseRadix(v)
	}
	return script.ParseRadix(opt.Radix)
}

func EncodeCmdRunE(cmd *cobra.Command, _ []string) error {
	desc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := settingsFromFlags(cmd, desc.Opt.Register)
	if err != nil {
		return err
	}
	r, err := mv2.Encode(s)
	if err != nil {
		return err
	}
	radix, err := radixFrom(cmd, desc.Opt)
	if err != nil {
		return err
	}
	log.WithField("register", r.Describe()).Debug("encoded")

	if save, _ := cmd.Flags().GetBool("save"); save {
		desc.Opt.Register = mv2.Decode(r)
		if err := desc.SaveConfig(); err != nil {
			return err
		}
		log.Infoln("register defaults saved to", desc.Viper.ConfigFileUsed())
	}

	out := cmd.OutOrStdout()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		_, err = fmt.Fprintf(out, "%s\t%s\t%s\n", script.Format(r, radix), r, r.Describe())
		return err
	}
	_, err = fmt.Fprintln(out, script.Format(r, radix))
	return err
}

func DecodeCmdRunE(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	r, err := mv2.ParseRegister(args[0])
	if err != nil {
		return err
	}
	log.WithField("register", r).Debug("decoding")
	b, err := yaml.Marshal(mv2.Decode(r))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "# %s %s\n", r, r.Describe()); err != nil {
		return err
	}
	_, err = out.Write(b)
	return err
}

// parseWrite reads TYPE:VALUE or [TYPE:]field=option,field=option. Without a
// type, options go to the configuration register write command.
func parseWrite(s string, radix script.Radix) (script.Substitution, error) {
	typ, rest, ok := strings.Cut(s, ":")
	if !ok && strings.Contains(s, "=") {
		typ, rest, ok = mv2.CmdWriteRegister0.String(), s, true
	}
	if !ok || typ == "" || rest == "" {
		return script.Substitution{}, fmt.Errorf("invalid write %q, want TYPE:VALUE or [TYPE:]field=option,...", s)
	}
	if err := mv2.CheckWrite(typ); err != nil {
		return script.Substitution{}, err
	}
	if !strings.Contains(rest, "=") {
		return script.Substitution{Type: typ, Value: rest}, nil
	}
	m := make(map[string]string)
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return script.Substitution{}, fmt.Errorf("invalid option %q in write %q", kv, s)
		}
		m[strings.ReplaceAll(strings.TrimSpace(k), "-", "_")] = strings.TrimSpace(v)
	}
	settings, err := mv2.SettingsFromMap(m)
	if err != nil {
		return script.Substitution{}, err
	}
	r, err := mv2.Encode(settings)
	if err != nil {
		return script.Substitution{}, err
	}
	return script.Substitution{Type: typ, Value: script.Format(r, radix)}, nil
}

func ScriptCmdRunE(cmd *cobra.Command, _ []string) error {
	desc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	radix, err := radixFrom(cmd, desc.Opt)
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	writes, _ := cmd.Flags().GetStringArray("write")
	all, _ := cmd.Flags().GetBool("all")

	subs := make([]script.Substitution, 0, len(writes))
	for _, w := range writes {
		sub, err := parseWrite(w, radix)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	err = script.RewriteFile(in, out, func(lines []string) error {
		if !all {
			return script.Substitute(lines, subs)
		}
		changes := make(map[string]string, len(subs))
		for _, s := range subs {
			changes[s.Type] = s.Value
		}
		return script.SubstituteAll(lines, changes)
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"in": in, "out": out, "writes": len(subs)}).Info("script written")
	return nil
}

func RunCmdRunE(cmd *cobra.Command, args []string) error {
	desc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	h, err := newHost(desc.Opt)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if status, _ := cmd.Flags().GetBool("status"); status {
		code, err := h.Status(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
		return err
	}

	res, err := h.Measure(ctx, args[0])
	if res == nil {
		return err
	}
	log.WithFields(log.Fields{"mxr": res.MXRPath, "rows": len(res.Rows), "interrupted": res.Interrupted}).Info("measurement done")
	if perr := printRows(cmd.OutOrStdout(), res.Rows); perr != nil {
		return perr
	}
	// The configured timeout is how repeating scripts end.
	if errors.Is(err, context.DeadlineExceeded) && desc.Opt.Host.Timeout > 0 {
		return nil
	}
	return err
}

func printRows(w io.Writer, rows [][]int) error {
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, host.FormatRow(row)); err != nil {
			return err
		}
	}
	return nil
}

func PlanCmdRunE(cmd *cobra.Command, args []string) error {
	desc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		for _, r := range p.Runs {
			if err := r.Prepare(cmd.Context()); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Name, r.Output); err != nil {
				return err
			}
		}
		return nil
	}

	h, err := newHost(desc.Opt)
	if err != nil {
		return err
	}
	results, err := plan.Execute(cmd.Context(), p, h)
	out := cmd.OutOrStdout()
	for _, res := range results {
		if res.Mode == plan.ModeStatus {
			if _, perr := fmt.Fprintf(out, "# %s exit=%d\n", res.Name, res.ExitCode); perr != nil {
				return perr
			}
			continue
		}
		if _, perr := fmt.Fprintf(out, "# %s mxr=%s\n", res.Name, res.MXRPath); perr != nil {
			return perr
		}
		if perr := printRows(out, res.Rows); perr != nil {
			return perr
		}
	}
	return err
}

func ProbeCmdRunE(cmd *cobra.Command, args []string) error {
	desc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	port := desc.Opt.Host.Port
	if len(args) > 0 {
		port = args[0]
	}
	log.Infoln("probing", port)
	if err := host.Probe(port, desc.Opt.Host.Baud); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", port)
	return err
}

func hostFlags(cmd *cobra.Command) {
	cmd.Flags().String("executable", "", "path of the MV2Host binary")
	cmd.Flags().String("schema", "", "path of the MV2 script schema (xsd)")
	cmd.Flags().StringP("port", "p", "", "serial port of the MV2 Arduino")
	cmd.Flags().Duration("timeout", 0, "abort a host run after this long (0 disables)")
	cmd.Flags().String("mxr-dir", "", "directory receiving MXR files")
}
