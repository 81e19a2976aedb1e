package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mikesmitty/mv2"
	"github.com/mikesmitty/mv2/internal/config"
)

func EncodeCmdFlags(cmd *cobra.Command) {
	optionFlags(cmd)
	cmd.Flags().String("radix", "", "value format: hex or decimal")
	cmd.Flags().BoolP("verbose", "v", false, "also print the register and its physical meaning")
	cmd.Flags().Bool("save", false, "store the options as register defaults in the config file in use")
}

func ScriptCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("in", "", "script to read")
	cmd.Flags().String("out", "", "script to write")
	cmd.Flags().StringArrayP("write", "w", nil, "TYPE:VALUE or [TYPE:]field=option,... (repeatable, applied in order; TYPE defaults to "+mv2.CmdWriteRegister0.String()+")")
	cmd.Flags().Bool("all", false, "rewrite every command of each type instead of successive ones")
	cmd.Flags().String("radix", "", "value format: hex or decimal")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
}

func RunCmdFlags(cmd *cobra.Command) {
	hostFlags(cmd)
	cmd.Flags().Bool("status", false, "print the host exit code instead of its values")
}

func PlanCmdFlags(cmd *cobra.Command) {
	hostFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "only write the rewritten scripts")
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output path")
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mv2",
		Short:         "encode MV2 register settings and drive MV2Host",
		Long:          "encode MV2 digital-mode register settings, rewrite MV2Host scripts and run measurements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "toggle debug logging")

	encodeCmd := &cobra.Command{
		Use:     "encode",
		Short:   "encode sensor options into the register value",
		Example: "  mv2 encode --measurement-axis Bz --sensing-range 1\n  mv2 encode --output z --resolution 3 --radix decimal -v",
		Args:    cobra.NoArgs,
		RunE:    EncodeCmdRunE,
	}
	EncodeCmdFlags(encodeCmd)

	decodeCmd := &cobra.Command{
		Use:     "decode VALUE",
		Short:   "decode a register value into sensor options",
		Example: "  mv2 decode 0x32",
		Args:    cobra.ExactArgs(1),
		RunE:    DecodeCmdRunE,
	}

	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "rewrite command values in an MV2Host script",
		Long: `script copies --in to --out, replacing the <value> of commands.
Each --write addresses the next command of its type, in order, so repeating
a type rewrites successive commands. With --all, every command of the type
gets the value.`,
		Example: `  mv2 script --in MV2DigitalScript.xml --out temp.xml \
    -w measurement_axis=Bx,resolution=3 -w 2C:measurement_axis=By,resolution=3 -w 2D:FF`,
		Args: cobra.NoArgs,
		RunE: ScriptCmdRunE,
	}
	ScriptCmdFlags(scriptCmd)

	runCmd := &cobra.Command{
		Use:     "run SCRIPT",
		Short:   "run MV2Host on a script and print its values",
		Example: "  mv2 run temp.xml --port /dev/ttyUSB0",
		Args:    cobra.ExactArgs(1),
		RunE:    RunCmdRunE,
	}
	RunCmdFlags(runCmd)

	planCmd := &cobra.Command{
		Use:     "plan FILE",
		Short:   "execute a measurement plan",
		Example: "  mv2 plan axes.hcl",
		Args:    cobra.ExactArgs(1),
		RunE:    PlanCmdRunE,
	}
	PlanCmdFlags(planCmd)

	probeCmd := &cobra.Command{
		Use:   "probe [PORT]",
		Short: "check that the MV2 Arduino serial port can be opened",
		Long: `probe opens and closes the serial port MV2Host would use.
Opening the port resets most Arduino boards.`,
		Args: cobra.MaximumNArgs(1),
		RunE: ProbeCmdRunE,
	}
	probeCmd.Flags().StringP("port", "p", "", "serial port of the MV2 Arduino")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "init create a configuration template",
		Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/mv2/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
		Example: `  mv2 init --print
  mv2 init -o /path/to/config.yaml -y`,
		Args: cobra.NoArgs,
		RunE: config.InitCfg,
	}
	InitCmdFlags(initCmd)

	rootCmd.AddCommand(encodeCmd, decodeCmd, scriptCmd, runCmd, planCmd, probeCmd, initCmd)
	return rootCmd
}
