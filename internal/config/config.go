package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mikesmitty/mv2"
	"github.com/mikesmitty/mv2/host"
	"github.com/mikesmitty/mv2/mxr"
)

const DefaultAppName = "mv2"
const DefaultConfigName = "config"
const DefaultRadix = "hex"

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config", DefaultAppName, DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"

type HostOpt struct {
	Executable string        `yaml:"executable" mapstructure:"executable"`
	Schema     string        `yaml:"schema" mapstructure:"schema"`
	Port       string        `yaml:"port" mapstructure:"port"`
	Baud       int           `yaml:"baud" mapstructure:"baud"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type MXROpt struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type MV2Opt struct {
	Host     HostOpt      `yaml:"host" mapstructure:"host"`
	MXR      MXROpt       `yaml:"mxr" mapstructure:"mxr"`
	Register mv2.Settings `yaml:"register" mapstructure:"register"`
	Radix    string       `yaml:"radix" mapstructure:"radix"`
	Debug    bool         `yaml:"debug" mapstructure:"debug"`
}

type MV2Desc struct {
	Opt   MV2Opt
	Viper *viper.Viper
}

func NewMV2Desc() MV2Desc {
	return MV2Desc{
		Opt:   NewMV2Opt(),
		Viper: nil,
	}
}

func NewMV2Opt() MV2Opt {
	h := host.DefaultOptions()
	return MV2Opt{
		Host: HostOpt{
			Executable: h.Executable,
			Schema:     h.Schema,
			Port:       h.Port,
			Baud:       host.DefaultBaud,
			Timeout:    h.Timeout,
		},
		MXR:      MXROpt{Dir: mxr.DefaultDir},
		Register: mv2.DefaultSettings(),
		Radix:    DefaultRadix,
		Debug:    false,
	}
}

// HostOpts converts the host section for host.New.
func (o MV2Opt) HostOpts() *host.Opts {
	return &host.Opts{
		Executable: o.Host.Executable,
		Schema:     o.Host.Schema,
		Port:       o.Host.Port,
		Timeout:    o.Host.Timeout,
	}
}

// Parse loads the configuration of cmd. The file is taken, in order, from the
// --config flag, the MV2_CONFIG environment variable or the search paths;
// environment variables (MV2_HOST_PORT, ...) and flags override its values.
func (o *MV2Desc) Parse(cmd *cobra.Command) error {
	def := NewMV2Opt()
	vipCfg := viper.New()
	vipCfg.SetDefault("host.executable", def.Host.Executable)
	vipCfg.SetDefault("host.schema", def.Host.Schema)
	vipCfg.SetDefault("host.port", def.Host.Port)
	vipCfg.SetDefault("host.baud", def.Host.Baud)
	vipCfg.SetDefault("host.timeout", def.Host.Timeout)
	vipCfg.SetDefault("mxr.dir", def.MXR.Dir)
	vipCfg.SetDefault("register.measurement_axis", string(def.Register.MeasurementAxis))
	vipCfg.SetDefault("register.sensing_range", string(def.Register.SensingRange))
	vipCfg.SetDefault("register.resolution", string(def.Register.Resolution))
	vipCfg.SetDefault("register.output", string(def.Register.Output))
	vipCfg.SetDefault("radix", def.Radix)
	vipCfg.SetDefault("debug", false)

	explicit := false
	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
		explicit = true
	} else {
		configFileEnv := os.Getenv("MV2_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
			explicit = true
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
		}
	}

	vipCfg.SetEnvPrefix(DefaultAppName)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	_ = vipCfg.BindPFlag("host.executable", cmd.Flags().Lookup("executable"))
	_ = vipCfg.BindPFlag("host.schema", cmd.Flags().Lookup("schema"))
	_ = vipCfg.BindPFlag("host.port", cmd.Flags().Lookup("port"))
	_ = vipCfg.BindPFlag("host.timeout", cmd.Flags().Lookup("timeout"))
	_ = vipCfg.BindPFlag("mxr.dir", cmd.Flags().Lookup("mxr-dir"))
	_ = vipCfg.BindPFlag("radix", cmd.Flags().Lookup("radix"))
	_ = vipCfg.BindPFlag("debug", cmd.Flags().Lookup("debug"))

	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
		log.Debugln("no config file found, using defaults")
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	o.Viper = vipCfg
	return nil
}

func (o *MV2Desc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SaveConfig writes o.Opt back to the configuration file that Parse read.
func (o *MV2Desc) SaveConfig() error {
	if o.Viper == nil {
		return errors.New("config: viper is nil")
	}
	if o.Viper.ConfigFileUsed() == "" {
		return errors.New("config: no configuration file in use, create one with init")
	}
	s, err := yaml.Marshal(o.Opt)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return os.WriteFile(o.Viper.ConfigFileUsed(), s, 0o644)
}

// InitCfg writes the effective configuration to --output, or prints it with
// --print.
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewMV2Desc()
	if err := desc.Parse(cmd); err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, err := yaml.Marshal(desc.Opt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(configBuffer))
		return err
	}
	return DumpOption(cmd, desc.Opt, outputPath, overwriteFlag)
}
