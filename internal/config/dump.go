package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// AskForConfirmationDefaultYes prompts on cmd's output and reads the answer
// from its input. An empty answer counts as yes.
func AskForConfirmationDefaultYes(cmd *cobra.Command, s string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [Y/n]: ", s)

	response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && response == "" {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes", "":
		return true, nil
	default:
		return false, nil
	}
}

// DumpOption writes opt as yaml to outputPath, creating its directory.
// Without overwrite an existing file is only replaced after confirmation.
func DumpOption(cmd *cobra.Command, opt interface{}, outputPath string, overwrite bool) error {
	buffer, err := yaml.Marshal(opt)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	parentPath := path.Dir(outputPath)
	if err := os.MkdirAll(parentPath, 0o700); err != nil {
		return fmt.Errorf("config: cannot create directory %s: %w", parentPath, err)
	}

	if !overwrite {
		if _, err := os.Stat(outputPath); err == nil {
			ok, err := AskForConfirmationDefaultYes(cmd, "configuration "+outputPath+" already exist, overwrite?")
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if !ok {
				log.Infoln("abort")
				return nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: %w", err)
		}
	}

	log.Infoln("writing default configuration to", outputPath)
	if err := os.WriteFile(outputPath, buffer, 0o600); err != nil {
		return fmt.Errorf("config: cannot write configuration: %w", err)
	}
	return nil
}
