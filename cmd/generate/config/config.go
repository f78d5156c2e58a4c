package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Mmx233/QCalc/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string // --config flag value
	force      bool

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate a client configuration file with every default spelled out",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "output config file path")
	Cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	return writeTemplate(configFile, force)
}

// writeTemplate writes the embedded client template to path. An existing
// file is kept unless overwrite is set.
func writeTemplate(path string, overwrite bool) error {
	logger := log.With().Str("com", "generate").Logger()

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}

	content, err := examples.ClientConfig()
	if err != nil {
		return fmt.Errorf("load client config template: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", path).Msg("generated client configuration")
	return nil
}
