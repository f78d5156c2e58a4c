package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mmx233/QCalc/client"
	"github.com/Mmx233/QCalc/config"
	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	timeout    time.Duration
	fallback   string
	jsonOutput bool

	// stdout receives the operator lines and the JSON report
	stdout io.Writer = os.Stdout

	Cmd = &cobra.Command{
		Use:   "run <protocol://host:port/api>",
		Short: "Run one calculation session against a server",
		Long: `Run one calculation session against a server.

protocol is tcp, udp or any (tcp first, udp on transport failure),
api is text or binary. Example: qcalc run any://127.0.0.1:5000/binary`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTarget,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.Flags().DurationVar(&timeout, "timeout", 0, "receive timeout, overrides the config file")
	Cmd.Flags().StringVar(&fallback, "fallback", "", `fallback policy for "any": transport or any-failure`)
	Cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the final report as JSON")
}

// ExitError carries the process exit code of a finished run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitWith(err error) error {
	return &ExitError{Code: outcome.Of(err).ExitCode(), Err: err}
}

func runTarget(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "run-cmd").Logger()

	target, err := config.ParseTarget(args[0])
	if err != nil {
		logger.Error().Err(err).Msg("invalid target")
		return exitWith(err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return exitWith(fmt.Errorf("%w: %v", outcome.ErrInvalidInput, err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n := client.New(cfg, client.WithLogger(log.Logger), client.WithOutput(stdout))
	report, runErr := n.Run(ctx, target)
	if err := n.Reporter().Final(report); err != nil {
		logger.Error().Err(err).Msg("failed to print report")
	}

	logger.Debug().
		Stringer("outcome", report.Outcome).
		Dur("duration", report.Duration).
		Msg("run finished")

	if runErr != nil {
		return exitWith(runErr)
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides. The file is
// optional unless it was named by flag or environment.
func loadConfig(cmd *cobra.Command) (*config.Client, error) {
	optional := !cmd.Flags().Changed("config") && !tools.EnvSet(config.EnvPrefix+"CONFIG")
	cfg, err := config.LoadClientConfig(configFile, optional)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = timeout
	}
	if cmd.Flags().Changed("fallback") {
		cfg.Fallback = config.FallbackPolicy(fallback)
	}
	if jsonOutput {
		cfg.Output = config.OutputJSON
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client configuration validation failed: %w", err)
	}
	return cfg, nil
}
