package cmd

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikaelmello/rawping/core"
	"github.com/mikaelmello/rawping/rawsock"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// exitError carries the exit status of a run that went through.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// flagValues holds the command line flags before they are merged into the settings.
type flagValues struct {
	configPath       string
	ttl              int
	count            int
	deadline         int
	timeout          int
	loggingLevel     uint32
	verbose          bool
	noVerifyChecksum bool
}

var flags flagValues

var rootCmd = &cobra.Command{
	Use:           "rawping [flags] host",
	Short:         "rawping sends ICMP echo requests over a raw socket",
	Long:          "rawping probes a single IPv4 host with one ICMP echo request per second until interrupted",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPing,
}

func init() {
	defaults := core.DefaultSettings()

	rootCmd.Flags().StringVar(&flags.configPath, "config", "", "YAML file to read settings from")
	rootCmd.Flags().IntVarP(&flags.ttl, "ttl", "t", defaults.TTL, "IP time to live of the echo requests")
	rootCmd.Flags().IntVarP(&flags.count, "count", "c", defaults.Count,
		"stop after sending this many echo requests, -1 for no limit")
	rootCmd.Flags().IntVarP(&flags.deadline, "deadline", "w", defaults.Deadline,
		"seconds before exiting regardless of how many packets were sent, -1 for no deadline")
	rootCmd.Flags().IntVarP(&flags.timeout, "timeout", "W", defaults.Timeout,
		"seconds to wait for outstanding replies after the last request when a count is set")
	rootCmd.Flags().Uint32VarP(&flags.loggingLevel, "log-level", "l", defaults.LoggingLevel,
		"logrus level, from 0 (panic) to 6 (trace)")
	rootCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output, same as --log-level 5")
	rootCmd.Flags().BoolVar(&flags.noVerifyChecksum, "no-verify-checksum", false,
		"accept echo replies with an invalid ICMP checksum")
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	rootCmd.PrintErrln("rawping:", err)
	return exitFailure
}

// buildSettings reads the settings file, if any, and applies the flags
// explicitly set on top of it.
func buildSettings(cmd *cobra.Command) (*core.Settings, error) {
	settings := core.DefaultSettings()
	if flags.configPath != "" {
		var err error
		settings, err = core.LoadSettings(flags.configPath)
		if err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("ttl") {
		settings.TTL = flags.ttl
	}
	if changed("count") {
		settings.Count = flags.count
	}
	if changed("deadline") {
		settings.Deadline = flags.deadline
	}
	if changed("timeout") {
		settings.Timeout = flags.timeout
	}
	if changed("log-level") {
		settings.LoggingLevel = flags.loggingLevel
	}
	if flags.verbose {
		settings.LoggingLevel = uint32(log.DebugLevel)
	}
	if flags.noVerifyChecksum {
		settings.VerifyChecksum = false
	}

	return settings, nil
}

func runPing(cmd *cobra.Command, args []string) error {
	settings, err := buildSettings(cmd)
	if err != nil {
		return err
	}

	tgt, err := resolveTarget(args[0])
	if err != nil {
		return err
	}

	conn, err := rawsock.Open(settings.TTL)
	if err != nil {
		return err
	}

	if err := rawsock.DropPrivileges(); err != nil {
		conn.Close()
		return err
	}

	r, err := newRunner(tgt, conn, settings, cmd.OutOrStdout())
	if err != nil {
		conn.Close()
		return err
	}

	r.Start()
	if err := r.Wait(); err != nil {
		return err
	}

	return &exitError{code: r.exitCode()}
}
