package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/daemon"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// The intermediate daemon process must not get past this call.
	daemon.Relay()

	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(globalFlags, &StartFlags{}),
		createKillCommand(globalFlags, &KillFlags{}),
		createStatusCommand(globalFlags, &StatusFlags{}),
		createAuthCommand(globalFlags),
		createConfigCommand(),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Server lifecycle supervisor",
		Long: `Warden starts a server in the foreground, as a daemon or as a cluster of
processes on consecutive ports, and stops it again through its PID files.

Examples:
  warden start 4000
  warden start 4000 --daemonize --cluster 3
  warden kill all
  warden kill 4001 TERM
  warden status`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createStartCommand(globalFlags *GlobalFlags, startFlags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [port]",
		Short: "Start the server",
		Long: `Start the server on port (default from config, 4000).

With --daemonize the server detaches from the terminal and this command
returns once every daemon has been launched. With --cluster N and no
--daemonize a master process runs N workers on port..port+N-1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, globalFlags.ConfigPath, args)
		},
	}
	addStartFlags(cmd, startFlags)
	return cmd
}

func createKillCommand(globalFlags *GlobalFlags, killFlags *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill <port|main|master|all> [signal]",
		Short: "Signal a running server",
		Long: `Send signal (default INT) to the instance recorded in a PID file.

An INT sent to main, master or all reaches the cluster master only; the
master stops its workers. Any other signal sent to those targets reaches
every recorded instance. Signals may be given by name or number.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKill(cmd, globalFlags.ConfigPath, killFlags, args)
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().BoolVar(&killFlags.JSON, "json", false, "print the kill report as JSON")
	return cmd
}

func createStatusCommand(globalFlags *GlobalFlags, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [port|all]",
		Short: "Show recorded instances and whether they are running",
		Long: `Show the instances recorded in PID files and whether they are running.

With --url the /status endpoint of a running instance is queried instead.
The password for --username is read from WARDEN_PASSWORD.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlags.Target = "all"
			if len(args) > 0 {
				statusFlags.Target = args[0]
			}
			if statusFlags.URL != "" {
				return runRemoteStatus(cmd, statusFlags)
			}
			return runStatus(cmd, globalFlags.ConfigPath, statusFlags)
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().StringVar(&statusFlags.URL, "url", "", "base URL of a running instance, e.g. https://host:4000")
	cmd.Flags().StringVar(&statusFlags.Token, "token", "", "bearer token for the remote instance")
	cmd.Flags().StringVar(&statusFlags.Username, "username", "", "basic auth user for the remote instance")
	cmd.Flags().StringVar(&statusFlags.CACert, "ca-cert", "", "CA certificate to verify the remote instance")
	cmd.Flags().BoolVar(&statusFlags.Insecure, "insecure", false, "skip TLS verification")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "warden", version)
		},
	}
}
