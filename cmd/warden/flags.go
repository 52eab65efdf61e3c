package main

import (
	"github.com/spf13/cobra"
)

// StartFlags only exist so cobra has somewhere to parse into; the values
// reach the configuration through viper's flag binding.
type StartFlags struct {
	Port        int
	Host        string
	Daemonize   bool
	Cluster     int
	User        string
	Group       string
	Root        string
	Verbose     bool
	Interactive bool
	Adapter     string
}

type KillFlags struct {
	JSON bool
}

type StatusFlags struct {
	Target string

	// Remote query of a running instance's /status endpoint.
	URL      string
	Token    string
	Username string
	CACert   string
	Insecure bool
}

// addCommonFlags registers the flags every command needs to find PID files
// and log.
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("pid-file", "", "pid file template, %s is replaced by the instance")
	cmd.Flags().String("log-dir", "", "directory for pid files and instance logs")
	cmd.Flags().String("log-file", "", "server log file (also daemon stdout/stderr)")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	cmd.Flags().String("log-format", "", "text or json")
}

func addStartFlags(cmd *cobra.Command, f *StartFlags) {
	addCommonFlags(cmd)
	cmd.Flags().IntVarP(&f.Port, "port", "p", 0, "port to serve (default 4000)")
	cmd.Flags().StringVar(&f.Host, "host", "", "address to bind (default 0.0.0.0)")
	cmd.Flags().BoolVarP(&f.Daemonize, "daemonize", "d", false, "run in the background")
	cmd.Flags().IntVarP(&f.Cluster, "cluster", "c", 0, "number of instances on consecutive ports")
	cmd.Flags().StringVarP(&f.User, "user", "u", "", "user to run as")
	cmd.Flags().StringVarP(&f.Group, "group", "G", "", "group to run as (defaults to the user)")
	cmd.Flags().StringVarP(&f.Root, "root", "m", "", "directory the daemon changes into")
	cmd.Flags().BoolVarP(&f.Verbose, "verbose", "V", false, "debug logging")
	cmd.Flags().BoolVarP(&f.Interactive, "interactive", "i", false, "open a debug console on the first interrupt")
	cmd.Flags().StringVarP(&f.Adapter, "adapter", "a", "", "server adapter (gin or echo)")
}
