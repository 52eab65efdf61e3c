package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/pkg/template"
)

type ConfigInitFlags struct {
	Port   int
	Output string
	Force  bool
}

func createConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with configuration files",
	}
	flags := &ConfigInitFlags{}
	gen := template.NewGenerator()
	initCmd := &cobra.Command{
		Use:   "init [basic|daemon|cluster|secure]",
		Short: "Print a starter warden.toml",
		Long: fmt.Sprintf(`Print a starter configuration for one of the presets %v.
With --output the file is written instead, refusing to overwrite unless --force.`, gen.GetSupportedTypes()),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := template.TypeBasic
			if len(args) > 0 {
				typ = template.TemplateType(args[0])
			}
			b, err := gen.GenerateTOML(typ, flags.Port)
			if err != nil {
				return err
			}
			if flags.Output == "" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if flags.Force {
				mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(flags.Output, mode, 0o600)
			if err != nil {
				return err
			}
			if _, err := f.Write(b); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "wrote", flags.Output)
			return nil
		},
	}
	initCmd.Flags().IntVarP(&flags.Port, "port", "p", 4000, "port the preset serves")
	initCmd.Flags().StringVarP(&flags.Output, "output", "o", "", "write to this file instead of stdout")
	initCmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing output file")
	cmd.AddCommand(initCmd)
	return cmd
}
