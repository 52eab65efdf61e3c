package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/loykin/warden/internal/auth"
	"github.com/loykin/warden/internal/config"
)

type AuthHashFlags struct {
	Cost int
}

func createAuthCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage credentials for the status and metrics endpoints",
	}
	hashFlags := &AuthHashFlags{}
	hash := &cobra.Command{
		Use:   "hash",
		Short: "Read a password and print its bcrypt hash for auth.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			h, err := auth.HashPassword(pw, hashFlags.Cost)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	hash.Flags().IntVar(&hashFlags.Cost, "cost", 0, "bcrypt cost (default 10)")

	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath, cmd.Flags())
			if err != nil {
				return err
			}
			a, err := auth.New(cfg.Auth)
			if err != nil {
				return err
			}
			if a == nil {
				return errors.New("auth is not enabled")
			}
			tok, exp, err := a.IssueToken(time.Now())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), map[string]any{
				"type":       "Bearer",
				"token":      tok,
				"expires_at": exp,
			})
			return nil
		},
	}
	cmd.AddCommand(hash, token)
	return cmd
}

// readPassword prompts without echo on a terminal and otherwise reads one
// line from in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}
