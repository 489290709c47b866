package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/frictiondesk/frictiondesk/internal/config"
)

func newSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM API key",
		Long:  "Prompts for the LLM API key without echoing and stores it in ~/.frictiondesk/credentials (mode 0600). The FRICTIONDESK_LLM_API_KEY environment variable takes precedence when set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetKey(cmd)
		},
	}
}

func runSetKey(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprint(out, "LLM API key: ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	key := strings.TrimSpace(string(keyBytes))
	if key == "" {
		return fmt.Errorf("empty key")
	}

	path, err := config.CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(out, "Key stored in %s\n", path)
	return nil
}
