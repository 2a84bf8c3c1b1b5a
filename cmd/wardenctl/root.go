package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wardenctl",
		Short: "Operator tooling for the warden authentication service",
		Long: `wardenctl evaluates and hashes passwords with the same policy the
service loads from its environment, and generates signing secrets.`,
		SilenceUsage: true,
	}
	cmd.SetOut(os.Stdout)

	cmd.AddCommand(newStrengthCmd())
	cmd.AddCommand(newHashCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newSecretCmd())

	return cmd
}

// readPassword takes the password from args, or from the first line of
// stdin when args is empty or "-"
func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password given")
	}
	return password, nil
}
