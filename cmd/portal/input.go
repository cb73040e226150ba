package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/evnchn/3D-Print-Me/adapter/outbound/logging"
	"github.com/evnchn/3D-Print-Me/config"
)

// readSecret prompts on stderr and reads without echo when stdin is a terminal.
// Piped input is read one line at a time.
func readSecret(cmd *cobra.Command, reader *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// cliLogger keeps stdout for command output and only reports warnings
func cliLogger(cmd *cobra.Command, cfg *config.Config) *logging.SlogAdapter {
	quiet := *cfg
	quiet.General.LogLevel = "warn"
	quiet.Logging.Format = "text"
	return logging.NewSlogAdapterWithWriter(&quiet, cmd.ErrOrStderr())
}
