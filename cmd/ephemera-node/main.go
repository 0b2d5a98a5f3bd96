// Command ephemera-node runs a single Ephemera broadcast node, grounded on
// teacher's cmd/node/main.go construct-everything-then-signal-handle-
// shutdown pattern, restructured as a cobra command tree in the layout of
// sage's cmd/sage-did (root command, one file per subcommand).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// exitCode classifies a command failure into spec §6's CLI exit codes:
// 1 config/parse error, 2 I/O / storage error, 3 fatal runtime error.
type exitCode int

const (
	exitConfigError  exitCode = 1
	exitIOError      exitCode = 2
	exitRuntimeError exitCode = 3
)

// cliError pairs an error with the exit code main should use for it.
type cliError struct {
	code exitCode
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func configErr(err error) error  { return &cliError{code: exitConfigError, err: err} }
func ioErr(err error) error      { return &cliError{code: exitIOError, err: err} }
func runtimeErr(err error) error { return &cliError{code: exitRuntimeError, err: err} }

var rootCmd = &cobra.Command{
	Use:   "ephemera-node",
	Short: "Ephemera broadcast node",
	Long: `ephemera-node runs a single node of an Ephemera reliable-broadcast
cluster: it gathers client-signed messages, produces candidate blocks at a
configured cadence, drives them through the PrePrepare/Prepare/Commit
protocol state machine against its peers, and persists delivered blocks
plus their quorum certificates.`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	// Best-effort: a missing .env is not an error, matching sage's dev
	// convenience loading (spec.md §6 "Environment").
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ce *cliError
		if errors.As(err, &ce) {
			os.Exit(int(ce.code))
		}
		os.Exit(int(exitConfigError))
	}
}
