// Package cmd provides command-line interface functionality for BlazeTools.
// BlazeTools applies data-driven patch plans to raw CD images of
// Blaze & Blade: Eternal Quest for PlayStation.
package cmd

import (
	"fmt"
	"os"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "blazetools",
	Short: "Patch Blaze & Blade PSX disc images",
	Long: `BlazeTools - patches raw (2352-byte sector) CD images of
Blaze & Blade: Eternal Quest for PlayStation.

Patches are described by a plan: an ordered list of modules, each driven by
a JSON or YAML descriptor. Every write goes through the sector layer, so
sector headers and EDC/ECC bytes are never touched.

Currently supports:
  - patch    apply a plan and write a new image
  - verify   re-check a patched image against a plan
  - cd       list and extract files of the ISO9660 file system

Examples:
  blazetools patch --input original.bin --output patched.bin --plan plan.json
  blazetools patch -i original.bin -o patched.bin -p plan.json --verify --report yaml
  blazetools verify --input patched.bin --plan plan.json
  blazetools cd ls original.bin

Use 'blazetools [command] --help' for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and exits with the code mapped from the error.
// This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "blazetools: %v\n", err)
	}
	os.Exit(common.ExitCode(err))
}

// verboseFlag reads -v and switches debug logging on
func verboseFlag(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("error getting verbose flag: %w", err)
	}
	common.SetVerboseMode(verbose)
	return nil
}
