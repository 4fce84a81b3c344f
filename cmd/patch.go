// Package cmd provides command-line interface for patching CD images.
// This file contains the patch command that runs a plan against an image.
package cmd

import (
	"fmt"
	"io"

	"github.com/hansbonini/blazetools/pkg/patch"
	"github.com/spf13/cobra"
)

var (
	patchInput  string
	patchOutput string
	patchPlan   string
	patchVerify bool
	patchReport = reportFormat(patch.FormatJSON)
)

// patchCmd applies a patch plan to a raw CD image.
// The run report is always written to stdout; logs go to stderr.
var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Apply a patch plan to a CD image",
	Long: `Apply a patch plan to a raw CD image (.bin, 2352-byte sectors).

The plan names the executable and the archive inside the image and lists the
modules to run, in order. Each module either applies completely or leaves no
writes behind; the first fatal error stops the run and no output file is
written.

Available modules:
  monster_stats       rewrite stat fields of named monster records
  item_descriptions   rewrite item description strings
  formations          rebuild the formation area of dungeon areas
  tier_thresholds     rewrite the spell tier thresholds in the executable
  class_stats         rewrite class growth tables and level curves
  spell_table         override fields of spell definitions in the archive
  countdown           freeze or retime the loot chest countdown
  global_multiplier   change the shift of the damage scaling instruction
  auction_prices      rewrite auction base prices
  archive_import      import an externally edited archive

Exit codes:
  0  success (possibly with warnings)
  1  configuration error
  2  a module failed while patching
  3  verification failed

Example:
  blazetools patch --input original.bin --output patched.bin --plan plan.json
  blazetools patch -i original.bin -o patched.bin -p plan.yaml --verify --report yaml -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := verboseFlag(cmd); err != nil {
			return err
		}
		return runPatch(cmd.OutOrStdout())
	},
}

func runPatch(out io.Writer) error {
	plan, err := patch.LoadPlan(patchPlan)
	if err != nil {
		rep := patch.NewReport(patchInput)
		rep.Finish(err)
		return writeReport(out, rep, err)
	}

	rep, err := patch.Execute(plan, patch.Options{
		Input:  patchInput,
		Output: patchOutput,
		Verify: patchVerify,
	})
	return writeReport(out, rep, err)
}

// writeReport prints rep and returns the run error, which takes precedence
func writeReport(out io.Writer, rep *patch.Report, runErr error) error {
	if err := rep.Encode(out, string(patchReport)); err != nil && runErr == nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(patchCmd)

	patchCmd.Flags().StringVarP(&patchInput, "input", "i", "", "Input CD image (.bin)")
	patchCmd.Flags().StringVarP(&patchOutput, "output", "o", "", "Output CD image")
	patchCmd.Flags().StringVarP(&patchPlan, "plan", "p", "", "Patch plan (JSON or YAML)")
	patchCmd.Flags().BoolVar(&patchVerify, "verify", false, "Re-read the output image and check every module")
	patchCmd.Flags().Var(&patchReport, "report", "Report format: json or yaml")
	patchCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")

	for _, name := range []string{"input", "output", "plan"} {
		_ = patchCmd.MarkFlagRequired(name)
	}
}
