package cmd

import (
	"github.com/hansbonini/blazetools/pkg/patch"
	"github.com/spf13/cobra"
)

var (
	verifyInput  string
	verifyPlan   string
	verifyReport = reportFormat(patch.FormatJSON)
)

// verifyCmd re-checks an already patched image without writing anything
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a patched CD image against a patch plan",
	Long: `Check a patched CD image against a patch plan.

Every enabled module whose descriptor does not set "verify": false re-reads
the image and checks its post-conditions. The image is never modified.
Exits with code 3 when a check fails.

Example:
  blazetools verify --input patched.bin --plan plan.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := verboseFlag(cmd); err != nil {
			return err
		}

		rep := patch.NewReport(verifyInput)
		plan, err := patch.LoadPlan(verifyPlan)
		if err == nil {
			rep.Verification, err = patch.NewVerifier(plan).VerifyFile(verifyInput)
		}
		rep.Finish(err)
		if encErr := rep.Encode(cmd.OutOrStdout(), string(verifyReport)); encErr != nil && err == nil {
			return encErr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyInput, "input", "i", "", "CD image to check")
	verifyCmd.Flags().StringVarP(&verifyPlan, "plan", "p", "", "Patch plan (JSON or YAML)")
	verifyCmd.Flags().Var(&verifyReport, "report", "Report format: json or yaml")
	verifyCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")

	_ = verifyCmd.MarkFlagRequired("input")
	_ = verifyCmd.MarkFlagRequired("plan")
}
