package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/augmentweb/internal/formscan"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan URL",
		Short: "Print the submission contract of the form served at URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			scanner := formscan.New(formscan.Config{UserAgent: e.cfg.Client.UserAgent, Timeout: e.cfg.ClientTimeout()})
			form, err := scanner.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			writeForm(out, form)
			if err := form.CheckContract(); err != nil {
				fmt.Fprintf(out, "contract: %v\n", err)
				return err
			}
			fmt.Fprintln(out, "contract: ok")
			return nil
		},
	}
}

// writeForm prints the contract with radio groups in name order.
func writeForm(out io.Writer, form formscan.Form) {
	fmt.Fprintf(out, "action: %s\nmethod: %s\nenctype: %s\n", form.Action, form.Method, form.Enctype)
	for _, f := range form.FileFields {
		fmt.Fprintf(out, "file: %s\n", f)
	}
	for _, name := range slices.Sorted(maps.Keys(form.Choices)) {
		for _, c := range form.Choices[name] {
			fmt.Fprintf(out, "choice: %s=%s (%s)\n", name, c.Value, c.Label)
		}
	}
}
