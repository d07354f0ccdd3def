package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/augmentweb/internal/browser"
	"github.com/JakeFAU/augmentweb/internal/dataset"
)

var errSmokeFailed = errors.New("smoke test failed")

func newSmokeCmd() *cobra.Command {
	var (
		server string
		preset string
		upload string
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Drive the served form in headless Chrome and check it lands on /progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			base := e.cfg.Client.BaseURL
			if cmd.Flags().Changed("server") {
				base = server
			}
			choice := browser.Choice{UploadPath: upload}
			if preset != "" {
				p, err := dataset.ParsePreset(preset)
				if err != nil {
					return err
				}
				choice.Preset = p
			}

			driver := browser.New(browser.Config{
				UserAgent:         e.cfg.Client.UserAgent,
				NavigationTimeout: e.cfg.NavTimeout(),
			})
			defer driver.Close()

			out, err := driver.Submit(cmd.Context(), strings.TrimRight(base, "/")+"/", choice)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posts: %d\nstatus: %d\nlanded: %s\ntitle: %s\n",
				out.Posts, out.StatusCode, out.FinalURL, out.Title)
			return checkSmoke(out)
		},
	}
	addClientFlags(cmd, &server, nil)
	cmd.Flags().StringVar(&preset, "dataset", "", "preset dataset to click")
	cmd.Flags().StringVar(&upload, "upload", "", "zipped dataset folder to attach")
	return cmd
}

func checkSmoke(out browser.Outcome) error {
	if out.Posts != 1 {
		return fmt.Errorf("%w: expected exactly one POST to %s, saw %d", errSmokeFailed, dataset.SubmitPath, out.Posts)
	}
	landed, err := url.Parse(out.FinalURL)
	if err != nil {
		return fmt.Errorf("%w: %v", errSmokeFailed, err)
	}
	if landed.Path != "/progress" {
		return fmt.Errorf("%w: landed on %s", errSmokeFailed, out.FinalURL)
	}
	return nil
}
