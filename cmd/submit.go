package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/augmentweb/internal/config"
	"github.com/JakeFAU/augmentweb/internal/dataset"
	"github.com/JakeFAU/augmentweb/internal/formscan"
	"github.com/JakeFAU/augmentweb/internal/submit"
)

type submitOptions struct {
	server   string
	preset   string
	upload   string
	policy   string
	discover bool
}

func newSubmitCmd() *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Post a dataset selection to a running server",
		Long: `Builds the same multipart request the selection form sends and posts it
to <server>/user_input. With --discover the served form is scanned first and
its contract checked before anything is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			clientCfg := applyClientFlags(cmd, e.cfg, opts)
			policy, err := dataset.ParsePolicy(clientCfg.Client.Policy)
			if err != nil {
				return err
			}

			sel, err := buildSelection(opts.preset, opts.upload)
			if err != nil {
				return err
			}

			if opts.discover {
				scanner := formscan.New(formscan.Config{UserAgent: clientCfg.Client.UserAgent, Timeout: clientCfg.ClientTimeout()})
				form, err := scanner.Scan(cmd.Context(), strings.TrimRight(clientCfg.Client.BaseURL, "/")+"/")
				if err != nil {
					return fmt.Errorf("discover form: %w", err)
				}
				if err := form.CheckContract(); err != nil {
					return err
				}
			}

			client, err := submit.New(submit.Config{
				BaseURL:   clientCfg.Client.BaseURL,
				Timeout:   clientCfg.ClientTimeout(),
				Policy:    policy,
				UserAgent: clientCfg.Client.UserAgent,
			}, e.logger.Named("submit"))
			if err != nil {
				return err
			}
			res := client.SubmitSelection(cmd.Context(), sel)
			printResult(cmd, res)
			if !res.OK() {
				return fmt.Errorf("submission %s: %w", res.Outcome, res.Err)
			}
			return nil
		},
	}
	addClientFlags(cmd, &opts.server, &opts.policy)
	cmd.Flags().StringVar(&opts.preset, "dataset", "", "preset dataset: MNIST, KMNIST, FashionMNIST, CIFAR10, CIFAR100 or Other")
	cmd.Flags().StringVar(&opts.upload, "upload", "", "path of a zipped dataset folder to upload")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "scan the served form and check its contract before submitting")
	return cmd
}

func addClientFlags(cmd *cobra.Command, server, policy *string) {
	cmd.Flags().StringVar(server, "server", "", "base URL of the augmentweb server (overrides client.base_url)")
	if policy != nil {
		cmd.Flags().StringVar(policy, "policy", "", "submission policy: exactly_one or permissive (overrides client.policy)")
	}
}

func applyClientFlags(cmd *cobra.Command, cfg config.Config, opts submitOptions) config.Config {
	if cmd.Flags().Changed("server") {
		cfg.Client.BaseURL = opts.server
	}
	if cmd.Flags().Changed("policy") {
		cfg.Client.Policy = opts.policy
	}
	return cfg
}

func buildSelection(preset, uploadPath string) (dataset.Selection, error) {
	var sel dataset.Selection
	if preset != "" {
		p, err := dataset.ParsePreset(preset)
		if err != nil {
			return sel, err
		}
		if err := sel.SelectPreset(p); err != nil {
			return sel, err
		}
	}
	if uploadPath != "" {
		data, err := os.ReadFile(uploadPath) //nolint:gosec // operator-supplied path
		if err != nil {
			return sel, fmt.Errorf("read upload: %w", err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(uploadPath))
		if err := sel.AttachUpload(dataset.Upload{
			Filename:    filepath.Base(uploadPath),
			ContentType: contentType,
			Data:        data,
		}); err != nil {
			return sel, err
		}
	}
	return sel, nil
}

func printResult(cmd *cobra.Command, res submit.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "outcome: %s\n", res.Outcome)
	if res.StatusCode != 0 {
		fmt.Fprintf(out, "status: %d\n", res.StatusCode)
	}
	if res.Location != "" {
		fmt.Fprintf(out, "location: %s\n", res.Location)
	}
	if res.Err != nil {
		fmt.Fprintf(out, "error: %v\n", res.Err)
	}
}
