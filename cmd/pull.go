package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Pull a model into the local Ollama daemon",
	Long: `Pull a model through the Ollama daemon HAZoom is configured to use.

Examples:
  hazoom pull llama2:latest
  hazoom pull phi`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ollamaClient(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		name := args[0]
		fmt.Printf("Pulling %s from %s...\n", name, client.BaseURL())

		status := ""
		err = client.Pull(ctx, name, func(p ollama.PullProgress) {
			if p.Total > 0 {
				fmt.Printf("\r  %-24s %5.1f%% (%s / %s)", p.Status, p.Percent(), formatSize(p.Completed), formatSize(p.Total))
				return
			}
			if p.Status != status {
				if status != "" {
					fmt.Println()
				}
				fmt.Printf("  %s", p.Status)
				status = p.Status
			}
		})
		if err != nil {
			fmt.Println()
			return err
		}

		fmt.Printf("\n\nPulled %s\n", name)
		return nil
	},
}

// ollamaClient returns a client for the configured daemon, honouring the
// --ollama-url flag when the command has one.
func ollamaClient(cmd *cobra.Command) (*ollama.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("ollama-url"); f != nil && f.Value.String() != "" {
		cfg.OllamaURL = f.Value.String()
	}
	return ollama.New(ollama.ClientConfig{BaseURL: cfg.OllamaURL, Timeout: cfg.OllamaTimeout}), nil
}

func init() {
	pullCmd.Flags().String("ollama-url", "", "Ollama daemon URL")
	rootCmd.AddCommand(pullCmd)
}
