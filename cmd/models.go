package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage models on the Ollama daemon",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed models",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ollamaClient(cmd)
		if err != nil {
			return err
		}

		models, err := client.ListModels(context.Background())
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Printf("No models installed on %s\n", client.BaseURL())
			fmt.Println("Pull a model with: hazoom pull <model>")
			return nil
		}

		fmt.Printf("%-40s %10s %8s\n", "NAME", "SIZE", "PARAMS")
		fmt.Println("────────────────────────────────────────────────────────────")
		for _, m := range models {
			fmt.Printf("%-40s %10s %8s\n", m.Name, formatSize(m.Size), m.Details.ParameterSize)
		}
		return nil
	},
}

var modelsShowCmd = &cobra.Command{
	Use:   "show <model>",
	Short: "Show model details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ollamaClient(cmd)
		if err != nil {
			return err
		}
		info, err := client.Show(context.Background(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

var modelsRmCmd = &cobra.Command{
	Use:   "rm <model>",
	Short: "Delete a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ollamaClient(cmd)
		if err != nil {
			return err
		}
		if err := client.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	modelsCmd.PersistentFlags().String("ollama-url", "", "Ollama daemon URL")
	modelsCmd.AddCommand(modelsListCmd, modelsShowCmd, modelsRmCmd)
	rootCmd.AddCommand(modelsCmd)
}
