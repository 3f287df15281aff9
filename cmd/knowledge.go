package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazem-soussi-HA/hazoom/internal/knowledge"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Work with the shared knowledge base",
}

var knowledgeImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Fetch a web page and add it to the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		page, err := knowledge.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		resp, err := newClient().KnowledgeAdd(ctx, page.Request(category))
		if err != nil {
			return err
		}

		id := ""
		if len(resp.Knowledge) > 0 {
			id = resp.Knowledge[0].ID
		}
		fmt.Printf("Imported %q (%s)\n", page.Title, id)
		if len(page.Keywords) > 0 {
			fmt.Printf("Keywords: %s\n", strings.Join(page.Keywords, ", "))
		}
		return nil
	},
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := newClient().KnowledgeSearch(context.Background(), strings.Join(args, " "), category, limit)
		if err != nil {
			return err
		}
		if resp.Count == 0 {
			fmt.Println("No knowledge found.")
			return nil
		}
		for _, k := range resp.Knowledge {
			fmt.Printf("[%s] %s\n", k.Category, k.Title)
			if k.Summary != "" {
				fmt.Printf("    %s\n", k.Summary)
			}
		}
		return nil
	},
}

func init() {
	knowledgeImportCmd.Flags().String("category", "", "knowledge category (default general)")
	knowledgeSearchCmd.Flags().String("category", "", "restrict to a category")
	knowledgeSearchCmd.Flags().Int("limit", 5, "maximum results")
	knowledgeCmd.AddCommand(knowledgeImportCmd, knowledgeSearchCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
