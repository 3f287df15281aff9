package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazem-soussi-HA/hazoom/internal/cache"
	"github.com/hazem-soussi-HA/hazoom/internal/sysinfo"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Show host hardware and inference recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper := sysinfo.NewScraper(cache.NewMemoryCache("hazoom"), cache.SystemInfoTTL)
		info, rec, err := scraper.Recommendations(context.Background())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"system_info":  info,
				"optimization": rec,
			})
		}

		fmt.Printf("Host:      %s (%s %s)\n", info.Platform.Hostname, info.Platform.System, info.Platform.Release)
		fmt.Printf("CPU:       %s, %d cores / %d threads, %.1f%% busy\n",
			info.CPU.Processor, info.CPU.CoresPhysical, info.CPU.CoresLogical, info.CPU.Percent)
		fmt.Printf("Memory:    %.2f / %.2f GB (%.1f%%)\n", info.Memory.UsedGB, info.Memory.TotalGB, info.Memory.Percent)
		fmt.Printf("Disk:      %.2f GB free of %.2f GB\n", info.Disk.FreeGB, info.Disk.TotalGB)
		gpus := "none"
		if names := info.GPU.Names(); len(names) > 0 {
			gpus = strings.Join(names, ", ")
		}
		fmt.Printf("GPU:       %s\n", gpus)
		fmt.Printf("Backend:   %s\n", info.Acceleration.RecommendedBackend)
		fmt.Println()
		fmt.Printf("Recommended: backend=%s batch=%d threads=%d\n", rec.InferenceBackend, rec.BatchSize, rec.ThreadCount)
		for _, o := range rec.MemoryOptimization {
			fmt.Printf("  - %s\n", o)
		}
		for _, w := range rec.Warnings {
			fmt.Printf("  ! %s\n", w)
		}
		return nil
	},
}

func init() {
	sysinfoCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(sysinfoCmd)
}
