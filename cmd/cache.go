/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valpere/cvtran/internal/store"
)

var statsJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the translation cache",
	Long: `Work with the document cache configured under "cache" (file directory
or SQL database). Entries older than the retention period are ignored on
lookup but still counted by stats until cleared.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts per language and total size",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd.Context(), func(ctx context.Context, cache store.Cache) error {
			stats, err := cache.Stats(ctx)
			if err != nil {
				return fmt.Errorf("read cache stats: %w", err)
			}
			if statsJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			return printStats(cmd, stats)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached translation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd.Context(), func(ctx context.Context, cache store.Cache) error {
			n, err := cache.Clear(ctx)
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			color.Green("Cleared %d cached translations (%s cache)", n, cfg.Cache.Driver)
			return nil
		})
	},
}

func withCache(ctx context.Context, fn func(context.Context, store.Cache) error) error {
	cache, err := store.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open %s cache: %w", cfg.Cache.Driver, err)
	}
	defer cache.Close()
	return fn(ctx, cache)
}

func printStats(cmd *cobra.Command, stats *store.CacheStats) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Entries:\t%d\n", stats.TotalTranslations)
	fmt.Fprintf(w, "Size:\t%d bytes\n", stats.CacheSizeBytes)

	langs := slices.Sorted(maps.Keys(stats.Languages))
	if len(langs) > 0 {
		fmt.Fprintln(w, "\nLANGUAGE\tENTRIES")
	}
	for _, lang := range langs {
		fmt.Fprintf(w, "%s\t%d\n", lang, stats.Languages[lang])
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheStatsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print statistics as JSON")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}
