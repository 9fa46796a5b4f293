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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/cvtran/internal/app"
	"github.com/valpere/cvtran/internal/config"
)

var version = "0.3.0"

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cvtran",
	Short: "Resilient chunked translation of JSON documents",
	Long: `A service and CLI that translates structured JSON documents (CVs) with
language-model backends. Documents are split at structural boundaries,
each fragment is translated with retries and backend fallback, model
output is healed back into valid JSON, and results are cached.

Supported backends: OpenRouter, OpenAI, Ollama, Google Cloud Translation

Use "cvtran serve" to start the HTTP API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader, err := config.NewConfigLoader(configFile)
		if err != nil {
			return err
		}
		if cfg, err = loader.Load(); err != nil {
			return err
		}
		app.SetupLogging(cfg.Log, os.Stderr)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./cvtran.yaml or $HOME/.config/cvtran/cvtran.yaml)")
}
