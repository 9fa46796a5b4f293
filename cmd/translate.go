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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valpere/cvtran/internal"
	"github.com/valpere/cvtran/internal/app"
	"github.com/valpere/cvtran/internal/orchestrator"
)

var (
	inputFile  string
	outputFile string
	targetLang string
	stream     bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a JSON document",
	Long: `Translate the string values of a JSON document into the target language.

The document is split into fragments, translated by the primary backend
with retries and fallback, healed into valid JSON and cached.

  --stream   translate fragments one at a time and print progress
             (a failed fragment aborts the run)
  default    translate fragments in parallel batches
             (a failed fragment keeps its original text)

Use "-" as the input to read from stdin. Without --output the result is
written to stdout.`,
	Example: `  cvtran translate -i cv.json -o cv.es.json -t es
  cat cv.json | cvtran translate -i - -t uk --stream > cv.uk.json`,
	RunE: runTranslate,
}

func runTranslate(cmd *cobra.Command, args []string) error {
	if outputFile != "" && inputFile == outputFile {
		return fmt.Errorf("input and output must differ")
	}

	data, err := readInput(cmd, inputFile)
	if err != nil {
		return err
	}

	components, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	req := internal.TranslationRequest{
		TargetLang: targetLang,
		Document:   data,
		Timestamp:  time.Now(),
	}

	translate := components.Pipeline.TranslateBatch
	if stream {
		translate = func(ctx context.Context, req internal.TranslationRequest) (json.RawMessage, error) {
			return translateStreaming(cmd, components.Pipeline, req)
		}
	}
	doc, err := translate(cmd.Context(), req)
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "Translation failed: %v\n", err)
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, doc, "", "  "); err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	out.WriteByte('\n')

	if outputFile == "" {
		_, err := cmd.OutOrStdout().Write(out.Bytes())
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(outputFile, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "Translated %s to %s: %s\n", inputFile, targetLang, outputFile)
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// translateStreaming reports progress on stderr and returns the document
// carried by the done event.
func translateStreaming(cmd *cobra.Command, pipeline *orchestrator.Orchestrator, req internal.TranslationRequest) (json.RawMessage, error) {
	var doc json.RawMessage
	stderr := cmd.ErrOrStderr()
	progress := color.New(color.FgCyan)
	err := pipeline.TranslateStream(cmd.Context(), req, func(ev orchestrator.Event) error {
		switch data := ev.Data.(type) {
		case orchestrator.StartEvent:
			if data.Cached {
				color.New(color.FgYellow).Fprintln(stderr, "Cache hit")
				return nil
			}
			fmt.Fprintf(stderr, "%d fragments to translate\n", data.FragmentCount)
		case orchestrator.ChunkEvent:
			progress.Fprintf(stderr, "[%3d%%] fragment %d\n", data.ProgressPercent, data.Index+1)
		case orchestrator.DoneEvent:
			doc = data.Document
		}
		return nil
	})
	return doc, err
}

func init() {
	rootCmd.AddCommand(translateCmd)

	flags := translateCmd.Flags()
	flags.StringVarP(&inputFile, "input", "i", "", `Input JSON document, or "-" for stdin (required)`)
	flags.StringVarP(&outputFile, "output", "o", "", "Output file (default stdout)")
	flags.StringVarP(&targetLang, "target", "t", "", "Target language code, e.g. es or pt-BR (required)")
	flags.BoolVar(&stream, "stream", false, "Translate fragments sequentially and report progress")

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("target")
}
