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

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valpere/cvtran/internal/app"
	"github.com/valpere/cvtran/internal/translator"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Send a trivial prompt to the configured backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer components.Close()

		failed := 0
		for _, svc := range []translator.TranslationService{components.Primary, components.Fallback} {
			if svc == nil {
				continue
			}
			response, err := translator.Ping(cmd.Context(), svc)
			if err != nil {
				failed++
				color.Red("%-12s FAIL  %v", svc.Name(), err)
				continue
			}
			color.Green("%-12s OK    %s", svc.Name(), response)
		}
		if failed > 0 {
			return fmt.Errorf("%d backend(s) unhealthy", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
