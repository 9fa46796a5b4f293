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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/cvtran/internal/app"
	"github.com/valpere/cvtran/internal/bootstrap"
	"github.com/valpere/cvtran/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP translation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		lifecycle := bootstrap.New(cfg.Server.ShutdownTimeout)

		components, err := app.New(cfg)
		if err != nil {
			return err
		}
		lifecycle.AddCloser("components", components)

		srv, err := server.New(components.Pipeline, components.Cache, components.Primary,
			server.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins),
			server.WithMetrics(components.Registry))
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		lifecycle.AddShutdownHook("http", httpServer.Shutdown)

		return lifecycle.Run(cmd.Context(), func(ctx context.Context) error {
			slog.Info("Starting server", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
