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

// Package main serves batch-mode translation as an AWS Lambda function.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/valpere/cvtran/internal"
	"github.com/valpere/cvtran/internal/app"
	"github.com/valpere/cvtran/internal/config"
)

// Response is the function output. Exactly one field is set.
type Response struct {
	Document json.RawMessage `json:"document,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type batchTranslator interface {
	TranslateBatch(ctx context.Context, req internal.TranslationRequest) (json.RawMessage, error)
}

var (
	initOnce   sync.Once
	components *app.Components
	initErr    error
)

func main() {
	lambda.Start(handleRequest)
}

func handleRequest(ctx context.Context, event json.RawMessage) (any, error) {
	// warmup events must not build the pipeline
	if warmup, ok := IsWarmupEvent(event); ok {
		return HandleWarmup(ctx, warmup)
	}

	var req internal.TranslationRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return &Response{Error: fmt.Sprintf("invalid request: %v", err)}, nil
	}

	initOnce.Do(func() {
		components, initErr = build()
	})
	if initErr != nil {
		return nil, initErr
	}
	return handle(ctx, components.Pipeline, req), nil
}

func build() (*app.Components, error) {
	loader, err := config.NewConfigLoader(os.Getenv("CVTRAN_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	cfg.Log.Format = "json"
	app.SetupLogging(cfg.Log, os.Stdout)
	return app.New(cfg)
}

func handle(ctx context.Context, pipeline batchTranslator, req internal.TranslationRequest) *Response {
	if err := validateRequest(req); err != nil {
		return &Response{Error: err.Error()}
	}

	doc, err := pipeline.TranslateBatch(ctx, req)
	if err != nil {
		slog.Error("Batch translation failed", "error", err)
		return &Response{Error: fmt.Sprintf("translation failed: %v", err)}
	}
	return &Response{Document: doc}
}

func validateRequest(req internal.TranslationRequest) error {
	if strings.TrimSpace(req.TargetLang) == "" {
		return errors.New("targetLanguage is required")
	}
	doc := strings.TrimSpace(string(req.Document))
	if doc == "" || doc == "null" {
		return errors.New("document is required")
	}
	if !json.Valid(req.Document) {
		return errors.New("document must be valid JSON")
	}
	return nil
}
