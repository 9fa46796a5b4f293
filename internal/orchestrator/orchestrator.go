// Package orchestrator runs the document translation pipeline:
// redact, cache lookup, chunk, translate each fragment with retries, heal,
// reassemble, validate, cache and restore. TranslateStream reports progress
// fragment by fragment; TranslateBatch translates fragments in parallel
// batches and degrades failed fragments to their original text.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/cvtran/internal"
	"github.com/valpere/cvtran/internal/chunker"
	"github.com/valpere/cvtran/internal/langcheck"
	"github.com/valpere/cvtran/internal/metrics"
	"github.com/valpere/cvtran/internal/postprocess"
	"github.com/valpere/cvtran/internal/redact"
	"github.com/valpere/cvtran/internal/resilience"
	"github.com/valpere/cvtran/internal/store"
	"github.com/valpere/cvtran/internal/translator"
)

const (
	modeStream = "stream"
	modeBatch  = "batch"
)

type OrchestratorConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size" validate:"min=1"`
	BatchSize        int           `mapstructure:"batch_size" validate:"min=1"`
	FragmentDelay    time.Duration `mapstructure:"fragment_delay" validate:"min=0"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ValidateLanguage bool          `mapstructure:"validate_language"`
}

func DefaultConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ChunkSize:     chunker.DefaultMaxLength,
		BatchSize:     3,
		FragmentDelay: 100 * time.Millisecond,
		Timeout:       120 * time.Second,
	}
}

type Orchestrator struct {
	controller *resilience.Controller
	cache      store.Cache
	guard      *redact.Guard
	langcheck  *langcheck.Checker
	metrics    *metrics.Metrics
	config     OrchestratorConfig
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLanguageCheck enables a warn-only check that the translated document
// is written in the target language.
func WithLanguageCheck(c *langcheck.Checker) Option {
	return func(o *Orchestrator) { o.langcheck = c }
}

func New(controller *resilience.Controller, cache store.Cache, guard *redact.Guard, config OrchestratorConfig, opts ...Option) *Orchestrator {
	defaults := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if guard == nil {
		guard = redact.New(nil)
	}

	o := &Orchestrator{
		controller: controller,
		cache:      cache,
		guard:      guard,
		config:     config,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// job is the per-request state: the redacted document, its sidecar and
// fingerprint, and its fragments.
type job struct {
	lang        string
	sidecar     redact.Sidecar
	fingerprint string
	doc         chunker.Document
	logger      *slog.Logger
}

// TranslateStream translates fragments strictly in order, one at a time,
// emitting start, one chunk per fragment, then done. Any fatal error is
// emitted as an error event and returned; nothing is cached in that case.
func (o *Orchestrator) TranslateStream(ctx context.Context, req internal.TranslationRequest, emit Emitter) error {
	start := time.Now()
	defer func() { o.metrics.ObservePipeline(modeStream, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	j, cached, err := o.prepare(ctx, req)
	if err != nil {
		return fail(emit, err)
	}

	if cached != nil {
		if err := emit(Event{Name: EventStart, Data: StartEvent{FragmentCount: 1, Cached: true}}); err != nil {
			return err
		}
		if err := emit(Event{Name: EventChunk, Data: ChunkEvent{Index: 0, Text: string(cached), ProgressPercent: 100}}); err != nil {
			return err
		}
		return emit(Event{Name: EventDone, Data: DoneEvent{Success: true, Document: cached}})
	}

	n := len(j.doc.Fragments)
	if err := emit(Event{Name: EventStart, Data: StartEvent{FragmentCount: n}}); err != nil {
		return err
	}

	out := make([]string, n)
	for i := range j.doc.Fragments {
		if i > 0 && o.config.FragmentDelay > 0 {
			select {
			case <-ctx.Done():
				return fail(emit, ctx.Err())
			case <-time.After(o.config.FragmentDelay):
			}
		}

		text, err := o.translateFragment(ctx, j, i)
		if err != nil {
			o.metrics.Fragment(modeStream, "failed")
			return fail(emit, fmt.Errorf("fragment %d: %w", i, err))
		}
		o.metrics.Fragment(modeStream, "translated")
		out[i] = text

		chunk := ChunkEvent{Index: i, Text: text, ProgressPercent: (i + 1) * 100 / n}
		if err := emit(Event{Name: EventChunk, Data: chunk}); err != nil {
			return err
		}
	}

	final, err := o.finish(ctx, j, out)
	if err != nil {
		return fail(emit, err)
	}
	return emit(Event{Name: EventDone, Data: DoneEvent{Success: true, Document: final}})
}

// TranslateBatch translates fragments in sequential batches of
// BatchSize, running the fragments of a batch in parallel. A fragment
// that fails is replaced by its original text.
func (o *Orchestrator) TranslateBatch(ctx context.Context, req internal.TranslationRequest) (json.RawMessage, error) {
	start := time.Now()
	defer func() { o.metrics.ObservePipeline(modeBatch, time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	j, cached, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	n := len(j.doc.Fragments)
	out := make([]string, n)
	for first := 0; first < n; first += o.config.BatchSize {
		last := min(first+o.config.BatchSize, n)

		g, gctx := errgroup.WithContext(ctx)
		for i := first; i < last; i++ {
			g.Go(func() error {
				text, err := o.translateFragment(gctx, j, i)
				if err == nil {
					o.metrics.Fragment(modeBatch, "translated")
					out[i] = text
					return nil
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				o.metrics.Fragment(modeBatch, "degraded")
				j.logger.Warn("Fragment kept untranslated", "fragment", i, "error", err)
				out[i] = j.doc.Fragments[i]
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return o.finish(ctx, j, out)
}

// prepare validates the request, strips redacted fields and consults the
// cache. On a hit it returns the restored cached document.
func (o *Orchestrator) prepare(ctx context.Context, req internal.TranslationRequest) (*job, json.RawMessage, error) {
	lang := strings.TrimSpace(req.TargetLang)
	body := bytes.TrimSpace(req.Document)
	if lang == "" || len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil, fmt.Errorf("%w: targetLanguage and document are required", internal.ErrMissingParameters)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := slog.Default().With("requestId", id, "targetLanguage", lang)

	redacted, sidecar, err := o.guard.Strip(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", internal.ErrInvalidDocument, err)
	}

	j := &job{
		lang:        lang,
		sidecar:     sidecar,
		fingerprint: store.Fingerprint(redacted, lang),
		logger:      logger,
	}

	if o.cache != nil {
		cached, ok, err := o.cache.Lookup(ctx, j.fingerprint)
		switch {
		case err != nil:
			o.metrics.CacheLookup("error")
			logger.Warn("Cache lookup failed, translating", "error", err)
		case ok:
			o.metrics.CacheLookup("hit")
			restored, err := o.guard.Restore(cached, sidecar)
			if err == nil {
				logger.Info("Cache hit", "fingerprint", j.fingerprint)
				return j, restored, nil
			}
			logger.Warn("Cached document could not be restored, translating", "error", err)
		default:
			o.metrics.CacheLookup("miss")
		}
	}

	j.doc = chunker.SplitDocument(string(redacted), o.config.ChunkSize)
	logger.Info("Translating document", "fragments", len(j.doc.Fragments), "bytes", len(redacted))
	return j, nil, nil
}

// translateFragment sends fragment i through the resilience controller,
// heals the model output and checks that its structure matches the source.
func (o *Orchestrator) translateFragment(ctx context.Context, j *job, i int) (string, error) {
	framed := j.doc.Frame(i)

	raw, err := o.controller.Do(ctx, func(ctx context.Context, svc translator.TranslationService, st resilience.State) (string, error) {
		return translator.TranslateFragment(ctx, svc, framed, j.lang)
	})
	if err != nil {
		return "", err
	}

	healed, err := postprocess.HealAndValidate(raw)
	if err != nil {
		return "", err
	}
	if err := postprocess.SameShape([]byte(framed), []byte(healed)); err != nil {
		return "", err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(healed)); err != nil {
		return "", fmt.Errorf("%w: %v", internal.ErrMalformedOutput, err)
	}
	return j.doc.Unframe(i, compact.String()), nil
}

// finish reassembles the fragments, runs the final heal and parse, stores
// the result and restores redacted fields.
func (o *Orchestrator) finish(ctx context.Context, j *job, fragments []string) (json.RawMessage, error) {
	assembled := j.doc.Assemble(fragments)

	healed, err := postprocess.HealAndValidate(assembled)
	if err != nil {
		return nil, fmt.Errorf("final document: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(healed)); err != nil {
		return nil, fmt.Errorf("final document: %w: %v", internal.ErrMalformedOutput, err)
	}
	doc := compact.Bytes()

	o.checkLanguage(j, doc)

	if o.cache != nil {
		if err := o.cache.Store(ctx, j.fingerprint, j.lang, doc); err != nil {
			j.logger.Warn("Cache store failed", "error", err)
		}
	}

	final, err := o.guard.Restore(doc, j.sidecar)
	if err != nil {
		return nil, err
	}
	j.logger.Info("Document translated", "fingerprint", j.fingerprint)
	return final, nil
}

func (o *Orchestrator) checkLanguage(j *job, doc []byte) {
	if o.langcheck == nil || !o.config.ValidateLanguage {
		return
	}
	if err := o.langcheck.Check(doc, j.lang); err != nil {
		j.logger.Warn("Translated document may not be in the target language", "error", err)
	}
}

// fail emits err as an error event and returns it.
func fail(emit Emitter, err error) error {
	if emitErr := emit(Event{Name: EventError, Data: ErrorEvent{Message: err.Error()}}); emitErr != nil {
		return errors.Join(err, emitErr)
	}
	return err
}
