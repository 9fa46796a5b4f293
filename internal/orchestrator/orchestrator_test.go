package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/cvtran/internal"
	"github.com/valpere/cvtran/internal/resilience"
	"github.com/valpere/cvtran/internal/store"
	"github.com/valpere/cvtran/internal/translator"
)

const sampleDocument = `{
  "personalInfo": {"name": "Ada", "title": "Senior Engineer", "photo": "data:image/png;base64,AAAA"},
  "summary": "Hello world, I build analytical engines.",
  "experience": [{"title": "Engineer", "company": "Analytical Engines"}],
  "skills": ["Go", "SQL"]
}`

var spanish = strings.NewReplacer("Senior", "Sénior", "Engineer", "Ingeniero", "Hello world", "Hola mundo")

type mockService struct {
	nameVal       string
	translateFunc func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error)

	mu        sync.Mutex
	requests  []string
	callCount atomic.Int32
}

func (m *mockService) Name() string { return m.nameVal }

func (m *mockService) Translate(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, req.Text)
	m.mu.Unlock()
	if m.translateFunc != nil {
		return m.translateFunc(ctx, req)
	}
	return &translator.ServiceResult{ServiceName: m.nameVal, TranslatedText: spanish.Replace(req.Text)}, nil
}

func (m *mockService) IsAvailable(ctx context.Context) error { return nil }

func newOrchestrator(t *testing.T, svc translator.TranslationService) (*Orchestrator, store.Cache) {
	t.Helper()
	cache, err := store.NewFileStore(t.TempDir(), store.DefaultRetention)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	policy := resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, FallbackAfter: 2}
	controller := resilience.NewController(policy, svc, nil, nil)
	config := OrchestratorConfig{ChunkSize: 40, BatchSize: 2, Timeout: 5 * time.Second}
	return New(controller, cache, nil, config), cache
}

func request(lang string) internal.TranslationRequest {
	return internal.TranslationRequest{ID: "test", TargetLang: lang, Document: json.RawMessage(sampleDocument)}
}

type recorder struct {
	events []Event
	failAt string
}

func (r *recorder) emit(e Event) error {
	r.events = append(r.events, e)
	if r.failAt != "" && e.Name == r.failAt {
		return errors.New("client went away")
	}
	return nil
}

func (r *recorder) names() []string {
	var names []string
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}

func TestTranslateStream_EventSequence(t *testing.T) {
	svc := &mockService{nameVal: "mock"}
	o, _ := newOrchestrator(t, svc)

	rec := &recorder{}
	require.NoError(t, o.TranslateStream(context.Background(), request("es"), rec.emit))

	require.GreaterOrEqual(t, len(rec.events), 4)
	start, ok := rec.events[0].Data.(StartEvent)
	require.True(t, ok, "first event must be start")
	assert.False(t, start.Cached)
	require.GreaterOrEqual(t, start.FragmentCount, 2)
	require.Len(t, rec.events, start.FragmentCount+2)

	lastProgress := 0
	for i, e := range rec.events[1 : len(rec.events)-1] {
		chunk, ok := e.Data.(ChunkEvent)
		require.True(t, ok, "event %d is %s", i+1, e.Name)
		assert.Equal(t, i, chunk.Index)
		assert.Greater(t, chunk.ProgressPercent, lastProgress)
		lastProgress = chunk.ProgressPercent
	}
	assert.Equal(t, 100, lastProgress)

	done, ok := rec.events[len(rec.events)-1].Data.(DoneEvent)
	require.True(t, ok)
	assert.True(t, done.Success)

	var doc struct {
		PersonalInfo map[string]string `json:"personalInfo"`
		Summary      string            `json:"summary"`
		Skills       []string          `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(done.Document, &doc))
	assert.Equal(t, "Sénior Ingeniero", doc.PersonalInfo["title"])
	assert.Equal(t, "data:image/png;base64,AAAA", doc.PersonalInfo["photo"])
	assert.True(t, strings.HasPrefix(doc.Summary, "Hola mundo"))
	assert.Len(t, doc.Skills, 2)
}

func TestTranslateStream_CacheHit(t *testing.T) {
	svc := &mockService{nameVal: "mock"}
	o, _ := newOrchestrator(t, svc)

	first := &recorder{}
	require.NoError(t, o.TranslateStream(context.Background(), request("es"), first.emit))
	calls := svc.callCount.Load()

	second := &recorder{}
	require.NoError(t, o.TranslateStream(context.Background(), request("ES"), second.emit))

	assert.Equal(t, calls, svc.callCount.Load(), "cache hit must not call the backend")
	assert.Equal(t, []string{EventStart, EventChunk, EventDone}, second.names())
	assert.Equal(t, StartEvent{FragmentCount: 1, Cached: true}, second.events[0].Data)

	chunk := second.events[1].Data.(ChunkEvent)
	assert.Equal(t, 100, chunk.ProgressPercent)

	want := first.events[len(first.events)-1].Data.(DoneEvent).Document
	got := second.events[2].Data.(DoneEvent).Document
	assert.JSONEq(t, string(want), string(got))
	assert.JSONEq(t, string(want), chunk.Text)
}

func TestTranslateStream_RedactedFieldsNeverSent(t *testing.T) {
	svc := &mockService{nameVal: "mock"}
	o, _ := newOrchestrator(t, svc)

	require.NoError(t, o.TranslateStream(context.Background(), request("es"), (&recorder{}).emit))
	for _, text := range svc.requests {
		assert.NotContains(t, text, "data:image")
	}
}

func TestTranslateStream_MalformedOutputIsNotCached(t *testing.T) {
	svc := &mockService{
		nameVal: "mock",
		translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{TranslatedText: `{"unexpected": 1}`}, nil
		},
	}
	o, cache := newOrchestrator(t, svc)

	rec := &recorder{}
	err := o.TranslateStream(context.Background(), request("es"), rec.emit)
	require.ErrorIs(t, err, internal.ErrMalformedOutput)

	names := rec.names()
	assert.Equal(t, EventError, names[len(names)-1])
	assert.NotContains(t, names, EventDone)

	stats, err := cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTranslations)
}

func TestTranslateStream_HealsModelOutput(t *testing.T) {
	svc := &mockService{
		nameVal: "mock",
		translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			out := spanish.Replace(req.Text)
			// fenced, truncated before the final closer
			return &translator.ServiceResult{TranslatedText: "```json\n" + out[:len(out)-1] + "\n```"}, nil
		},
	}
	o, _ := newOrchestrator(t, svc)

	rec := &recorder{}
	require.NoError(t, o.TranslateStream(context.Background(), request("es"), rec.emit))
	done := rec.events[len(rec.events)-1].Data.(DoneEvent)
	assert.True(t, json.Valid(done.Document))
	assert.Contains(t, string(done.Document), "Ingeniero")
}

func TestTranslateStream_StopsWhenEmitFails(t *testing.T) {
	svc := &mockService{nameVal: "mock"}
	o, _ := newOrchestrator(t, svc)

	rec := &recorder{failAt: EventChunk}
	err := o.TranslateStream(context.Background(), request("es"), rec.emit)
	require.Error(t, err)
	assert.Equal(t, int32(1), svc.callCount.Load())
	assert.Equal(t, []string{EventStart, EventChunk}, rec.names())
}

func TestTranslateStream_MissingParameters(t *testing.T) {
	o, _ := newOrchestrator(t, &mockService{nameVal: "mock"})

	tests := []struct {
		name string
		req  internal.TranslationRequest
		want error
	}{
		{"no language", internal.TranslationRequest{Document: json.RawMessage(`{"a":"b"}`)}, internal.ErrMissingParameters},
		{"no document", internal.TranslationRequest{TargetLang: "es"}, internal.ErrMissingParameters},
		{"null document", internal.TranslationRequest{TargetLang: "es", Document: json.RawMessage("null")}, internal.ErrMissingParameters},
		{"invalid document", internal.TranslationRequest{TargetLang: "es", Document: json.RawMessage(`{"a":`)}, internal.ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			err := o.TranslateStream(context.Background(), tt.req, rec.emit)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, []string{EventError}, rec.names())
		})
	}
}

func TestTranslateBatch_TranslatesAndCaches(t *testing.T) {
	svc := &mockService{nameVal: "mock"}
	o, cache := newOrchestrator(t, svc)

	out, err := o.TranslateBatch(context.Background(), request("es"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Ingeniero")

	var doc struct {
		Skills []string `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, []string{"Go", "SQL"}, doc.Skills)

	stats, err := cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTranslations)
}

func TestTranslateBatch_DegradesFailedFragments(t *testing.T) {
	svc := &mockService{
		nameVal: "mock",
		translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, &translator.APIError{Service: "mock", StatusCode: 503, Message: "overloaded"}
		},
	}
	o, _ := newOrchestrator(t, svc)

	out, err := o.TranslateBatch(context.Background(), request("es"))
	require.NoError(t, err)
	assert.JSONEq(t, sampleDocument, string(out))
	assert.Contains(t, string(out), "Engineer")
}

func TestTranslateBatch_PartialDegradation(t *testing.T) {
	svc := &mockService{
		nameVal: "mock",
		translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			if strings.Contains(req.Text, "skills") {
				return nil, &translator.APIError{Service: "mock", StatusCode: 429, Message: "slow down"}
			}
			return &translator.ServiceResult{TranslatedText: spanish.Replace(req.Text)}, nil
		},
	}
	o, _ := newOrchestrator(t, svc)

	out, err := o.TranslateBatch(context.Background(), request("es"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Ingeniero")
	assert.Contains(t, string(out), `"skills":["Go","SQL"]`)
}

func TestTranslateBatch_ContextCancelled(t *testing.T) {
	svc := &mockService{
		nameVal: "mock",
		translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o, _ := newOrchestrator(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.TranslateBatch(ctx, request("es"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Defaults(t *testing.T) {
	o := New(nil, nil, nil, OrchestratorConfig{})
	assert.Equal(t, DefaultConfig().ChunkSize, o.config.ChunkSize)
	assert.Equal(t, DefaultConfig().BatchSize, o.config.BatchSize)
	assert.Equal(t, DefaultConfig().Timeout, o.config.Timeout)
	assert.NotNil(t, o.guard)
}
