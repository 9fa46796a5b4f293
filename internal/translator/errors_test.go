package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/valpere/cvtran/internal"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"429", &APIError{Service: "x", StatusCode: 429, Message: "slow down"}, internal.ErrRateLimited},
		{"429 quota", &APIError{Service: "x", StatusCode: 429, Message: "quota exceeded for model"}, internal.ErrQuotaExceeded},
		{"503", &APIError{Service: "x", StatusCode: 503}, internal.ErrServiceUnavailable},
		{"400", &APIError{Service: "x", StatusCode: 400, Message: "bad request"}, nil},
		{"wrapped sentinel", fmt.Errorf("fragment 2: %w", internal.ErrRateLimited), internal.ErrRateLimited},
		{"text signal", errors.New("RESOURCE_EXHAUSTED: try later"), internal.ErrQuotaExceeded},
		{"text unavailable", errors.New("model overloaded"), internal.ErrServiceUnavailable},
		{"context canceled", context.Canceled, nil},
		{"plain", errors.New("connection refused"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if IsRetryable(tt.err) != (tt.want != nil) {
				t.Errorf("IsRetryable(%v) = %v", tt.err, IsRetryable(tt.err))
			}
		})
	}
}

func TestInstructions(t *testing.T) {
	got := Instructions("es")
	if want := "Spanish (es)"; !strings.Contains(got, want) {
		t.Errorf("Instructions(es) should name %q: %s", want, got)
	}
	if LanguageName("???") != "???" {
		t.Errorf("unknown codes should be returned unchanged")
	}
}
