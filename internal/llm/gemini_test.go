package llm

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		quota     bool
		permanent bool
	}{
		{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true, false},
		{"resource exhausted status", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, true, false},
		{"pointer form", &genai.APIError{Code: 429}, true, false},
		{"bad request", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, false, true},
		{"forbidden", genai.APIError{Code: 403}, false, true},
		{"request timeout", genai.APIError{Code: 408}, false, false},
		{"server error", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, false, false},
		{"wrapped text", fmt.Errorf("rpc: %s", "RESOURCE_EXHAUSTED"), true, false},
		{"network", errors.New("dial tcp: connection refused"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, ErrQuotaExhausted) != tt.quota {
				t.Errorf("quota = %v, want %v (%v)", !tt.quota, tt.quota, got)
			}
			if errors.Is(got, ErrPermanent) != tt.permanent {
				t.Errorf("permanent = %v, want %v (%v)", !tt.permanent, tt.permanent, got)
			}
		})
	}
}
