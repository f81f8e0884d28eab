package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogging_PropagatesStatus(t *testing.T) {
	t.Parallel()

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), slog.New(slog.DiscardHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status not propagated: %d", rr.Code)
	}
}

func TestStatusRecorder_KeepsUpgradeInterfaces(t *testing.T) {
	t.Parallel()

	// The websocket upgrade needs Hijacker visible through the wrapper.
	var w http.ResponseWriter = &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, ok := w.(http.Hijacker); !ok {
		t.Fatalf("recorder must expose http.Hijacker")
	}
	if _, ok := w.(http.Flusher); !ok {
		t.Fatalf("recorder must expose http.Flusher")
	}
}
