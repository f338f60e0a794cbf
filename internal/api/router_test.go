package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/amishk599/jobrelay/internal/metrics"
	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.SQLiteStore, *metrics.Metrics) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	return NewRouter(st, reg, discardLogger()), st, m
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := get(r, "/healthz")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, m := newTestRouter(t)
	m.MessagesProcessed.WithLabelValues("notified").Inc()

	w := get(r, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `jobrelay_messages_processed_total{outcome="notified"} 1`) {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}

func TestOpportunityEndpoints(t *testing.T) {
	r, st, _ := newTestRouter(t)
	ctx := context.Background()

	fp, err := st.RecordOpportunity(ctx, "Hiring Go devs, write @hr_team", model.SourceMeta{Channel: "go_jobs", MessageID: "7"}, 0.92,
		model.Contacts{Handles: []string{"@hr_team"}})
	if err != nil {
		t.Fatalf("RecordOpportunity: %v", err)
	}
	if _, err := st.RecordOpportunity(ctx, "lunch?", model.SourceMeta{Channel: "go_jobs", MessageID: "8"}, 0.1, model.Contacts{}); err != nil {
		t.Fatalf("RecordOpportunity: %v", err)
	}
	if err := st.RecordSent(ctx, "@hr_team", fp); err != nil {
		t.Fatalf("RecordSent: %v", err)
	}
	if err := st.RecordNotification(ctx, fp, "100:1", "100"); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	t.Run("list", func(t *testing.T) {
		w := get(r, "/api/opportunities?limit=1")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var got []opportunityView
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d items, want 1", len(got))
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		if w := get(r, "/api/opportunities?limit=zero"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("detail", func(t *testing.T) {
		w := get(r, "/api/opportunities/"+fp)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var got opportunityDetail
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if got.Fingerprint != fp || got.Score != 0.92 || got.SourceChannel != "go_jobs" {
			t.Errorf("opportunity = %+v", got.opportunityView)
		}
		if len(got.Contacts.Handles) != 1 || got.Contacts.Handles[0] != "@hr_team" {
			t.Errorf("contacts = %+v", got.Contacts)
		}
		if len(got.Notifications) != 1 || got.Notifications[0].Status != "pending" || got.Notifications[0].Operator != "100" {
			t.Errorf("notifications = %+v", got.Notifications)
		}
		if len(got.Deliveries) != 1 || got.Deliveries[0].Contact != "hr_team" {
			t.Errorf("deliveries = %+v", got.Deliveries)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if w := get(r, "/api/opportunities/deadbeef"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		w := get(r, "/api/stats")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var got struct {
			Opportunities  int            `json:"opportunities"`
			Deliveries     int            `json:"deliveries"`
			Notifications  map[string]int `json:"notifications"`
			LastDeliveries []deliveryView `json:"last_deliveries"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if got.Opportunities != 2 || got.Deliveries != 1 || got.Notifications["pending"] != 1 || len(got.LastDeliveries) != 1 {
			t.Errorf("stats = %+v", got)
		}
	})
}

type failingStore struct {
	Store
}

func (failingStore) Ping(context.Context) error { return errors.New("database is locked") }

func (failingStore) Stats(context.Context) (store.Stats, error) {
	return store.Stats{}, errors.New("database is locked")
}

func TestStoreErrors(t *testing.T) {
	r := NewRouter(failingStore{}, prometheus.NewRegistry(), discardLogger())

	if w := get(r, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz = %d, want 503", w.Code)
	}
	if w := get(r, "/api/stats"); w.Code != http.StatusInternalServerError {
		t.Errorf("stats = %d, want 500", w.Code)
	}
}
