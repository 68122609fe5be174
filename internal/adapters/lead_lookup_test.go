package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/leads/repository"
	leadservice "leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/validator"
)

func TestLeadLookupClientDecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/leads/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"leadId":42,"ownerId":"O-1","zipCode":"70000","status":"QUOTE_REQUESTED","requoteCount":1}`))
	}))
	defer srv.Close()

	snap, err := NewLeadLookupClient(srv.URL+"/", time.Second, nil).GetLead(context.Background(), 42)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if snap.LeadID != 42 || snap.Status != "QUOTE_REQUESTED" || snap.RequoteCount != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLeadLookupClientMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   apperr.Kind
	}{
		{name: "not found", status: http.StatusNotFound, kind: apperr.KindNotFound},
		{name: "server error", status: http.StatusBadGateway, kind: apperr.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewLeadLookupClient(srv.URL, time.Second, nil).GetLead(context.Background(), 1)
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestLeadLookupClientUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLeadLookupClient(url, 200*time.Millisecond, nil).GetLead(context.Background(), 1)
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected Transient, got %v", err)
	}
}

func TestLeadLookupAdapterMapsLead(t *testing.T) {
	store := repository.NewMemStore()
	svc := leadservice.New(repository.NewMemRepository(store), validator.New(), 1, nil)
	lead, err := svc.Create(context.Background(), transport.CreateLeadRequest{PropertyID: "P-1", OwnerID: "O-1", ZipCode: "70000"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	adapter := NewLeadLookupAdapter(svc)
	snap, err := adapter.GetLead(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if snap.LeadID != lead.ID || snap.Status != "CREATED" || snap.OwnerID != "O-1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if _, err := adapter.GetLead(context.Background(), lead.ID+100); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

type recordingRetrier struct {
	mu    sync.Mutex
	calls []int
	done  chan struct{}
}

func (r *recordingRetrier) RetryLookup(_ context.Context, _ int64, attempt int) error {
	r.mu.Lock()
	r.calls = append(r.calls, attempt)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func TestTimerRetrySchedulerFiresOncePerAttempt(t *testing.T) {
	s := NewTimerRetryScheduler(nil)
	defer s.Stop()
	r := &recordingRetrier{done: make(chan struct{}, 4)}
	s.SetRetrier(r)

	ctx := context.Background()
	_ = s.ScheduleAgentLookup(ctx, 1, 2, 10*time.Millisecond)
	_ = s.ScheduleAgentLookup(ctx, 1, 2, 10*time.Millisecond)

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not fire")
	}
	select {
	case <-r.done:
		t.Fatal("duplicate schedule fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}
