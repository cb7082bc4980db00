package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/docling/docling-agent/internal/domain"
)

func testFile() domain.File {
	return domain.NewFile("facture.pdf", []byte("%PDF-fake."), "application/pdf")
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(&Config{BaseURL: srv.URL, Token: "secret"})
	return client, srv
}

func TestProcessInvoice(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/invoices/process" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "gemini-3-flash-preview" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("source"); got != "mobile" {
			t.Errorf("source = %q", got)
		}
		if _, header, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		} else if header.Filename != "facture.pdf" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "job_id": "job-123"}`))
	}))

	resp, err := client.ProcessInvoice(context.Background(), testFile(), "gemini-3-flash-preview", domain.SourceMobile)
	if err != nil {
		t.Fatalf("ProcessInvoice() error = %v", err)
	}
	if !resp.Success || resp.JobID != "job-123" {
		t.Errorf("resp = %+v, want success with job-123", resp)
	}
}

func TestProcessInvoiceSynchronousProducts(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "products": [{"designation_raw": "Ciment", "prix_remise_ht": 8.5}]}`))
	}))

	resp, err := client.ProcessInvoice(context.Background(), testFile(), "m", domain.SourcePC)
	if err != nil {
		t.Fatalf("ProcessInvoice() error = %v", err)
	}
	if resp.JobID != "" {
		t.Errorf("JobID = %q, want empty on the synchronous path", resp.JobID)
	}
	if len(resp.Products) != 1 || resp.Products[0].DesignationRaw != "Ciment" {
		t.Errorf("products = %v", resp.Products)
	}
}

func TestUnauthorizedRunsHookOnceAndNeverRetries(t *testing.T) {
	var requests, hookCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(&Config{
		BaseURL:        srv.URL,
		OnUnauthorized: func() { hookCalls.Add(1) },
	})

	_, err := client.JobStatus(context.Background(), "job-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server received %d requests, want 1 (no retry on 401)", got)
	}
	if got := hookCalls.Load(); got != 1 {
		t.Errorf("unauthorized hook ran %d times, want 1", got)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var requests atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "completed"}`))
	}))

	st, err := client.JobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if !st.Completed() {
		t.Errorf("status = %q, want completed", st.Status)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("server received %d requests, want 3", got)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var requests atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "unsupported file type"}`))
	}))

	_, err := client.ProcessInvoice(context.Background(), testFile(), "m", domain.SourcePC)
	if err == nil {
		t.Fatal("error = nil, want 422 failure")
	}
	if !strings.Contains(err.Error(), "unsupported file type") {
		t.Errorf("error = %q, want the server detail preserved", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server received %d requests, want 1 (no retry on 4xx)", got)
	}
}

func TestJobStatusParsesResult(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/invoices/status/job-9" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "completed", "result": {"products": [{"designation_raw": "Sable"}], "products_added": 1}}`))
	}))

	st, err := client.JobStatus(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if !st.Completed() || st.Failed() {
		t.Errorf("terminal flags wrong for %+v", st)
	}
	if st.Result == nil || st.Result.ProductsAdded != 1 || len(st.Result.Products) != 1 {
		t.Errorf("result = %+v", st.Result)
	}
}

func TestSaveBatch(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/catalogue/batch" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{`"produits"`, `"source":"mobile"`, `"designation_raw":"Ciment"`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("request body missing %s: %s", want, body)
			}
		}
		w.Write([]byte(`{"success": true}`))
	}))

	err := client.SaveBatch(context.Background(), []domain.ExtractedProduct{{DesignationRaw: "Ciment"}}, domain.SourceMobile)
	if err != nil {
		t.Fatalf("SaveBatch() error = %v", err)
	}
}

func TestCompare(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "ciment" {
			t.Errorf("search = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"produits": [{"designation_raw": "Ciment", "fournisseur": "Point P"}, {"designation_raw": "Ciment", "fournisseur": "Leroy"}]}`))
	}))

	products, err := client.Compare(context.Background(), "ciment")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(products) != 2 {
		t.Errorf("got %d products, want 2", len(products))
	}
}

func TestStats(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stats" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_produits": 120, "total_fournisseurs": 8, "total_familles": 5, "low_confidence": 3, "depuis_mobile": 40, "cette_semaine": 12}`))
	}))

	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalProduits != 120 || stats.TotalFournisseurs != 8 || stats.LowConfidence != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestOnline(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))

	if !client.Online(context.Background()) {
		t.Error("Online() = false against a healthy server")
	}

	srv.Close()
	if client.Online(context.Background()) {
		t.Error("Online() = true against a closed server")
	}
}
