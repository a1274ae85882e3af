package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		APIKey:     "key123",
		BaseID:     "appBase",
		Table:      "Studies",
		BaseURL:    srv.URL,
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
	})
	return c, srv
}

func TestPendingRecordsPagination(t *testing.T) {
	calls := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.Contains(r.URL.Query().Get("filterByFormula"), "{PDF}") {
			t.Errorf("filterByFormula = %q", r.URL.Query().Get("filterByFormula"))
		}

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "" {
			fmt.Fprint(w, `{"records": [{"id": "rec1", "fields": {}}], "offset": "page2"}`)
			return
		}
		fmt.Fprint(w, `{"records": [{"id": "rec2", "fields": {}}]}`)
	}))

	records, err := c.PendingRecords(context.Background())
	if err != nil {
		t.Fatalf("PendingRecords failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "rec1" || records[1].ID != "rec2" {
		t.Errorf("records = %+v", records)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (pagination)", calls)
	}
}

func TestRecordByID(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/Studies/rec42") {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"id": "rec42", "fields": {"Study Short Name": "LearnCo"}}`)
	}))

	rec, err := c.RecordByID(context.Background(), "rec42")
	if err != nil {
		t.Fatalf("RecordByID failed: %v", err)
	}
	if rec.Str("Study Short Name") != "LearnCo" {
		t.Errorf("record = %+v", rec)
	}
}

func TestUpdatePatchesFields(t *testing.T) {
	var gotBody map[string]map[string]any
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad body: %v", err)
		}
		fmt.Fprint(w, `{"id": "rec1"}`)
	}))

	err := c.Update(context.Background(), "rec1", map[string]any{"Year": "2021"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if gotBody["fields"]["Year"] != "2021" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSetProcessingStatusClearsError(t *testing.T) {
	var gotBody map[string]map[string]any
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"id": "rec1"}`)
	}))

	if err := c.SetProcessingStatus(context.Background(), "rec1", StatusComplete, ""); err != nil {
		t.Fatalf("SetProcessingStatus failed: %v", err)
	}
	fields := gotBody["fields"]
	if fields[FieldStatus] != StatusComplete {
		t.Errorf("status = %v", fields[FieldStatus])
	}
	if v, present := fields[FieldError]; !present || v != nil {
		t.Errorf("error field should be explicit null, got %v (present %v)", v, present)
	}
}

func TestRetryOn429(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id": "rec1", "fields": {}}`)
	}))

	if _, err := c.RecordByID(context.Background(), "rec1"); err != nil {
		t.Fatalf("retry should recover from 429: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	if _, err := c.RecordByID(context.Background(), "rec1"); err == nil {
		t.Fatal("want error for 422")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestClearExtractedFields(t *testing.T) {
	var patches []map[string]map[string]any
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			var body map[string]map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			patches = append(patches, body)
			fmt.Fprint(w, `{"id": "x"}`)
			return
		}
		fmt.Fprint(w, `{"records": [
			{"id": "rec1", "fields": {"PDF": [{"url": "https://x/pdf"}], "Year": "2021", "Summary": "s"}},
			{"id": "rec2", "fields": {"PDF": [{"url": "https://y/pdf"}]}}
		]}`)
	}))

	cleared, err := c.ClearExtractedFields(context.Background())
	if err != nil {
		t.Fatalf("ClearExtractedFields failed: %v", err)
	}
	if cleared != 1 {
		t.Errorf("cleared = %d, want 1 (rec2 has only the PDF field)", cleared)
	}
	if len(patches) != 1 {
		t.Fatalf("patches = %d", len(patches))
	}
	fields := patches[0]["fields"]
	if _, hasPDF := fields[FieldPDF]; hasPDF {
		t.Error("PDF field must never be cleared")
	}
	for _, name := range []string{"Year", "Summary"} {
		if v, present := fields[name]; !present || v != nil {
			t.Errorf("%s should be nulled, got %v (present %v)", name, v, present)
		}
	}
}

func TestRecordPDFURL(t *testing.T) {
	var rec Record
	data := `{"id": "rec1", "fields": {"PDF": [{"url": "https://files/x.pdf", "filename": "x.pdf"}]}}`
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	url, ok := rec.PDFURL()
	if !ok || url != "https://files/x.pdf" {
		t.Errorf("PDFURL = %q, %v", url, ok)
	}

	if _, ok := (Record{Fields: map[string]any{}}).PDFURL(); ok {
		t.Error("record without attachment should report no PDF")
	}
}
