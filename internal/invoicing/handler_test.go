package invoicing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestServer(f *fixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlePreview(t *testing.T) {
	h := newTestServer(newFixture())
	rec := do(t, h, http.MethodPost, "/invoicing/preview", `{"requirement_id":"REQ1","group_mode":"publisher","charges":{"shipping":10}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Mode   string `json:"mode"`
		Groups []struct {
			Key string `json:"key"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "PUBLISHER", body.Mode)
	require.Len(t, body.Groups, 2)
}

func TestHandleCommitAndFetch(t *testing.T) {
	h := newTestServer(newFixture())
	rec := do(t, h, http.MethodPost, "/invoicing/commit", `{"requirement_id":"REQ1","invoice_date":"2025-06-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var outcome CommitOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.Equal(t, CommitAll, outcome.Status)
	require.Len(t, outcome.Results, 1)

	rec = do(t, h, http.MethodGet, "/invoicing/invoices/"+outcome.Results[0].InvoiceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"group_key":"ALL"`)
}

func TestHandleCommitPartial(t *testing.T) {
	f := newFixture()
	f.repo.failGroup = "Oxford"
	rec := do(t, newTestServer(f), http.MethodPost, "/invoicing/commit", `{"requirement_id":"REQ1","group_mode":"publisher"}`)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"PARTIAL"`)
}

func TestHandleCommitRejected(t *testing.T) {
	h := newTestServer(newFixture())
	rec := do(t, h, http.MethodPost, "/invoicing/commit", `{"requirement_id":"REQ1","groups":["missing"]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem struct {
		Issues []struct {
			Code string `json:"code"`
		} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "NO_BILLABLE_LINES", problem.Issues[0].Code)
}

func TestHandleCommitValidation(t *testing.T) {
	h := newTestServer(newFixture())
	for _, body := range []string{`{`, `{}`, `{"requirement_id":"REQ1","invoice_date":"June"}`} {
		rec := do(t, h, http.MethodPost, "/invoicing/commit", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	rec := do(t, h, http.MethodGet, "/invoicing/invoices/zzz", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
