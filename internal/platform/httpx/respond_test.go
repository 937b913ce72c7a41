package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejection struct{ codes []string }

func (r rejection) Error() string { return "rejected: " + strings.Join(r.codes, ",") }
func (r rejection) Unwrap() error { return ErrRejected }
func (r rejection) ProblemExtensions() map[string]any {
	return map[string]any{"codes": r.codes, "status": "ignored"}
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("invoice 9: %w", ErrNotFound), http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: qty", ErrValidation), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorCarriesExtensions(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, rejection{codes: []string{"NO_BILLABLE_LINES"}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(http.StatusUnprocessableEntity), body["status"])
	assert.Equal(t, []any{"NO_BILLABLE_LINES"}, body["codes"])
}

type sampleRequest struct {
	SchoolID string `json:"school_id" validate:"required"`
	Qty      int    `json:"qty" validate:"gte=0"`
}

func TestDecodeJSONValidates(t *testing.T) {
	var req sampleRequest
	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":-1}`)), &req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "schoolid required")
	assert.Contains(t, err.Error(), "qty gte")

	err = DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), &req)
	require.ErrorIs(t, err, ErrValidation)

	err = DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"school_id":"S1","qty":2}`)), &req)
	require.NoError(t, err)
	assert.Equal(t, "S1", req.SchoolID)
}
