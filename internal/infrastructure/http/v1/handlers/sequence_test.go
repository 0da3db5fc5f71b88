package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/internal/infrastructure/http/v1/middleware"
)

// stubService answers the management calls with canned data; value calls
// go to the embedded MockGenerator.
type stubService struct {
	*numerator.MockGenerator
}

func (stubService) Create(context.Context, *numerator.Sequence) error { return nil }

func (stubService) Get(_ context.Context, seqID id.ID) (*numerator.Sequence, error) {
	seq := numerator.NewSequence("stub", "Stub")
	seq.ID = seqID
	return seq, nil
}

func (stubService) List(context.Context, numerator.ListFilter) ([]*numerator.Sequence, error) {
	return nil, nil
}

func (stubService) SetNextNumber(context.Context, id.ID, int64) error { return nil }

func (stubService) UpdateReset(context.Context, id.ID, numerator.ResetSettings) (*numerator.Sequence, error) {
	return nil, errors.New("not used")
}

func newSequenceEngine(gen *numerator.MockGenerator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.OptionalAuth(nil))

	h := NewSequenceHandler(NewBaseHandler(), stubService{MockGenerator: gen})
	g := r.Group("/sequences")
	h.RegisterRoutes(g, g)
	return r
}

func TestNextByCode_PassesCallContext(t *testing.T) {
	company := id.New()
	var got numerator.CallContext
	var gotCode string

	r := newSequenceEngine(&numerator.MockGenerator{
		NextByCodeFunc: func(_ context.Context, call numerator.CallContext, code string) (string, bool, error) {
			got, gotCode = call, code
			return "SO/0042", true, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/sequences/code/sale.order/next",
		strings.NewReader(`{"effectiveDate":"2024-02-29","rangeDate":"2024-01-01"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderCompanyID, company.String())
	req.Header.Set(middleware.HeaderTimezone, "Europe/Kyiv")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"value":"SO/0042","found":true}`, w.Body.String())
	assert.Equal(t, "sale.order", gotCode)
	require.NotNil(t, got.CompanyID)
	assert.Equal(t, company, *got.CompanyID)
	assert.Equal(t, "Europe/Kyiv", got.Timezone)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *got.EffectiveDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *got.RangeDate)
}

func TestNextByCode_DatesFromQuery(t *testing.T) {
	var got numerator.CallContext
	r := newSequenceEngine(&numerator.MockGenerator{
		NextByCodeFunc: func(_ context.Context, call numerator.CallContext, _ string) (string, bool, error) {
			got = call
			return "INV/2023/0001", true, nil
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/sequences/code/inv/next?effectiveDate=2023-12-30&rangeDate=2023-01-01", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, got.EffectiveDate)
	require.NotNil(t, got.RangeDate)
	assert.Equal(t, time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), *got.EffectiveDate)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), *got.RangeDate)
}

func TestNextByCode_BodyOverridesQuery(t *testing.T) {
	var got numerator.CallContext
	r := newSequenceEngine(&numerator.MockGenerator{
		NextByCodeFunc: func(_ context.Context, call numerator.CallContext, _ string) (string, bool, error) {
			got = call
			return "x", true, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/sequences/code/inv/next?effectiveDate=2023-12-30",
		strings.NewReader(`{"effectiveDate":"2024-03-01"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, got.EffectiveDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *got.EffectiveDate)
	assert.Nil(t, got.RangeDate)
}

func TestNextByID_BadQueryDate(t *testing.T) {
	r := newSequenceEngine(&numerator.MockGenerator{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/sequences/"+id.New().String()+"/next?rangeDate=2023-13-01", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "rangeDate")
}

func TestNextByID_DefaultMock(t *testing.T) {
	r := newSequenceEngine(&numerator.MockGenerator{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sequences/"+id.New().String()+"/next", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":"MOCK-00001","found":true}`, w.Body.String())
}

func TestNextByID_UnexpectedError(t *testing.T) {
	r := newSequenceEngine(&numerator.MockGenerator{
		NextByIDFunc: func(context.Context, numerator.CallContext, id.ID) (string, error) {
			return "", errors.New("connection reset by peer")
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sequences/"+id.New().String()+"/next", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset", "internal causes are not leaked")
}

func TestNextByCode_MalformedBody(t *testing.T) {
	r := newSequenceEngine(&numerator.MockGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/sequences/code/x/next", strings.NewReader(`{"effectiveDate":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
