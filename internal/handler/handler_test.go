package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offer-api/internal/models"
	"offer-api/internal/offertest"
	"offer-api/internal/service"
	"offer-api/internal/store"
	"offer-api/internal/store/memstore"
)

func setupTestHandler(t *testing.T, st store.Store) *chi.Mux {
	t.Helper()
	svc, err := service.NewService(st, service.Options{PublicURL: "http://localhost:5000"})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	r := chi.NewRouter()
	NewHandler(svc).Routes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func createOffer(t *testing.T, r http.Handler, payload map[string]any) string {
	t.Helper()
	rr := do(t, r, http.MethodPost, "/offers", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	return decode(t, rr)["offer_id"].(string)
}

func TestCatalogLifecycle(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	payload := offertest.Catalog("Fancy")
	rr := do(t, r, http.MethodPost, "/offers", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode(t, rr)
	id := created["offer_id"].(string)
	assert.Equal(t, "http://localhost:5000/offers/"+id, created["offer_url"])

	rr = do(t, r, http.MethodGet, "/offers/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	got := decode(t, rr)
	assert.Equal(t, id, got["offer_id"])
	assert.Equal(t, created["offer_url"], got["offer_url"])
	for _, field := range []string{"type", "provider_id", "regions", "title", "valid_from",
		"valid_until", "delivery_date", "status", "splash_pic", "highres_pic_url", "is_fullscreen", "pages"} {
		assert.Equal(t, payload[field], got[field], field)
	}

	payload["title"] = "Fancier"
	rr = do(t, r, http.MethodPut, "/offers/"+id, payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	assert.Empty(t, rr.Body.String())

	rr = do(t, r, http.MethodGet, "/offers/"+id, nil)
	assert.Equal(t, "Fancier", decode(t, rr)["title"])

	rr = do(t, r, http.MethodDelete, "/offers/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	rr = do(t, r, http.MethodGet, "/offers/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestCreateOffer_OnlineCouponMissingAffiliateURL(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	payload := offertest.OnlineCoupon("Think different")
	delete(payload, "affiliate_url")

	rr := do(t, r, http.MethodPost, "/offers", payload)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, "affiliate_url", resp.Violations[0].Field)
	assert.Equal(t, "required", resp.Violations[0].Kind)
	assert.Contains(t, resp.Error, "affiliate_url")
}

func TestReplaceOffer_TypeChangeRejected(t *testing.T) {
	r := setupTestHandler(t, memstore.New())
	id := createOffer(t, r, offertest.Catalog("Fancy"))

	rr := do(t, r, http.MethodPut, "/offers/"+id, offertest.OnlineCoupon("Think different"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, "type", resp.Violations[0].Field)
	assert.Equal(t, "immutable", resp.Violations[0].Kind)

	rr = do(t, r, http.MethodGet, "/offers/"+id, nil)
	assert.Equal(t, "catalog", decode(t, rr)["type"])
}

func TestCreateOffer_ReportsAllViolations(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	payload := offertest.Coupon("Schmancy")
	missing := []string{"provider_id", "regions", "valid_from"}
	for _, f := range missing {
		delete(payload, f)
	}

	rr := do(t, r, http.MethodPost, "/offers", payload)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	var fields []string
	for _, v := range resp.Violations {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, missing, fields)
}

func TestCreateOffer_CouponNotCheckedForPages(t *testing.T) {
	r := setupTestHandler(t, memstore.New())
	createOffer(t, r, offertest.Coupon("Schmancy"))
}

func TestCreateOffer_StripsUnknownFields(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	payload := offertest.Catalog("Fancy")
	payload["foo"] = "bar"
	id := createOffer(t, r, payload)

	rr := do(t, r, http.MethodGet, "/offers/"+id, nil)
	assert.NotContains(t, decode(t, rr), "foo")
}

func TestCreateOffer_BadBodies(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "request body is required"},
		{"null", "null", "request body is required"},
		{"not json", "{offer", "invalid JSON in request body"},
		{"array", "[]", "request body must be a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, "/offers", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rr.Code)
			}
			assert.Equal(t, tt.want, decode(t, rr)["error"])
		})
	}
}

func TestCreateOffer_BodyTooLarge(t *testing.T) {
	svc, err := service.NewService(memstore.New(), service.Options{PublicURL: "http://localhost:5000"})
	require.NoError(t, err)
	r := chi.NewRouter()
	NewHandlerWithOptions(svc, NewHandlerOptions{MaxBodySize: 64}).Routes(r)

	payload := offertest.Catalog(strings.Repeat("x", 200))
	rr := do(t, r, http.MethodPost, "/offers", payload)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
}

func TestNotFound(t *testing.T) {
	r := setupTestHandler(t, memstore.New())
	id := uuid.New().String()

	rr := do(t, r, http.MethodGet, "/offers/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for GET, got %d", rr.Code)
	}

	rr = do(t, r, http.MethodPut, "/offers/"+id, offertest.Catalog("Fancy"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for PUT, got %d", rr.Code)
	}

	rr = do(t, r, http.MethodGet, "/offers", nil)
	assert.Empty(t, decode(t, rr)["offers"], "PUT on unknown id must not create it")
}

func TestDeleteOffer_Idempotent(t *testing.T) {
	r := setupTestHandler(t, memstore.New())
	id := createOffer(t, r, offertest.Coupon("Schmancy"))

	for i := 0; i < 2; i++ {
		rr := do(t, r, http.MethodDelete, "/offers/"+id, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200 on delete %d, got %d", i+1, rr.Code)
		}
	}
}

func TestListOffers_AfterDelete(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	first := createOffer(t, r, offertest.Catalog("Fancy"))
	second := createOffer(t, r, offertest.OnlineCoupon("Think different"))
	rr := do(t, r, http.MethodDelete, "/offers/"+first, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, r, http.MethodGet, "/offers", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	offers := decode(t, rr)["offers"].([]any)
	require.Len(t, offers, 1)
	offer := offers[0].(map[string]any)
	assert.Equal(t, second, offer["offer_id"])
	assert.Equal(t, "http://localhost:5000/offers/"+second, offer["offer_url"])
}

func TestListOffers_Empty(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	rr := do(t, r, http.MethodGet, "/offers", nil)
	assert.JSONEq(t, `{"offers":[]}`, rr.Body.String())
}

func TestMockDataRoundTrip(t *testing.T) {
	r := setupTestHandler(t, memstore.New())

	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, createOffer(t, r, offertest.All()[i%3]))
	}
	sort.Strings(ids)

	rr := do(t, r, http.MethodGet, "/offers", nil)
	offers := decode(t, rr)["offers"].([]any)

	var got []string
	for _, o := range offers {
		got = append(got, o.(map[string]any)["offer_id"].(string))
	}
	sort.Strings(got)
	assert.Equal(t, ids, got)
}

// brokenStore fails every call with err.
type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) ([]byte, error) { return nil, b.err }
func (b brokenStore) Put(context.Context, string, []byte) error { return b.err }
func (b brokenStore) Delete(context.Context, string) error { return b.err }
func (b brokenStore) Keys(context.Context) ([]string, error) { return nil, b.err }
func (b brokenStore) Close() error { return nil }

func TestStoreFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unavailable", store.ErrUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("disk full"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestHandler(t, brokenStore{err: tt.err})
			id := uuid.New().String()

			for _, rr := range []*httptest.ResponseRecorder{
				do(t, r, http.MethodPost, "/offers", offertest.Coupon("Schmancy")),
				do(t, r, http.MethodGet, "/offers/"+id, nil),
				do(t, r, http.MethodPut, "/offers/"+id, offertest.Coupon("Schmancy")),
				do(t, r, http.MethodDelete, "/offers/"+id, nil),
				do(t, r, http.MethodGet, "/offers", nil),
			} {
				assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCorruptRecordIsInternalError(t *testing.T) {
	st := memstore.New()
	r := setupTestHandler(t, st)

	id := uuid.New().String()
	require.NoError(t, st.Put(context.Background(), id, []byte(`{"type":"flyer"}`)))

	rr := do(t, r, http.MethodGet, "/offers/"+id, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}
}
