package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpoadmin/internal/api/wire"
	"fpoadmin/internal/core"
	"fpoadmin/pkg/domain"
)

const testSecret = "0123456789abcdef-secret"

type fixture struct {
	t     *testing.T
	srv   *Server
	svc   *core.Service
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	issuer, err := NewTokenIssuer(testSecret, "fpoadmin", time.Hour)
	require.NoError(t, err)
	token, _, err := issuer.Issue("operator")
	require.NoError(t, err)
	return &fixture{t: t, srv: New(svc, issuer, WithMetrics(prometheus.NewRegistry())), svc: svc, token: token}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateListUpdateDelete(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/organizations/org-1/facilities",
		`{"parent_id":"org-1","category":"office_equipment","details":{"name":"Desk","quantity":2,"condition":"good","is_functional":true}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[wire.CreateResponse](t, rec)
	require.NotEmpty(t, created.ID)

	rec = f.do(http.MethodPatch, "/api/v1/facilities/"+created.ID,
		`{"id":"`+created.ID+`","parent_id":"org-1","quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Record](t, rec)
	q, _ := updated.Attributes.Get("quantity")
	assert.EqualValues(t, 5, q)
	name, _ := updated.Attributes.Get("name")
	assert.Equal(t, "Desk", name)

	rec = f.do(http.MethodGet, "/api/v1/organizations/org-1/facilities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[wire.ListResponse](t, rec)
	require.Len(t, list.Records, 1)
	assert.Equal(t, created.ID, list.Records[0].ID)

	rec = f.do(http.MethodGet, "/api/v1/facilities/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/facilities/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/organizations/org-1/facilities", "")
	assert.Empty(t, decode[wire.ListResponse](t, rec).Records)
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestCreateAcceptsCategoryAliasAndStringDetails(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/organizations/org-1/facilities",
		`{"category":"shops_and_facilities","details":"{\"name\":\"Village shop\",\"type\":\"shop\",\"ownership\":\"rented\"}"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestErrorEnvelopes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/organizations/org-1/facilities",
		`{"category":"office_equipment","details":{"name":"Desk","colour":"red"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decode[wire.ErrorResponse](t, rec)
	assert.NotEmpty(t, env.Violations)
	fields := map[string]bool{}
	for _, v := range env.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["colour"])

	rec = f.do(http.MethodPost, "/api/v1/organizations/org-1/facilities", `{"category":"spaceship","details":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/organizations/org-1/facilities", `{"details":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/organizations/org-1/facilities", `{"parent_id":"org-2","category":"office_equipment"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPatch, "/api/v1/facilities/missing", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPatch, "/api/v1/facilities/x", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/facilities/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[wire.ErrorResponse](t, rec).Message)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	f.token = ""
	rec := f.do(http.MethodGet, "/api/v1/organizations/org-1/facilities", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.token = "not-a-jwt"
	rec = f.do(http.MethodGet, "/api/v1/organizations/org-1/facilities", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewTokenIssuer("another-secret-0123456789", "fpoadmin", time.Hour)
	require.NoError(t, err)
	f.token, _, err = other.Issue("mallory")
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/v1/organizations/org-1/facilities", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSchemasAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/schemas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "activity_facility")
	assert.Contains(t, rec.Body.String(), "shop_facility")

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenIssuer(t *testing.T) {
	_, err := NewTokenIssuer("short", "x", time.Hour)
	assert.Error(t, err)
	_, err = NewTokenIssuer(testSecret, "x", 0)
	assert.Error(t, err)

	issuer, err := NewTokenIssuer(testSecret, "fpoadmin", time.Minute)
	require.NoError(t, err)
	_, _, err = issuer.Issue(" ")
	assert.Error(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return base }
	token, exp, err := issuer.Issue("operator")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), exp)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)

	issuer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
