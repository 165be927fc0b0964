package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/metrics"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

type stubRunner struct {
	doc   *model.MenuDocument
	err   error
	calls []model.BusinessDescriptor
}

func (s *stubRunner) Run(_ context.Context, desc model.BusinessDescriptor) (*model.MenuDocument, error) {
	s.calls = append(s.calls, desc)
	return s.doc, s.err
}

func dinerMenu() *model.MenuDocument {
	doc := model.EmptyDocument()
	doc.Sections = []model.Section{{Name: "Lunch", Items: []model.Item{
		{Name: "Burger", Price: model.Price(9)},
		{Name: "Fries", Price: model.Price(4)},
	}}}
	doc.TopItems = doc.Sections[0].Items
	doc.Metrics = metrics.Build(doc.Sections, doc.TopItems)
	doc.Sources = []model.Source{{URL: "https://joesdiner.com/menu"}}
	return doc
}

func setupServer(t *testing.T, runner menuRunner) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "menus.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(newRouter(runner, st, routerOptions{AllowedOrigins: []string{"https://app.example.com"}}))
	t.Cleanup(srv.Close)
	return srv, st
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t, &stubRunner{})

	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestPostMenus_ReturnsDocument(t *testing.T) {
	runner := &stubRunner{doc: dinerMenu()}
	srv, st := setupServer(t, runner)

	resp := post(t, srv.URL+"/v1/menus", `{"name":"Joe's Diner","city":"Springfield","website":"joesdiner.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body discoverResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Document)
	assert.Len(t, body.Document.TopItems, 2)
	assert.Nil(t, body.Save)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, model.BusinessDescriptor{Name: "Joe's Diner", City: "Springfield", Website: "joesdiner.com"}, runner.calls[0])

	rec, err := st.GetMenu(context.Background(), "joes")
	require.NoError(t, err)
	assert.Nil(t, rec, "nothing is stored without save")
}

func TestPostMenus_SaveStoresAndReportsDecision(t *testing.T) {
	srv, st := setupServer(t, &stubRunner{doc: dinerMenu()})

	resp := post(t, srv.URL+"/v1/menus", `{"business_id":"joes","save":true,"name":"Joe's Diner"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body discoverResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Save)
	assert.True(t, body.Save.Stored)
	assert.True(t, body.Save.Decision.Accept)

	rec, err := st.GetMenu(context.Background(), "joes")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Joe's Diner", rec.Business.Name)
}

func TestPostMenus_EmptyResultRejectedByGuard(t *testing.T) {
	runner := &stubRunner{doc: dinerMenu()}
	srv, st := setupServer(t, runner)

	post(t, srv.URL+"/v1/menus", `{"business_id":"joes","save":true,"name":"Joe's Diner"}`)

	runner.doc = model.EmptyDocument()
	resp := post(t, srv.URL+"/v1/menus", `{"business_id":"joes","save":true,"name":"Joe's Diner"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body discoverResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Save)
	assert.False(t, body.Save.Stored)
	assert.Equal(t, "emptied", body.Save.Decision.Reason)

	rec, err := st.GetMenu(context.Background(), "joes")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Document.ItemCount())
}

func TestPostMenus_BadRequests(t *testing.T) {
	runner := &stubRunner{doc: dinerMenu()}
	srv, _ := setupServer(t, runner)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"name":`, "invalid request body"},
		{"missing name", `{"city":"Springfield"}`, "name is required"},
		{"save without id", `{"name":"Joe's Diner","save":true}`, "business_id is required when save is set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/menus", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body["error"])
		})
	}
	assert.Empty(t, runner.calls)
}

func TestPostMenus_RunnerError(t *testing.T) {
	srv, _ := setupServer(t, &stubRunner{err: eris.New("boom")})

	resp := post(t, srv.URL+"/v1/menus", `{"name":"Joe's Diner"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetMenu_NotFound(t *testing.T) {
	srv, _ := setupServer(t, &stubRunner{})

	resp := get(t, srv.URL+"/v1/menus/nobody")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetMenu_Found(t *testing.T) {
	srv, st := setupServer(t, &stubRunner{})
	_, err := st.SaveMenu(context.Background(), "joes", model.BusinessDescriptor{Name: "Joe's Diner"}, dinerMenu())
	require.NoError(t, err)

	resp := get(t, srv.URL+"/v1/menus/joes")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec store.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "joes", rec.BusinessID)
	require.NotNil(t, rec.Document)
	require.Len(t, rec.Document.Sections, 1)
	assert.Equal(t, "Lunch", rec.Document.Sections[0].Name)
}

func TestListRuns(t *testing.T) {
	srv, st := setupServer(t, &stubRunner{})
	ctx := context.Background()
	desc := model.BusinessDescriptor{Name: "Joe's Diner"}
	_, err := st.SaveMenu(ctx, "joes", desc, dinerMenu())
	require.NoError(t, err)
	_, err = st.SaveMenu(ctx, "joes", desc, model.EmptyDocument())
	require.NoError(t, err)

	resp := get(t, srv.URL+"/v1/menus/joes/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 2)
	assert.False(t, body.Runs[0].Accepted)
	assert.Equal(t, "emptied", body.Runs[0].Reason)
	assert.True(t, body.Runs[1].Accepted)

	resp = get(t, srv.URL+"/v1/menus/joes/runs?limit=1")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Runs, 1)

	resp = get(t, srv.URL+"/v1/menus/joes/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	srv, _ := setupServer(t, &stubRunner{})

	resp := get(t, srv.URL+"/v1/menus/nobody/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["runs"]))
}

func TestCORS_AllowedOrigin(t *testing.T) {
	srv, _ := setupServer(t, &stubRunner{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/menus", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
