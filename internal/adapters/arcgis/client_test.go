package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"storm-truck-count/internal/domain"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const servicePath = "/arcgis/rest/services/STORM_Trucks/FeatureServer"

// fakeAGOL serves the subset of the ArcGIS REST API the client uses.
type fakeAGOL struct {
	t      *testing.T
	srv    *httptest.Server
	search []map[string]any

	lastQuery   url.Values
	lastUpdate  url.Values
	updateCalls atomic.Int32
	// Methods seen per path; handlers never fail the test themselves.
	methods map[string]string
}

func newFakeAGOL(t *testing.T) *fakeAGOL {
	t.Helper()

	f := &fakeAGOL{t: t, methods: map[string]string{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/sharing/rest/generateToken", func(w http.ResponseWriter, r *http.Request) {
		f.methods[r.URL.Path] = r.Method
		_ = r.ParseForm()
		if r.PostForm.Get("username") != "publisher" || r.PostForm.Get("password") != "pw" {
			writeBody(w, map[string]any{"error": map[string]any{
				"code": 400, "message": "Unable to generate token.", "details": []string{"Invalid username or password."},
			}})
			return
		}
		writeBody(w, map[string]any{"token": "tok123", "expires": 1760000000000})
	})

	mux.HandleFunc("/sharing/rest/content/items/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/sharing/rest/content/items/")
		if id != "storm01" {
			writeBody(w, map[string]any{"error": map[string]any{
				"code": 400, "messageCode": "CONT_0001", "message": "Item does not exist or is inaccessible.",
			}})
			return
		}
		writeBody(w, f.item("storm01"))
	})

	mux.HandleFunc("/sharing/rest/search", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.lastQuery = r.URL.Query()
		writeBody(w, map[string]any{"total": len(f.search), "results": f.search})
	})

	mux.HandleFunc(servicePath, func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		writeBody(w, map[string]any{
			"layers": []map[string]any{{"id": 0, "name": "Trucks"}},
			"tables": []map[string]any{{"id": 1, "name": ""}},
		})
	})

	mux.HandleFunc(servicePath+"/0/query", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		f.lastQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"objectIdFieldName":"OBJECTID","features":[
			{"attributes":{"OBJECTID":1,"TRUCK_COUNT":9007199254740993,"LABEL":"Active plows"}}
		]}`))
	})

	mux.HandleFunc(servicePath+"/0/updateFeatures", func(w http.ResponseWriter, r *http.Request) {
		f.updateCalls.Add(1)
		f.methods[r.URL.Path] = r.Method
		_ = r.ParseForm()
		if r.PostForm.Get("token") != "tok123" {
			writeBody(w, map[string]any{"error": map[string]any{"code": 498, "message": "Invalid token."}})
			return
		}
		f.lastUpdate = r.PostForm
		writeBody(w, map[string]any{"updateResults": []map[string]any{{"objectId": 1, "success": true}}})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAGOL) item(id string) map[string]any {
	return map[string]any{
		"id":    id,
		"title": "STORM Truck Count",
		"owner": "storm_publisher",
		"type":  "Feature Service",
		"url":   f.srv.URL + servicePath,
	}
}

func (f *fakeAGOL) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("token") != "tok123" || r.URL.Query().Get("f") != "json" {
		writeBody(w, map[string]any{"error": map[string]any{"code": 499, "message": "Token Required"}})
		return false
	}
	return true
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, rootURL string, opts ...func(*Options)) *Client {
	t.Helper()

	o := Options{RootURL: rootURL, Username: "publisher", Password: "pw", Timeout: 5 * time.Second, ReadAttempts: 1}
	for _, fn := range opts {
		fn(&o)
	}

	c, err := NewClient(o)
	require.NoError(t, err)
	c.backoff = time.Millisecond
	return c
}

func TestNewClientValidatesOptions(t *testing.T) {
	_, err := NewClient(Options{Username: "u", Password: "p"})
	assert.Error(t, err)

	_, err = NewClient(Options{RootURL: "https://example.maps.arcgis.com"})
	assert.Error(t, err)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL, func(o *Options) { o.Password = "wrong" })

	err := c.SignIn(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password.")
}

func TestCallsWithoutSignInAreRejected(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL)

	_, err := c.GetItem(context.Background(), "storm01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token Required")
}

func TestGetItem(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL+"/")
	require.NoError(t, c.SignIn(context.Background()))

	item, err := c.GetItem(context.Background(), "storm01")
	require.NoError(t, err)

	want := domain.Item{
		ID:    "storm01",
		Title: "STORM Truck Count",
		Owner: "storm_publisher",
		Type:  "Feature Service",
		URL:   f.srv.URL + servicePath,
	}
	if diff := cmp.Diff(want, item); diff != "" {
		t.Fatalf("item mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, http.MethodPost, f.methods["/sharing/rest/generateToken"])
}

func TestGetItemNotFound(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	_, err := c.GetItem(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchItemsBuildsCatalogQuery(t *testing.T) {
	f := newFakeAGOL(t)
	f.search = []map[string]any{f.item("storm01"), f.item("storm02")}
	c := newTestClient(t, f.srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	items, err := c.SearchItems(context.Background(), "STORM Truck Count", "storm_publisher", "Feature Service")
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, `title:"STORM Truck Count" AND owner:"storm_publisher" AND type:"Feature Service"`, f.lastQuery.Get("q"))
	assert.Equal(t, "100", f.lastQuery.Get("num"))
}

func TestItemLayers(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	item, err := c.GetItem(context.Background(), "storm01")
	require.NoError(t, err)

	set, err := c.ItemLayers(context.Background(), item)
	require.NoError(t, err)

	want := domain.LayerSet{
		Layers: []domain.LayerRef{{ServiceURL: item.URL, ID: 0, Name: "Trucks", Kind: domain.KindLayer}},
		Tables: []domain.LayerRef{{ServiceURL: item.URL, ID: 1, Name: "table 1", Kind: domain.KindTable}},
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Fatalf("layers mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryFeaturesKeepsExactNumbers(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	layer := domain.LayerRef{ServiceURL: f.srv.URL + servicePath, ID: 0, Kind: domain.KindLayer}
	set, err := c.QueryFeatures(context.Background(), layer)
	require.NoError(t, err)

	require.Len(t, set.Features, 1)
	assert.Equal(t, "OBJECTID", set.ObjectIDField)
	assert.Equal(t, json.Number("9007199254740993"), set.Features[0].Attributes["TRUCK_COUNT"])
	assert.Equal(t, "1=1", f.lastQuery.Get("where"))
	assert.Equal(t, "*", f.lastQuery.Get("outFields"))
}

func TestUpdateFeaturesPostsOnlyGivenAttributes(t *testing.T) {
	f := newFakeAGOL(t)
	c := newTestClient(t, f.srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	layer := domain.LayerRef{ServiceURL: f.srv.URL + servicePath, ID: 0, Kind: domain.KindLayer}
	results, err := c.UpdateFeatures(context.Background(), layer, []domain.Feature{
		{Attributes: map[string]any{"OBJECTID": int64(1), "TRUCK_COUNT": int64(7)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.EditResult{{ObjectID: 1, Success: true}}, results)

	var sent []map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.lastUpdate.Get("features")), &sent))
	want := []map[string]map[string]any{{"attributes": {"OBJECTID": float64(1), "TRUCK_COUNT": float64(7)}}}
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Fatalf("features mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "json", f.lastUpdate.Get("f"))
	assert.Equal(t, http.MethodPost, f.methods[servicePath+"/0/updateFeatures"])
}

func TestUpdateFeaturesReportsEditErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "generateToken") {
			writeBody(w, map[string]any{"token": "tok123"})
			return
		}
		writeBody(w, map[string]any{"updateResults": []map[string]any{{
			"objectId": 1, "success": false,
			"error": map[string]any{"code": 1019, "description": "Field TRUCK_COUNT is not editable."},
		}}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	results, err := c.UpdateFeatures(context.Background(), domain.LayerRef{ServiceURL: srv.URL, ID: 0},
		[]domain.Feature{{Attributes: map[string]any{"OBJECTID": 1}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "1019: Field TRUCK_COUNT is not editable.", results[0].Error)
}

func TestUpdateFeaturesRejectsResultWithoutObjectID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "generateToken") {
			writeBody(w, map[string]any{"token": "tok123"})
			return
		}
		writeBody(w, map[string]any{"updateResults": []map[string]any{{"success": true}}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	_, err := c.UpdateFeatures(context.Background(), domain.LayerRef{ServiceURL: srv.URL, ID: 0},
		[]domain.Feature{{Attributes: map[string]any{"OBJECTID": 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "objectId")
}

func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "generateToken") {
			writeBody(w, map[string]any{"token": "tok123"})
			return
		}
		if hits.Add(1) <= failures {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if strings.HasSuffix(r.URL.Path, "updateFeatures") {
			writeBody(w, map[string]any{"updateResults": []map[string]any{{"objectId": 1, "success": true}}})
			return
		}
		writeBody(w, map[string]any{"id": "storm01", "url": "x"})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestReadsRetryTransientFailures(t *testing.T) {
	srv, hits := flakyServer(t, 2)
	c := newTestClient(t, srv.URL, func(o *Options) { o.ReadAttempts = 3 })
	require.NoError(t, c.SignIn(context.Background()))

	item, err := c.GetItem(context.Background(), "storm01")
	require.NoError(t, err)
	assert.Equal(t, "storm01", item.ID)
	assert.Equal(t, int32(3), hits.Load())
}

func TestReadsAreNotRetriedByDefault(t *testing.T) {
	srv, hits := flakyServer(t, 1)
	c := newTestClient(t, srv.URL)
	require.NoError(t, c.SignIn(context.Background()))

	_, err := c.GetItem(context.Background(), "storm01")
	require.Error(t, err)

	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusServiceUnavailable, he.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestUpdatesAreNeverRetried(t *testing.T) {
	srv, hits := flakyServer(t, 1)
	c := newTestClient(t, srv.URL, func(o *Options) { o.ReadAttempts = 5 })
	require.NoError(t, c.SignIn(context.Background()))

	_, err := c.UpdateFeatures(context.Background(), domain.LayerRef{ServiceURL: srv.URL, ID: 0},
		[]domain.Feature{{Attributes: map[string]any{"OBJECTID": 1}}})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestLoggingTransportRedactsToken(t *testing.T) {
	f := newFakeAGOL(t)
	core, logs := observer.New(zap.DebugLevel)
	c := newTestClient(t, f.srv.URL, func(o *Options) { o.Logger = zap.New(core) })
	require.NoError(t, c.SignIn(context.Background()))

	_, err := c.GetItem(context.Background(), "storm01")
	require.NoError(t, err)

	entries := logs.FilterMessage("arcgis request").All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		u := e.ContextMap()["url"].(string)
		assert.NotContains(t, u, "tok123")
	}
	assert.Contains(t, entries[1].ContextMap()["url"], "token=REDACTED")
}
