package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/config"
	"github.com/agriveille/prefecture-crawler/internal/storage/memory"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

func newTestServer(t *testing.T) (*Server, *memory.DocumentStore, *memory.RunStore) {
	t.Helper()
	docs := memory.NewDocumentStore()
	runs := memory.NewRunStore()
	srv := NewServer(docs, runs, config.APIConfig{Addr: ":0", Timeout: 5 * time.Second}, zap.NewNop())
	return srv, docs, runs
}

func seedDocument(t *testing.T, docs *memory.DocumentStore, link, region, animalType string, intensive bool) store.Document {
	t.Helper()
	doc := store.Document{
		ID:                 uuid.New(),
		Title:              "Arrêté élevage",
		Link:               link,
		DateUpdated:        time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC),
		AnimalType:         animalType,
		IsAnimalProject:    true,
		IsIntensiveFarming: intensive,
		PrefectureName:     "Morbihan",
		PrefectureCode:     "56",
		RegionName:         region,
	}
	require.NoError(t, docs.Create(context.Background(), doc))
	return doc
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListDocumentsFiltersAndCounts(t *testing.T) {
	srv, docs, _ := newTestServer(t)
	seedDocument(t, docs, "https://www.morbihan.gouv.fr/a", "Bretagne", "porcin", true)
	seedDocument(t, docs, "https://www.morbihan.gouv.fr/b", "Bretagne", "bovin", false)
	seedDocument(t, docs, "https://www.somme.gouv.fr/c", "Hauts-de-France", "volaille", true)

	rec := doRequest(srv, http.MethodGet, "/v1/documents?region=Bretagne")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Documents []documentDTO `json:"documents"`
		Total     int64         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Total)
	require.Len(t, body.Documents, 2)
	for _, d := range body.Documents {
		require.Equal(t, "Bretagne", d.RegionName)
	}

	rec = doRequest(srv, http.MethodGet, "/v1/documents?intensive=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Total)
}

func TestListDocumentsRejectsBadParams(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, target := range []string{
		"/v1/documents?limit=zero",
		"/v1/documents?limit=-1",
		"/v1/documents?offset=-2",
		"/v1/documents?intensive=maybe",
	} {
		rec := doRequest(srv, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

func TestGetDocument(t *testing.T) {
	srv, docs, _ := newTestServer(t)
	doc := seedDocument(t, docs, "https://www.morbihan.gouv.fr/a", "Bretagne", "porcin", true)

	rec := doRequest(srv, http.MethodGet, "/v1/documents/"+doc.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Document documentDTO `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, doc.ID.String(), body.Document.ID)
	require.Equal(t, doc.Link, body.Document.Link)
	require.Equal(t, "porcin", body.Document.AnimalType)

	rec = doRequest(srv, http.MethodGet, "/v1/documents/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/documents/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSources(t *testing.T) {
	srv, docs, _ := newTestServer(t)
	seedDocument(t, docs, "https://www.morbihan.gouv.fr/a", "Bretagne", "porcin", true)
	seedDocument(t, docs, "https://www.morbihan.gouv.fr/b", "Bretagne", "bovin", false)

	rec := doRequest(srv, http.MethodGet, "/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []sourceDTO `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	require.Equal(t, "Morbihan", body.Sources[0].PrefectureName)
	require.Equal(t, int64(2), body.Sources[0].Documents)
}

func TestListRuns(t *testing.T) {
	srv, _, runs := newTestServer(t)
	ctx := context.Background()

	id := uuid.New()
	started := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, runs.StartRun(ctx, id, started))
	finished := started.Add(10 * time.Minute)
	require.NoError(t, runs.CompleteRun(ctx, id, finished, store.RunSuccess, store.RunTotals{
		Steps:   12,
		Changes: 4,
		Skips:   30,
	}, nil))

	rec := doRequest(srv, http.MethodGet, "/v1/runs?status=success")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, id.String(), body.Runs[0].ID)
	require.Equal(t, "success", body.Runs[0].Status)
	require.Equal(t, int64(4), body.Runs[0].Changes)
	require.NotNil(t, body.Runs[0].FinishedAt)

	rec = doRequest(srv, http.MethodGet, "/v1/runs?status=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
