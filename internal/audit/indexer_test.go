// internal/audit/indexer_test.go
package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetingsync/internal/common/config"
	"meetingsync/internal/common/database"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

type capturedRequest struct {
	method string
	path   string
	body   []byte
}

func newIndexerFixture(t *testing.T, status int) (*Indexer, *[]capturedRequest) {
	t.Helper()

	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path, body: body})
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(status)
		w.Write([]byte(`{"result": "created"}`))
	}))
	t.Cleanup(server.Close)

	es, err := database.NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{server.URL}})
	require.NoError(t, err)

	return NewIndexer(es, "session-audit", logger.NewTestLogger(t)), &captured
}

func TestIndex_WritesAuditDocument(t *testing.T) {
	indexer, captured := newIndexerFixture(t, http.StatusCreated)

	entry := models.AuditEntry{
		ID:         "entry-1",
		Action:     "response_submitted",
		QuestionID: "summary_accuracy",
		Digest:     "Response recorded for summary_accuracy",
		Metadata:   map[string]interface{}{"revised": false},
		Timestamp:  time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
	}
	indexer.Index(context.Background(), "session-1", entry)

	require.Len(t, *captured, 1)
	request := (*captured)[0]
	assert.Equal(t, http.MethodPut, request.method)
	assert.Equal(t, "/session-audit/_doc/entry-1", request.path)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(request.body, &doc))
	assert.Equal(t, "session-1", doc["sessionId"])
	assert.Equal(t, "response_submitted", doc["action"])
	assert.Equal(t, "summary_accuracy", doc["questionId"])
	assert.Equal(t, "Response recorded for summary_accuracy", doc["digest"])
}

func TestIndex_RejectionDoesNotPanic(t *testing.T) {
	indexer, captured := newIndexerFixture(t, http.StatusServiceUnavailable)

	indexer.Index(context.Background(), "session-1", models.AuditEntry{ID: "entry-1", Action: "session_created"})

	require.Len(t, *captured, 1)
}

func TestNewIndexer_DefaultIndexName(t *testing.T) {
	indexer := NewIndexer(nil, "", logger.NewNoOpLogger())
	assert.Equal(t, "session-audit", indexer.index)
}

func TestBootstrap_CreatesMissingIndex(t *testing.T) {
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path})
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"acknowledged": true}`))
	}))
	t.Cleanup(server.Close)

	es, err := database.NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{server.URL}})
	require.NoError(t, err)
	indexer := NewIndexer(es, "session-audit", logger.NewTestLogger(t))

	require.NoError(t, indexer.Bootstrap(context.Background()))

	require.Len(t, captured, 2)
	assert.Equal(t, http.MethodHead, captured[0].method)
	assert.Equal(t, "/session-audit", captured[0].path)
	assert.Equal(t, http.MethodPut, captured[1].method)
	assert.Equal(t, "/session-audit", captured[1].path)
}

func TestBootstrap_ExistingIndexIsLeftAlone(t *testing.T) {
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path})
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	es, err := database.NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{server.URL}})
	require.NoError(t, err)
	indexer := NewIndexer(es, "session-audit", logger.NewTestLogger(t))

	require.NoError(t, indexer.Bootstrap(context.Background()))

	require.Len(t, captured, 1)
	assert.Equal(t, http.MethodHead, captured[0].method)
}
