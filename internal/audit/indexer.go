package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"meetingsync/internal/common/database"
	"meetingsync/internal/common/logger"
	"meetingsync/internal/models"
)

// Indexer mirrors session audit entries into Elasticsearch so the trail can
// be searched across sessions after the in-session copy is truncated by the
// retention cap. Indexing is best effort and never fails the operation that
// produced the entry.
type Indexer struct {
	es    *database.ElasticsearchClient
	index string
	log   logger.Logger
}

func NewIndexer(es *database.ElasticsearchClient, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = "session-audit"
	}
	return &Indexer{es: es, index: index, log: log}
}

// Bootstrap creates the audit index if it is missing. Called once at startup
// so the first entry does not depend on auto-creation being enabled.
func (i *Indexer) Bootstrap(ctx context.Context) error {
	return i.es.EnsureIndex(ctx, i.index)
}

type auditDocument struct {
	SessionID  string                 `json:"sessionId"`
	EntryID    string                 `json:"entryId"`
	Action     string                 `json:"action"`
	QuestionID string                 `json:"questionId,omitempty"`
	Digest     string                 `json:"digest"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (i *Indexer) Index(ctx context.Context, sessionID string, entry models.AuditEntry) {
	doc := auditDocument{
		SessionID:  sessionID,
		EntryID:    entry.ID,
		Action:     entry.Action,
		QuestionID: entry.QuestionID,
		Digest:     entry.Digest,
		Metadata:   entry.Metadata,
		Timestamp:  entry.Timestamp,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		i.log.WithError(err).Warn("Failed to encode audit document")
		return
	}

	res, err := i.es.Client.Index(
		i.index,
		bytes.NewReader(body),
		i.es.Client.Index.WithContext(ctx),
		i.es.Client.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		i.log.WithError(err).WithFields(map[string]interface{}{
			"sessionId": sessionID,
		}).Warn("Failed to index audit entry")
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		i.log.WithFields(map[string]interface{}{
			"sessionId": sessionID,
			"status":    res.Status(),
		}).Warn("Elasticsearch rejected audit entry")
	}
}
