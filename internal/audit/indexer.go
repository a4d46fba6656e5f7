// Package audit writes one Elasticsearch document per job execution and
// reads them back for diagnostics. The engine itself never reads the index.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "pulse-delivery-events"

// IndexMapping is the body used to create the events index. Identifier
// fields stay text with a keyword sub-field so event searches can filter on
// "<field>.keyword".
const IndexMapping = `{
  "mappings": {
    "properties": {
      "@timestamp":      {"type": "date"},
      "attempt":         {"type": "integer"},
      "jobId":           {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "channel":         {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "status":          {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "templateKey":     {"type": "keyword"},
      "service":         {"type": "keyword"},
      "region":          {"type": "keyword"},
      "routingRuleId":   {"type": "keyword"},
      "senderProfileId": {"type": "keyword"},
      "endpointId":      {"type": "keyword"},
      "provider":        {"type": "keyword"},
      "error":           {"type": "text"}
    }
  }
}`

// Indexer is nil-safe: a nil *Indexer drops every event.
type Indexer struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	log     logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, timeout time.Duration, log logger.Logger) *Indexer {
	if client == nil {
		return nil
	}
	if index == "" {
		index = DefaultIndex
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Indexer{
		client:  client,
		index:   index,
		timeout: timeout,
		log:     log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

// Emit indexes the event. Failures are logged and otherwise ignored; the job
// row stays the source of truth.
func (i *Indexer) Emit(ctx context.Context, event models.DeliveryEvent) {
	if i == nil {
		return
	}
	if err := i.put(ctx, event); err != nil {
		i.log.Warn("Failed to index delivery event", map[string]interface{}{
			"jobId":   event.JobID,
			"attempt": event.Attempt,
			"error":   err.Error(),
		})
	}
}

func (i *Indexer) put(ctx context.Context, event models.DeliveryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: fmt.Sprintf("%s-%d", event.JobID, event.Attempt),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index request failed: %s", res.Status())
	}
	return nil
}
