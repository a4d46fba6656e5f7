package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/models"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const maxSearchSize = 100

// EventQuery narrows a search. Zero values are ignored.
type EventQuery struct {
	JobID   string           `form:"jobId"`
	Channel models.Channel   `form:"channel" binding:"omitempty,channel"`
	Status  models.JobStatus `form:"status"`
	From    int              `form:"offset" binding:"omitempty,min=0"`
	Size    int              `form:"limit" binding:"omitempty,min=1,max=100"`
}

type EventPage struct {
	Events []models.DeliveryEvent `json:"events"`
	Total  int64                  `json:"total"`
}

func buildEventQuery(q EventQuery) map[string]interface{} {
	filters := []interface{}{}
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}
	term("jobId.keyword", q.JobID)
	term("channel.keyword", string(q.Channel))
	term("status.keyword", string(q.Status))

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
		"sort": []interface{}{
			map[string]interface{}{"@timestamp": map[string]interface{}{"order": "desc"}},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.DeliveryEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns matching events, newest first. A nil Indexer returns an
// empty page.
func (i *Indexer) Search(ctx context.Context, q EventQuery) (*EventPage, error) {
	page := &EventPage{Events: []models.DeliveryEvent{}}
	if i == nil {
		return page, nil
	}
	if q.Size <= 0 {
		q.Size = 20
	}
	if q.Size > maxSearchSize {
		q.Size = maxSearchSize
	}

	body, err := json.Marshal(buildEventQuery(q))
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  strings.NewReader(string(body)),
		From:  &q.From,
		Size:  &q.Size,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("search delivery events: %w", err))
	}
	defer res.Body.Close()

	// The index is created lazily by the first event.
	if res.StatusCode == 404 {
		return page, nil
	}
	if res.IsError() {
		return nil, errors.NewInternalError(fmt.Errorf("search delivery events: %s", res.Status()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errors.NewInternalError(err)
	}
	page.Total = r.Hits.Total.Value
	for _, hit := range r.Hits.Hits {
		page.Events = append(page.Events, hit.Source)
	}
	return page, nil
}
