package database

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulse-server/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeES(t *testing.T, headStatus, putStatus int) (*ElasticsearchClient, *[]string) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, r.Method+" "+r.URL.Path+" "+string(body))
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(headStatus)
		case http.MethodPut:
			w.WriteHeader(putStatus)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	es, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return es, &calls
}

func TestEnsureIndex(t *testing.T) {
	tests := []struct {
		name        string
		head, put   int
		wantCreated bool
		wantErr     bool
		wantCalls   int
	}{
		{name: "exists", head: http.StatusOK, wantCalls: 1},
		{name: "missing", head: http.StatusNotFound, put: http.StatusOK, wantCreated: true, wantCalls: 2},
		{name: "lost race", head: http.StatusNotFound, put: http.StatusBadRequest, wantCalls: 2},
		{name: "create fails", head: http.StatusNotFound, put: http.StatusForbidden, wantErr: true, wantCalls: 2},
		{name: "head fails", head: http.StatusUnauthorized, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es, calls := newFakeES(t, tt.head, tt.put)

			created, err := es.EnsureIndex(context.Background(), "events", `{"mappings":{}}`)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCreated, created)
			require.Len(t, *calls, tt.wantCalls)
			if tt.wantCalls == 2 {
				assert.Equal(t, `PUT /events {"mappings":{}}`, (*calls)[1])
			}
		})
	}
}
