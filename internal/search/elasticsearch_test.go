package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherly/internal/config"
	"gatherly/internal/outbox"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

// fakeTransport answers like an Elasticsearch node.
type fakeTransport struct {
	mu          sync.Mutex
	requests    []recordedRequest
	indexExists bool
	indexStatus int
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	f.requests = append(f.requests, recordedRequest{method: req.Method, path: req.URL.Path, body: body})

	status := http.StatusOK
	switch {
	case req.Method == http.MethodHead:
		if !f.indexExists {
			status = http.StatusNotFound
		}
	case req.Method == http.MethodPut && strings.Contains(req.URL.Path, "/_doc/"):
		status = f.indexStatus
	}

	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Request:    req,
	}, nil
}

func testConfig() config.ElasticsearchConfig {
	return config.ElasticsearchConfig{URL: "http://es.test:9200", Index: "audit", Timeout: time.Second}
}

func TestNewClientCreatesMissingIndex(t *testing.T) {
	ft := &fakeTransport{indexStatus: http.StatusCreated}
	_, err := newElasticsearchClient(testConfig(), ft)
	require.NoError(t, err)

	require.Len(t, ft.requests, 2)
	assert.Equal(t, http.MethodHead, ft.requests[0].method)
	assert.Equal(t, http.MethodPut, ft.requests[1].method)
	assert.Equal(t, "/audit", ft.requests[1].path)
	assert.Contains(t, ft.requests[1].body, `"idempotency_key"`)
}

func TestDeliverIndexesByIdempotencyKey(t *testing.T) {
	ft := &fakeTransport{indexExists: true, indexStatus: http.StatusCreated}
	client, err := newElasticsearchClient(testConfig(), ft)
	require.NoError(t, err)

	err = client.Deliver(context.Background(), outbox.Delivery{
		EventType:      "payment.succeeded",
		Payload:        json.RawMessage(`{"payment_id":3}`),
		IdempotencyKey: "9b2e",
	})
	require.NoError(t, err)

	last := ft.requests[len(ft.requests)-1]
	assert.Equal(t, "/audit/_doc/9b2e", last.path)

	var doc AuditDocument
	require.NoError(t, json.Unmarshal([]byte(last.body), &doc))
	assert.Equal(t, "payment.succeeded", doc.EventType)
	assert.Equal(t, "9b2e", doc.IdempotencyKey)
	assert.JSONEq(t, `{"payment_id":3}`, string(doc.Payload))
}

func TestDeliverReportsIndexingError(t *testing.T) {
	ft := &fakeTransport{indexExists: true, indexStatus: http.StatusBadRequest}
	client, err := newElasticsearchClient(testConfig(), ft)
	require.NoError(t, err)

	err = client.Deliver(context.Background(), outbox.Delivery{EventType: "x", IdempotencyKey: "k", Payload: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "indexing error")
}
