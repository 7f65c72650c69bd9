package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// ErrBulkItems is returned when the bulk request succeeded but some items
// were rejected.
var ErrBulkItems = errors.New("bulk items rejected")

// ElasticsearchIndexer writes one document per result into the results
// index, keyed by source id so re-runs overwrite.
type ElasticsearchIndexer struct {
	client *es.Client
	index  string
}

// NewElasticsearchIndexer creates a new indexer.
func NewElasticsearchIndexer(client *es.Client, index string) *ElasticsearchIndexer {
	return &ElasticsearchIndexer{client: client, index: index}
}

type resultDocument struct {
	domain.MatchResult
	BatchID string      `json:"batch_id"`
	Mode    domain.Mode `json:"mode"`
	Matched bool        `json:"matched"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// SaveRun implements ResultSink.
func (x *ElasticsearchIndexer) SaveRun(ctx context.Context, run *domain.BatchRun) error {
	if len(run.Results) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range run.Results {
		res := run.Results[i]
		res.Diagnostics = nil

		meta := map[string]any{
			"index": map[string]any{
				"_index": x.index,
				"_id":    res.SourceID,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}

		doc := resultDocument{MatchResult: res, BatchID: run.ID, Mode: run.Mode, Matched: res.Matched()}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode result %s: %w", res.SourceID, err)
		}
	}

	res, err := x.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		x.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("bulk indexing error: %s", res.String())
	}

	var body bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !body.Errors {
		return nil
	}

	var failed []string
	for _, item := range body.Items {
		for _, r := range item {
			if r.Error != nil {
				failed = append(failed, fmt.Sprintf("%s (%s)", r.ID, r.Error.Reason))
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrBulkItems, strings.Join(failed, ", "))
}
