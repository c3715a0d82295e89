// Package archive keeps a searchable record of answered queries in OpenSearch.
package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/signer"

	"vision-assist/citation"
	"vision-assist/config"
)

// Exchange is one answered query as stored in the index.
type Exchange struct {
	Query     string              `json:"query"`
	Response  string              `json:"response"`
	Outcome   string              `json:"outcome"`
	Citations []citation.Citation `json:"citations"`
	AskedAt   time.Time           `json:"asked_at"`
}

type Store struct {
	client *opensearch.Client
	index  string
}

// New connects to the configured cluster. requestSigner may be nil; it is set when the
// cluster sits behind AWS IAM auth.
func New(cfg config.Archive, requestSigner signer.Signer) (*Store, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
		},
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Signer:    requestSigner,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return NewWithClient(client, cfg.Index), nil
}

func NewWithClient(client *opensearch.Client, index string) *Store {
	return &Store{client: client, index: index}
}

// Record indexes the exchange under a generated document id.
func (s *Store) Record(ctx context.Context, exchange Exchange) error {
	docBody, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: s.index,
		Body:  bytes.NewReader(docBody),
	}

	insertResponse, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to index exchange: %w", err)
	}
	defer insertResponse.Body.Close()

	if insertResponse.StatusCode >= 300 {
		return fmt.Errorf("unexpected indexing response writing exchange: %s", insertResponse.String())
	}
	return nil
}

// Recent returns up to size exchanges, newest first.
func (s *Store) Recent(ctx context.Context, size int) ([]Exchange, error) {
	queryBytes, err := json.Marshal(struct {
		Size int              `json:"size"`
		Sort []map[string]any `json:"sort"`
	}{
		Size: size,
		Sort: []map[string]any{
			{"asked_at": map[string]string{"order": "desc"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history query: %w", err)
	}

	searchReq := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(queryBytes),
	}

	searchResponse, err := searchReq.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute history query: %w", err)
	}
	defer searchResponse.Body.Close()

	if searchResponse.StatusCode == http.StatusNotFound {
		// nothing has been recorded yet
		return []Exchange{}, nil
	}
	if searchResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response to history query: %s", searchResponse.String())
	}

	bodyBytes, err := io.ReadAll(searchResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read history response body: %w", err)
	}

	result := struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Source Exchange `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}{}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize history results: %w", err)
	}

	exchanges := make([]Exchange, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		exchanges[i] = result.Hits.Hits[i].Source
	}
	return exchanges, nil
}
