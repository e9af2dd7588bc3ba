// Package search queries the Tavily web search API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
	"github.com/khanhduypunnd/muse-mcp/pkg/utils"
)

const DefaultEndpoint = "https://api.tavily.com/search"

// Searcher answers free-form web queries.
type Searcher interface {
	Search(ctx context.Context, query string) (Response, error)
}

type Request struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type Response struct {
	Query   string `json:"query"`
	Answer  string `json:"answer,omitempty"`
	Results []Hit  `json:"results"`
}

type Tavily struct {
	HTTPClient  *http.Client
	Endpoint    string
	MaxResults  int
	SearchDepth string
}

func NewTavily(apiKey string, timeout time.Duration) *Tavily {
	return &Tavily{
		HTTPClient:  utils.NewHTTPClientWithBearerToken(apiKey, timeout),
		Endpoint:    DefaultEndpoint,
		MaxResults:  2,
		SearchDepth: "advanced",
	}
}

var _ Searcher = (*Tavily)(nil)

var ErrEmptyQuery = errors.New("search query is empty")

func (t *Tavily) Search(ctx context.Context, query string) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, ErrEmptyQuery
	}

	body, err := json.Marshal(Request{
		Query:         query,
		MaxResults:    t.MaxResults,
		SearchDepth:   t.SearchDepth,
		IncludeAnswer: true,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, models.Transport(models.StageSearch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return Response{}, models.Upstream(models.StageSearch, 0, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, models.Upstream(models.StageSearch, resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, models.Upstream(models.StageSearch, resp.StatusCode, strings.TrimSpace(string(raw)), nil)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, models.Upstream(models.StageSearch, resp.StatusCode, "", fmt.Errorf("decode search response: %w", err))
	}
	return out, nil
}
