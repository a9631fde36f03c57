package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matlab-research/ontserve/internal/types"
)

// ParsedTriple is one normalized fact returned by the collaborator parser.
type ParsedTriple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	IsLiteral bool   `json:"is_literal"`
}

// ParsedEntity is one labeled entity extracted from the document.
type ParsedEntity struct {
	URI         string `json:"uri"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ParseResult is the collaborator parser's output for one document.
type ParseResult struct {
	Triples  []ParsedTriple `json:"triples"`
	Entities []ParsedEntity `json:"entities"`
}

// OntologyParser turns raw document text into triples and labeled
// entities. The parser is an external collaborator; a failed parse aborts
// the enclosing save and leaves the prior version current.
type OntologyParser interface {
	Parse(ctx context.Context, documentText string) (*ParseResult, error)
}

// HTTPParser calls a remote parser service.
type HTTPParser struct {
	URL    string
	Client *http.Client
}

// NewHTTPParser returns a parser bound to the collaborator URL, or nil if
// no parser is configured (saves then skip parsing).
func NewHTTPParser(url string) *HTTPParser {
	if url == "" {
		return nil
	}
	return &HTTPParser{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Parse implements OntologyParser.
func (p *HTTPParser) Parse(ctx context.Context, documentText string) (*ParseResult, error) {
	payload, err := json.Marshal(map[string]string{"content": documentText})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", types.ErrParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: parser returned %d: %s", types.ErrParse, resp.StatusCode, string(body))
	}

	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", types.ErrParse, err)
	}
	return &result, nil
}
