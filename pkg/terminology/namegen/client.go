// Package namegen is the HTTP client of the external name generation
// service that turns product axioms into fully specified names and
// preferred terms.
package namegen

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

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
)

// Client calls POST {baseURL}/api/generate.
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxRetries sets how often a request failing with a server error is
// attempted. Generation is deterministic, so repeating it is safe.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a name generator client.
func NewClient(baseURL string, httpClient *http.Client, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       httpClient,
		maxRetries: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var _ terminology.NameGenerator = (*Client)(nil)

type generateRequest struct {
	SemanticTag string `json:"semanticTag"`
	Axiom       string `json:"owlAxiom"`
}

// GenerateNames asks the service for the names of the concept axiom
// describes.
func (c *Client) GenerateNames(ctx context.Context, semanticTag, axiom string) (terminology.Names, error) {
	return util.RetryIfWithContext(ctx, c.maxRetries, func(err error) bool {
		return errors.Is(err, common.ErrRepositoryUnavailable)
	}, func(ctx context.Context) (terminology.Names, error) {
		return c.generate(ctx, semanticTag, axiom)
	})
}

func (c *Client) generate(ctx context.Context, semanticTag, axiom string) (terminology.Names, error) {
	data, err := json.Marshal(generateRequest{SemanticTag: semanticTag, Axiom: axiom})
	if err != nil {
		return terminology.Names{}, fmt.Errorf("failed to encode name request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return terminology.Names{}, fmt.Errorf("failed to create name request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return terminology.Names{}, &common.RepositoryError{Op: "generate names", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return terminology.Names{}, &common.RepositoryError{Op: "generate names", StatusCode: resp.StatusCode, Err: err}
		}
		return terminology.Names{}, fmt.Errorf("name generation failed: %w", err)
	}

	var names terminology.Names
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return terminology.Names{}, fmt.Errorf("failed to decode generated names: %w", err)
	}
	if names.FSN == "" || names.PT == "" {
		return terminology.Names{}, fmt.Errorf("name generation returned empty names for %q", semanticTag)
	}
	return names, nil
}
