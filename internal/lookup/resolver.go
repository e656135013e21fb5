// Package lookup resolves scanned GTIN/EAN codes into product names
// through a remote lookup service.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies the outcome of a lookup
type Kind int

const (
	// KindFound means the service returned a product for the code
	KindFound Kind = iota
	// KindNotFound means the service answered with a non-success status
	KindNotFound
	// KindNetworkError means the request could not complete at all
	KindNetworkError
)

// noDescriptionName is used when a found product carries no description
const noDescriptionName = "No description available"

// Result is the classified outcome of resolving one code
type Result struct {
	Kind Kind
	Name string // set only when Kind is KindFound
}

// Resolver defines the interface for product resolution
type Resolver interface {
	// Resolve issues one lookup for code. It never retries; the caller
	// decides whether to fall back to manual entry.
	Resolve(ctx context.Context, code string) Result
}

// Client implements Resolver against a Cosmos-style GTIN API
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a new lookup Client. baseURL is the GTIN endpoint
// prefix, token is sent as the X-Cosmos-Token credential header.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("lookup base url is required")
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// productResponse is the subset of the lookup response we consume
type productResponse struct {
	Description string `json:"description"`
}

// Resolve issues one lookup for code
func (c *Client) Resolve(ctx context.Context, code string) Result {
	url := fmt.Sprintf("%s/%s", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return Result{Kind: KindNetworkError}
	}
	req.Header.Set("X-Cosmos-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Kind: KindNetworkError}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Kind: KindNotFound}
	}

	var product productResponse
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		// A success status with a mangled body still identifies a product
		return Result{Kind: KindFound, Name: noDescriptionName}
	}

	name := strings.TrimSpace(product.Description)
	if name == "" {
		name = noDescriptionName
	}

	return Result{Kind: KindFound, Name: name}
}
