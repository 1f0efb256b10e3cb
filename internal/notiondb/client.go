// Package notiondb is a minimal Notion API v1 client covering the subset
// the Report Synchronizer needs: database queries, page CRUD, and block
// append/read — enough to treat a Notion database as the external document
// database the spec's Report Synchronizer syncs into (C7).
package notiondb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mechanismctl/diagnose/internal/retry"
)

const (
	defaultBaseURL     = "https://api.notion.com/v1"
	notionVersion      = "2022-06-28"
	maxTextChunk       = 2000
	maxBlocksPerAppend = 100
	maxRetries         = 3
)

// Client talks to the Notion API over HTTPS using api_key bearer auth.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a Client for apiKey, the Notion internal integration
// token. baseURL is overridable for tests; an empty value uses the real
// Notion API.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Page is the subset of a Notion page object callers need.
type Page struct {
	ID             string         `json:"id"`
	Archived       bool           `json:"archived"`
	CreatedTime    string         `json:"created_time"`
	LastEditedTime string         `json:"last_edited_time"`
	Properties     map[string]any `json:"properties"`
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type blocksResponse struct {
	Results    []map[string]any `json:"results"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor"`
}

// QueryDatabase returns every page matching filter in db (nil filter means
// no filtering), following pagination until has_more is false.
func (c *Client) QueryDatabase(ctx context.Context, db string, filter map[string]any) ([]Page, error) {
	var out []Page
	var cursor string
	for {
		payload := map[string]any{"page_size": 100}
		if filter != nil {
			payload["filter"] = filter
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		var resp queryResponse
		if err := c.request(ctx, http.MethodPost, "/databases/"+db+"/query", payload, &resp); err != nil {
			return nil, fmt.Errorf("query database %s: %w", db, err)
		}
		out = append(out, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return out, nil
}

// CreatePage creates a page under databaseID with properties and an
// initial set of body blocks, appending anything beyond Notion's 100-block
// creation limit in follow-up requests.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any, children []map[string]any) (Page, error) {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}
	var overflow []map[string]any
	if len(children) > 0 {
		initial := children
		if len(initial) > maxBlocksPerAppend {
			initial = children[:maxBlocksPerAppend]
			overflow = children[maxBlocksPerAppend:]
		}
		payload["children"] = initial
	}

	var page Page
	if err := c.request(ctx, http.MethodPost, "/pages", payload, &page); err != nil {
		return Page{}, fmt.Errorf("create page: %w", err)
	}
	if len(overflow) > 0 {
		if err := c.AppendBlocks(ctx, page.ID, overflow); err != nil {
			return page, fmt.Errorf("append overflow blocks: %w", err)
		}
	}
	return page, nil
}

// UpdatePage partially updates page properties.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]any) (Page, error) {
	var page Page
	if err := c.request(ctx, http.MethodPatch, "/pages/"+pageID, map[string]any{"properties": properties}, &page); err != nil {
		return Page{}, fmt.Errorf("update page %s: %w", pageID, err)
	}
	return page, nil
}

// ArchivePage soft-deletes a page.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	if err := c.request(ctx, http.MethodPatch, "/pages/"+pageID, map[string]any{"archived": true}, nil); err != nil {
		return fmt.Errorf("archive page %s: %w", pageID, err)
	}
	return nil
}

// GetBlocks returns every child block of blockID (a page or block ID),
// following pagination.
func (c *Client) GetBlocks(ctx context.Context, blockID string) ([]map[string]any, error) {
	var out []map[string]any
	var cursor string
	for {
		path := fmt.Sprintf("/blocks/%s/children?page_size=100", blockID)
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var resp blocksResponse
		if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("get blocks %s: %w", blockID, err)
		}
		out = append(out, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return out, nil
}

// AppendBlocks appends blocks as children of blockID, batching into groups
// of at most 100 per request (Notion's append-children limit).
func (c *Client) AppendBlocks(ctx context.Context, blockID string, blocks []map[string]any) error {
	for i := 0; i < len(blocks); i += maxBlocksPerAppend {
		end := i + maxBlocksPerAppend
		if end > len(blocks) {
			end = len(blocks)
		}
		batch := blocks[i:end]
		if err := c.request(ctx, http.MethodPatch, "/blocks/"+blockID+"/children", map[string]any{"children": batch}, nil); err != nil {
			return fmt.Errorf("append blocks to %s: %w", blockID, err)
		}
	}
	return nil
}

// ClearPage removes every direct child block of pageID, for callers that
// want to fully replace a page body rather than append to it.
func (c *Client) ClearPage(ctx context.Context, pageID string) error {
	blocks, err := c.GetBlocks(ctx, pageID)
	if err != nil {
		return fmt.Errorf("list blocks to clear: %w", err)
	}
	for _, block := range blocks {
		id, _ := block["id"].(string)
		if id == "" {
			continue
		}
		if err := c.request(ctx, http.MethodDelete, "/blocks/"+id, nil, nil); err != nil {
			return fmt.Errorf("delete block %s: %w", id, err)
		}
	}
	return nil
}

// request performs one Notion API call, retrying on HTTP 429 (honoring
// Retry-After when the response sets it) and on transport-level failures,
// with exponential backoff. Non-retryable statuses fail immediately.
func (c *Client) request(ctx context.Context, method, path string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	config := retry.Exponential(maxRetries, time.Second, 8*time.Second)

	_, result := retry.DoWithValue(ctx, config, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return struct{}{}, retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Notion-Version", notionVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if secs, err := strconv.Atoi(retryAfter); err == nil {
					select {
					case <-time.After(time.Duration(secs) * time.Second):
					case <-ctx.Done():
						return struct{}{}, ctx.Err()
					}
				}
			}
			return struct{}{}, fmt.Errorf("notion API rate-limited on %s %s", method, path)
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return struct{}{}, fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := fmt.Errorf("notion API error %d on %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(respBody)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return struct{}{}, retry.Permanent(msg)
			}
			return struct{}{}, msg
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return struct{}{}, retry.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return struct{}{}, nil
	})
	return result.Err
}
