// fetch_url tool.
//
// Information Hiding:
// - HTTP client configuration and redirect policy hidden
// - Body size cap and content type filtering hidden
// - Transient vs terminal failure classification hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const fetchUserAgent = "notewright-fetch/1.0"

// FetchURLTool fetches a page from an allowlisted host.
type FetchURLTool struct {
	policy *Policy
	client *http.Client
}

// NewFetchURLTool creates a fetch tool. The client is copied and its
// redirect handling replaced so every hop is checked against policy.
func NewFetchURLTool(policy *Policy, client *http.Client) *FetchURLTool {
	var c http.Client
	if client != nil {
		c = *client
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if !policy.followRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) > policy.maxRedirects {
			return upstreamFailure(FetchURLName, fmt.Errorf("stopped after %d redirects", policy.maxRedirects))
		}
		if _, err := policy.CheckURL(req.URL.String()); err != nil {
			return err
		}
		return nil
	}
	return &FetchURLTool{policy: policy, client: &c}
}

// Metadata returns the tool metadata.
func (t *FetchURLTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        FetchURLName,
		Description: "Fetch the text content of an http or https URL on an allowlisted domain.",
		Parameters: []ToolParameter{
			{Name: "url", ParamType: "string", Description: "The absolute URL to fetch", Required: true},
		},
		RetryTransient: true,
	}
}

type fetchURLOutput struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Bytes       int    `json:"bytes"`
}

// Execute makes the HTTP request.
func (t *FetchURLTool) Execute(ctx context.Context, args Args) (json.RawMessage, error) {
	a, ok := args.(FetchURLArgs)
	if !ok {
		return nil, fmt.Errorf("fetch_url: unexpected args %T", args)
	}

	u, err := t.policy.CheckURL(a.URL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, invalidArgs(FetchURLName, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html, text/plain, text/markdown, application/json;q=0.9, */*;q=0.1")

	resp, err := t.client.Do(req)
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			return nil, de
		}
		if ctx.Err() != nil {
			return nil, transient(fmt.Errorf("request timed out: %w", ctx.Err()))
		}
		return nil, transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, transient(fmt.Errorf("HTTP error: %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, upstreamFailure(FetchURLName, fmt.Errorf("HTTP error: %s", resp.Status))
	}

	mediaType, ok := t.policy.ContentTypeAllowed(resp.Header.Get("Content-Type"))
	if !ok {
		shown := mediaType
		if shown == "" {
			shown = strings.TrimSpace(resp.Header.Get("Content-Type"))
		}
		return nil, policyBlocked(FetchURLName, fmt.Sprintf("content type `%s` is not allowed", shown))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.policy.maxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, transient(fmt.Errorf("reading body timed out: %w", ctx.Err()))
		}
		return nil, transient(fmt.Errorf("failed to read response body: %w", err))
	}
	if int64(len(body)) > t.policy.maxBytes {
		return nil, policyBlocked(FetchURLName, fmt.Sprintf("response exceeds %d bytes", t.policy.maxBytes))
	}

	content := string(body)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "�")
	}

	return json.Marshal(fetchURLOutput{
		URL:         a.URL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: mediaType,
		Content:     content,
		Bytes:       len(body),
	})
}
