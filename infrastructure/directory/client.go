package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"spscan/domain/scan"
	"spscan/domain/sharepoint"
	"spscan/logging"
)

// DefaultGraphBaseURL is the production directory API endpoint.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// DirectoryClient resolves directory group memberships. Security
// groups support a transitive query that flattens arbitrary nesting
// into one call; unified groups only support direct membership (the
// platform does not nest them).
type DirectoryClient interface {
	GetTransitiveMembers(ctx context.Context, groupID string) ([]sharepoint.Principal, error)
	GetDirectMembers(ctx context.Context, groupID string) ([]sharepoint.Principal, error)
}

// TokenProvider supplies bearer tokens for directory API calls.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token. Useful for tests and for
// short-lived CLI invocations where the token is supplied externally.
type StaticTokenProvider string

func (p StaticTokenProvider) GetToken(ctx context.Context) (string, error) {
	return string(p), nil
}

// graphClient is a DirectoryClient over the Microsoft Graph REST API.
type graphClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	logger     *logging.Logger
}

// NewGraphClient creates a DirectoryClient over the given HTTP client
// and base URL. Pass DefaultGraphBaseURL outside of tests.
func NewGraphClient(httpClient *http.Client, baseURL string, tokens TokenProvider) DirectoryClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &graphClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     tokens,
		logger:     logging.Default().WithComponent("directory_client"),
	}
}

// Wire models for directory member listings.
type memberPage struct {
	NextLink string         `json:"@odata.nextLink"`
	Value    []memberRecord `json:"value"`
}

type memberRecord struct {
	ODataType         string `json:"@odata.type"`
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
}

const userODataType = "#microsoft.graph.user"

// GetTransitiveMembers returns all user members of a security group
// with nested groups flattened by the directory service.
func (c *graphClient) GetTransitiveMembers(ctx context.Context, groupID string) ([]sharepoint.Principal, error) {
	url := fmt.Sprintf("%s/groups/%s/transitiveMembers?$select=id,displayName,userPrincipalName,mail", c.baseURL, groupID)
	return c.collectMembers(ctx, groupID, url)
}

// GetDirectMembers returns the direct user members of a unified group.
func (c *graphClient) GetDirectMembers(ctx context.Context, groupID string) ([]sharepoint.Principal, error) {
	url := fmt.Sprintf("%s/groups/%s/members?$select=id,displayName,userPrincipalName,mail", c.baseURL, groupID)
	return c.collectMembers(ctx, groupID, url)
}

// collectMembers follows the paged member listing to completion,
// keeping user records and dropping device/contact entries. Nested
// group records never appear in transitive results (the service
// flattens them) and cannot appear in unified group results.
func (c *graphClient) collectMembers(ctx context.Context, groupID, url string) ([]sharepoint.Principal, error) {
	var members []sharepoint.Principal

	for url != "" {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", scan.ErrCancelled, err)
		}

		page, err := c.getPage(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("list members of group %s: %w", groupID, err)
		}

		for _, m := range page.Value {
			if m.ODataType != "" && m.ODataType != userODataType {
				continue
			}
			members = append(members, sharepoint.Principal{
				LoginName: m.UserPrincipalName,
				Title:     m.DisplayName,
				Email:     m.Mail,
			})
		}

		url = page.NextLink
	}

	return members, nil
}

// getPage performs one authenticated GET and decodes the member page.
func (c *graphClient) getPage(ctx context.Context, url string) (*memberPage, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire directory token: %v", scan.ErrAuthentication, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", scan.ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: %v", scan.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &scan.ThrottleError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: directory API returned %d", scan.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: directory API returned %d", scan.ErrTransient, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory API returned %d: %s", resp.StatusCode, string(body))
	}

	var page memberPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode member page: %w", err)
	}
	return &page, nil
}

// parseRetryAfter parses a Retry-After header given in seconds.
// Returns 0 when absent or unparseable, letting backoff take over.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
