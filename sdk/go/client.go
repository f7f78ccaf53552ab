package fundtrailsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Fundtrail HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// FundingRequest represents the API request model.
type FundingRequest struct {
	ID          string `json:"id"`
	SubmittedBy string `json:"submitted_by"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
	Amount      string `json:"amount"`
	Site        string `json:"site"`
	Partners    string `json:"partners,omitempty"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	SubmittedAt string `json:"submitted_at"`
	Status      string `json:"status"`
}

// Vote represents a committee vote.
type Vote struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	AdminID   string `json:"admin_id"`
	Choice    string `json:"choice"`
	Remarks   string `json:"remarks,omitempty"`
	CastAt    string `json:"cast_at"`
}

// Tally is an advisory vote count.
type Tally struct {
	Approve  int      `json:"approve"`
	Reject   int      `json:"reject"`
	VoterIDs []string `json:"voter_ids"`
}

// Project represents an approved, funded project.
type Project struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	Status     string `json:"status"`
	GivenFund  string `json:"given_fund"`
	ApprovedAt string `json:"approved_at"`
}

// ProjectUpdate is an expense or progress post.
type ProjectUpdate struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	PostedBy    string `json:"posted_by"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	PostedAt    string `json:"posted_at"`
}

// LedgerEntry is an audit record.
type LedgerEntry struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	ActorID string `json:"actor_id"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Details string `json:"details,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]any{
		"username": username,
		"password": password,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// SubmitRequest files a new funding request.
func (c *Client) SubmitRequest(ctx context.Context, title, reason, amount, site, startDate, endDate string) (FundingRequest, error) {
	body := map[string]any{
		"title":      title,
		"reason":     reason,
		"amount":     amount,
		"site":       site,
		"start_date": startDate,
		"end_date":   endDate,
	}
	var resp FundingRequest
	err := c.do(ctx, http.MethodPost, "v0/requests", body, &resp)
	return resp, err
}

// CastVote casts an advisory vote on a pending request.
func (c *Client) CastVote(ctx context.Context, requestID, choice, remarks string) (Vote, error) {
	body := map[string]any{
		"choice":  choice,
		"remarks": remarks,
	}
	var resp Vote
	endpoint := fmt.Sprintf("v0/requests/%s/votes", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Tally returns the vote count for a request.
func (c *Client) Tally(ctx context.Context, requestID string) (Tally, error) {
	var resp Tally
	endpoint := fmt.Sprintf("v0/requests/%s/tally", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Decide settles a request directly.
func (c *Client) Decide(ctx context.Context, requestID string, approve bool, remarks string) (FundingRequest, error) {
	body := map[string]any{
		"approve": approve,
		"remarks": remarks,
	}
	var resp FundingRequest
	endpoint := fmt.Sprintf("v0/requests/%s/decision", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Finalize settles a request after committee voting.
func (c *Client) Finalize(ctx context.Context, requestID string, approve bool, remarks string) (FundingRequest, error) {
	body := map[string]any{
		"approve": approve,
		"remarks": remarks,
	}
	var resp FundingRequest
	endpoint := fmt.Sprintf("v0/requests/%s/finalize", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// PostUpdate posts an expense or progress update to a project.
func (c *Client) PostUpdate(ctx context.Context, projectID, kind, title, amount string) (ProjectUpdate, error) {
	body := map[string]any{
		"kind":   kind,
		"title":  title,
		"amount": amount,
	}
	var resp ProjectUpdate
	endpoint := fmt.Sprintf("v0/projects/%s/updates", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Ledger returns recent audit entries, optionally filtered by action kind.
func (c *Client) Ledger(ctx context.Context, action string, limit int) ([]LedgerEntry, error) {
	endpoint := "v0/ledger"
	var params []string
	if action != "" {
		params = append(params, "action="+url.QueryEscape(action))
	}
	if limit > 0 {
		params = append(params, fmt.Sprintf("limit=%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + strings.Join(params, "&")
	}
	var resp []LedgerEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
