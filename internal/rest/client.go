// ABOUTME: REST client methods for conversations, messages, and session control.
// ABOUTME: Mirrors the admin API surface the socket protocol also exposes.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opsdesk/livechat/internal/chat"
)

// ErrNotFound is returned when the server reports a missing conversation.
var ErrNotFound = errors.New("conversation not found")

// Client issues requests against the livechat admin API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the given base URL, for example
// "https://ops.example.com/api/admin". The token is sent as a Bearer
// credential on every request when non-empty.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetHTTPClient overrides the underlying HTTP client. Used by tests and
// by callers that need custom transport settings.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// conversationsResponse is the GET /conversations body.
type conversationsResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
	Total         int                 `json:"total"`
}

// Conversations fetches the conversation list, newest activity first.
// A non-empty status filters server-side ("waiting", "active", "closed").
func (c *Client) Conversations(ctx context.Context, status string) ([]chat.Conversation, error) {
	endpoint := c.baseURL + "/conversations"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}

	var body conversationsResponse
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}
	return body.Conversations, nil
}

// ConversationDetail fetches one conversation with its session and the
// most recent page of messages in chronological order.
func (c *Client) ConversationDetail(ctx context.Context, id string) (*chat.ConversationDetail, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s", c.baseURL, url.PathEscape(id))

	var detail chat.ConversationDetail
	if err := c.getJSON(ctx, endpoint, &detail); err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", id, err)
	}
	return &detail, nil
}

// MessagesPage is one page of history plus the server's cursor hint.
type MessagesPage struct {
	Messages []chat.Message `json:"messages"`
	HasMore  bool           `json:"has_more"`
}

// Messages fetches up to limit messages for a conversation. A non-zero
// beforeID returns only messages older than that ID, which is how the
// history pager walks backward through the archive.
func (c *Client) Messages(ctx context.Context, id string, limit int, beforeID int64) (MessagesPage, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s/messages?limit=%d",
		c.baseURL, url.PathEscape(id), limit)
	if beforeID > 0 {
		endpoint += "&before_id=" + strconv.FormatInt(beforeID, 10)
	}

	var page MessagesPage
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return MessagesPage{}, fmt.Errorf("fetching messages for %s: %w", id, err)
	}
	return page, nil
}

// PostMessage sends an operator text message over REST. This is the
// fallback path when the socket is down; the server treats it the same
// as a send_message frame.
func (c *Client) PostMessage(ctx context.Context, id, text string) error {
	endpoint := fmt.Sprintf("%s/conversations/%s/messages", c.baseURL, url.PathEscape(id))
	body := map[string]string{"text": text}
	if err := c.postJSON(ctx, endpoint, body, nil); err != nil {
		return fmt.Errorf("posting message to %s: %w", id, err)
	}
	return nil
}

// Claim takes the session into human mode under the calling operator.
func (c *Client) Claim(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/conversations/%s/claim", c.baseURL, url.PathEscape(id))
	if err := c.postJSON(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("claiming conversation %s: %w", id, err)
	}
	return nil
}

// Close ends the session and returns the conversation to the bot.
func (c *Client) Close(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/conversations/%s/close", c.baseURL, url.PathEscape(id))
	if err := c.postJSON(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("closing conversation %s: %w", id, err)
	}
	return nil
}

// SetMode switches a session between "bot" and "human" handling.
func (c *Client) SetMode(ctx context.Context, id, mode string) error {
	endpoint := fmt.Sprintf("%s/conversations/%s/mode", c.baseURL, url.PathEscape(id))
	body := map[string]string{"mode": mode}
	if err := c.postJSON(ctx, endpoint, body, nil); err != nil {
		return fmt.Errorf("setting mode for %s: %w", id, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorBody is the server's error envelope. Either field may carry the
// human-readable detail depending on the endpoint.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		msg := body.Error
		if msg == "" {
			msg = body.Detail
		}
		if msg != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, msg)
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
