// Package worktool pushes messages back into WeCom groups through the
// WorkTool robot API.
package worktool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

type Config struct {
	URL     string        `split_words:"true" default:"https://api.worktool.ymdyes.cn/wework/sendRawMessage"`
	RobotID string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	endpoint   string
	robotID    string
	httpClient *http.Client
}

var _ contractx.Deliverer = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("worktool url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, err
	}
	robotID := strings.TrimSpace(cfg.RobotID)
	if robotID == "" {
		return nil, errors.New("worktool robot id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		robotID:  robotID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// rawMessage is the WorkTool push envelope. Type 203 is a text message to
// the groups named in TitleList.
type rawMessage struct {
	SocketType int        `json:"socketType"`
	List       []pushItem `json:"list"`
}

type pushItem struct {
	Type            int      `json:"type"`
	TitleList       []string `json:"titleList"`
	ReceivedContent string   `json:"receivedContent"`
	AtList          []string `json:"atList"`
}

type pushResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendGroupText pushes text into the named group. Empty text is a no-op so
// callers can pass the composer output unconditionally.
func (c *Client) SendGroupText(ctx context.Context, group string, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if strings.TrimSpace(group) == "" {
		return errors.New("worktool: group is required")
	}

	body, err := json.Marshal(rawMessage{
		SocketType: 2,
		List: []pushItem{{
			Type:            203,
			TitleList:       []string{group},
			ReceivedContent: text,
			AtList:          []string{},
		}},
	})
	if err != nil {
		return fmt.Errorf("worktool: encode push: %w", err)
	}

	endpoint := c.endpoint + "?robotId=" + url.QueryEscape(c.robotID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("worktool: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worktool: push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worktool: push status %d", resp.StatusCode)
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("worktool: decode response: %w", err)
	}
	if parsed.Code != 200 {
		return fmt.Errorf("worktool: push rejected: code=%d message=%s", parsed.Code, parsed.Message)
	}
	return nil
}
