// Package api talks to the platform REST surface: the signed gateway URL
// endpoint and the bot's own profile.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/gateway"
)

const defaultHTTPTimeout = 15 * time.Second

// Client is the REST client. It implements gateway.URLProvider.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the given API base URL, e.g.
// "https://www.kookapp.cn/api/v3". The token is sent as a bot authorization.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// envelope is the v3 response wrapper. Code zero means success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GatewayURL fetches a signed websocket URL. Resume parameters are only sent
// when a previous session is being continued.
func (c *Client) GatewayURL(ctx context.Context, p gateway.URLParams) (string, error) {
	q := url.Values{}
	if p.Compress {
		q.Set("compress", "1")
	} else {
		q.Set("compress", "0")
	}
	if p.Resume {
		q.Set("resume", "1")
		q.Set("sn", strconv.FormatUint(p.SN, 10))
		q.Set("session_id", p.SessionID)
	}

	var data struct {
		URL string `json:"url"`
	}
	if err := c.get(ctx, "/gateway/index", q, &data); err != nil {
		return "", err
	}
	if data.URL == "" {
		return "", errors.New("api: empty gateway url")
	}
	return data.URL, nil
}

// Profile is the bot's own identity.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Me fetches the profile behind the configured token.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := c.get(ctx, "/user/me", nil, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) != 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request api").With("path", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("api status %d, path: %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrap(err, "unmarshal envelope").With("path", path)
	}
	if env.Code != 0 {
		return errors.Errorf("api error, code: %d, message: %s", env.Code, env.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "unmarshal data").With("path", path)
	}
	return nil
}
