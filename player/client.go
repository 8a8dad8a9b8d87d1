package player

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/gorilla/websocket"
)

const (
	teamTokenHeader = "X-Team-Token"
	apiPrefix       = "/api/v1"
)

// APIClient talks to the HTTP API and the websocket change stream.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

func NewAPIClient(baseURL string, logger *slog.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func (c *APIClient) Join(ctx context.Context, code, teamName string) (*models.JoinResult, error) {
	body, err := json.Marshal(map[string]string{"code": code, "team_name": teamName})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var res models.JoinResult
	if err := c.do(ctx, http.MethodPost, "/join", "", "application/json", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) View(ctx context.Context, raceID, token string) (*models.GameView, error) {
	var view models.GameView
	if err := c.do(ctx, http.MethodGet, playPath(raceID, ""), token, "", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *APIClient) Verify(ctx context.Context, raceID, token string, fix geofence.Fix) (*models.VerifyResult, error) {
	body, err := json.Marshal(fix)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var res models.VerifyResult
	if err := c.do(ctx, http.MethodPost, playPath(raceID, "/verify"), token, "application/json", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) RequestHint(ctx context.Context, raceID, token string) (*models.HintResult, error) {
	var res models.HintResult
	if err := c.do(ctx, http.MethodPost, playPath(raceID, "/hint"), token, "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) Submit(ctx context.Context, raceID, token string, photo io.Reader) (*models.Progress, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("photo", "proof.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, photo); err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var res struct {
		Submission models.Progress `json:"submission"`
	}
	if err := c.do(ctx, http.MethodPost, playPath(raceID, "/proof"), token, mw.FormDataContentType(), &buf, &res); err != nil {
		return nil, err
	}
	return &res.Submission, nil
}

func (c *APIClient) Teams(ctx context.Context, raceID, token string) ([]models.RosterEntry, error) {
	var res struct {
		Teams []models.RosterEntry `json:"teams"`
	}
	if err := c.do(ctx, http.MethodGet, playPath(raceID, "/teams"), token, "", nil, &res); err != nil {
		return nil, err
	}
	return res.Teams, nil
}

func playPath(raceID, suffix string) string {
	return "/play/" + url.PathEscape(raceID) + suffix
}

func (c *APIClient) do(ctx context.Context, method, path, token, contentType string, body io.Reader, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set(teamTokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var s string
		if json.Unmarshal(env.Error, &s) == nil {
			msg = s
		} else {
			msg = string(env.Error)
		}
	}

	apiErr := &APIError{Status: status, Message: msg}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}

func (c *APIClient) Subscribe(ctx context.Context, raceID string, filter realtime.Filter) (Subscription, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/races/" + url.PathEscape(raceID)

	q := url.Values{}
	if filter.Table != "" {
		q.Set("table", filter.Table)
	}
	if filter.Event != "" {
		q.Set("event", string(filter.Event))
	}
	if filter.Column != "" {
		q.Set("filter", filter.Column+"=eq."+filter.Value)
	}
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial change stream: %w", err)
	}

	sub := &wsSubscription{
		conn:    conn,
		changes: make(chan realtime.Change, 16),
		done:    make(chan struct{}),
		logger:  c.logger,
	}
	go sub.readLoop()
	return sub, nil
}

type wsSubscription struct {
	conn      *websocket.Conn
	changes   chan realtime.Change
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func (s *wsSubscription) readLoop() {
	defer close(s.changes)
	for {
		var msg realtime.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Warn("change stream ended", slog.Any("error", err))
				}
			}
			return
		}
		if msg.Type != realtime.MessageTypeChange {
			continue
		}
		select {
		case s.changes <- msg.Payload:
		case <-s.done:
			return
		}
	}
}

func (s *wsSubscription) Changes() <-chan realtime.Change {
	return s.changes
}

func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
