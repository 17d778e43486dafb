// Package designer implements the Designer Client: typed read access
// to one bot's flow objects, and the narrow write surface
// (user upsert, database record mutation) the node handlers need,
// over the Designer Service's REST API.
package designer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/pkg/errors"
)

// defaultTimeout bounds every Designer Service call; the control plane
// is expected to be co-located infrastructure, not a slow dependency.
const defaultTimeout = 10 * time.Second

// Client is a typed, read-mostly HTTP client scoped to one bot
// (service_id), matching the Designer Service's
// /api/telegram-bots-hub/telegram-bots/{service_id}/ root.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New builds a Client rooted at baseURL (e.g. "https://designer.internal")
// for the given bot service id, authenticating with a bearer token.
func New(baseURL string, serviceID int64, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    fmt.Sprintf("%s/api/telegram-bots-hub/telegram-bots/%d", baseURL, serviceID),
		token:      token,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "designer: build request")
	}
	return c.do(req, out)
}

func (c *Client) send(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "designer: marshal body")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "designer: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "designer: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Errorf("designer: %s %s: %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "designer: decode response")
}

// GetBot fetches the bot record owning this client's service id.
func (c *Client) GetBot(ctx context.Context) (flow.Bot, error) {
	var bot flow.Bot
	err := c.get(ctx, "/", nil, &bot)
	return bot, err
}

// GetTriggers returns every trigger; triggers with commands that
// carry a description are the ones exposed as the bot's command menu.
func (c *Client) GetTriggers(ctx context.Context) ([]flow.Trigger, error) {
	var out []flow.Trigger
	err := c.get(ctx, "/triggers", nil, &out)
	return out, err
}

// GetTrigger fetches one trigger by id.
func (c *Client) GetTrigger(ctx context.Context, id int64) (flow.Trigger, error) {
	var out flow.Trigger
	err := c.get(ctx, "/triggers/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// FindTriggerByCommand looks up command triggers by name and optional
// payload. has_command_payload always reports whether a payload was
// supplied; command_payload itself is only sent when non-empty.
func (c *Client) FindTriggerByCommand(ctx context.Context, command string, payload string) ([]flow.Trigger, error) {
	q := url.Values{
		"command":             {command},
		"has_command_payload": {strconv.FormatBool(payload != "")},
	}
	if payload != "" {
		q.Set("command_payload", payload)
	}
	var out []flow.Trigger
	err := c.get(ctx, "/triggers", q, &out)
	return out, err
}

// ListMessageTriggers returns every trigger carrying a message match —
// a literal template or a no-text catch-all. The caller is responsible
// for expanding each trigger's own template through its own Variables
// bag and comparing against the input text; the Designer Service does
// not do variable expansion on our behalf.
func (c *Client) ListMessageTriggers(ctx context.Context) ([]flow.Trigger, error) {
	var out []flow.Trigger
	err := c.get(ctx, "/triggers", url.Values{"has_message": {"true"}}, &out)
	return out, err
}

// GetMessage fetches one message node by id.
func (c *Client) GetMessage(ctx context.Context, id int64) (flow.Message, error) {
	var out flow.Message
	err := c.get(ctx, "/messages/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// FindButtonByID looks up one keyboard button by numeric callback id.
func (c *Client) FindButtonByID(ctx context.Context, id int64) (flow.KeyboardButton, bool, error) {
	var out []flow.KeyboardButton
	err := c.get(ctx, "/keyboard-buttons", url.Values{"id": {strconv.FormatInt(id, 10)}}, &out)
	if err != nil || len(out) == 0 {
		return flow.KeyboardButton{}, false, err
	}
	return out[0], true, nil
}

// FindButtonByText looks up one keyboard button by its literal label.
func (c *Client) FindButtonByText(ctx context.Context, text string) (flow.KeyboardButton, bool, error) {
	var out []flow.KeyboardButton
	err := c.get(ctx, "/keyboard-buttons", url.Values{"text": {text}}, &out)
	if err != nil || len(out) == 0 {
		return flow.KeyboardButton{}, false, err
	}
	return out[0], true, nil
}

// GetCondition fetches one condition node by id.
func (c *Client) GetCondition(ctx context.Context, id int64) (flow.Condition, error) {
	var out flow.Condition
	err := c.get(ctx, "/conditions/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// GetAPIRequest fetches one api-request node by id.
func (c *Client) GetAPIRequest(ctx context.Context, id int64) (flow.APIRequest, error) {
	var out flow.APIRequest
	err := c.get(ctx, "/api-requests/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// GetDatabaseOperation fetches one database-operation node by id.
func (c *Client) GetDatabaseOperation(ctx context.Context, id int64) (flow.DatabaseOperation, error) {
	var out flow.DatabaseOperation
	err := c.get(ctx, "/database-operations/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// GetBackgroundTasks returns every scheduled background task.
func (c *Client) GetBackgroundTasks(ctx context.Context) ([]flow.BackgroundTask, error) {
	var out []flow.BackgroundTask
	err := c.get(ctx, "/background-tasks", nil, &out)
	return out, err
}

// GetVariable resolves one designer-authored named Variable.
func (c *Client) GetVariable(ctx context.Context, name string) (flow.Variable, bool, error) {
	var out []flow.Variable
	err := c.get(ctx, "/variables", url.Values{"name": {name}}, &out)
	if err != nil || len(out) == 0 {
		return flow.Variable{}, false, err
	}
	return out[0], true, nil
}

// GetDatabaseRecordByPath resolves the first record whose data
// contains path.
func (c *Client) GetDatabaseRecordByPath(ctx context.Context, path string) (flow.DatabaseRecord, bool, error) {
	var out []flow.DatabaseRecord
	err := c.get(ctx, "/database-records", url.Values{"has_data_path": {path}}, &out)
	if err != nil || len(out) == 0 {
		return flow.DatabaseRecord{}, false, err
	}
	return out[0], true, nil
}

// GetUsers returns every user known to this bot.
func (c *Client) GetUsers(ctx context.Context) ([]flow.User, error) {
	var out []flow.User
	err := c.get(ctx, "/users", nil, &out)
	return out, err
}

// GetOrCreateUser fetches the user with the given telegram id,
// creating one if the Designer Service does not know it yet.
func (c *Client) GetOrCreateUser(ctx context.Context, telegramID int64, fullName string) (flow.User, error) {
	var existing []flow.User
	if err := c.get(ctx, "/users", url.Values{"telegram_id": {strconv.FormatInt(telegramID, 10)}}, &existing); err != nil {
		return flow.User{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	var created flow.User
	body := map[string]any{"telegram_id": telegramID, "full_name": fullName}
	err := c.send(ctx, http.MethodPost, "/users", body, &created)
	return created, err
}

// CreateDatabaseRecord inserts one new record.
func (c *Client) CreateDatabaseRecord(ctx context.Context, data map[string]any) error {
	return c.send(ctx, http.MethodPost, "/database-records", map[string]any{"data": data}, nil)
}

// UpdateDatabaseRecords replaces (overwrite) or merges records whose
// lookupField equals lookupValue, optionally creating one when no
// record matches and createIfNotFound is set. PUT selects overwrite
// semantics, PATCH selects partial merge, matching the Designer
// Service's update-many endpoint.
func (c *Client) UpdateDatabaseRecords(ctx context.Context, lookupField, lookupValue string, newData map[string]any, overwrite, createIfNotFound bool) error {
	method := http.MethodPatch
	if overwrite {
		method = http.MethodPut
	}
	body := map[string]any{
		"data":              newData,
		"search":            map[string]any{lookupField: lookupValue},
		"create_if_not_found": createIfNotFound,
	}
	return c.send(ctx, method, "/database-records/update-many", body, nil)
}

// Fetch implements walker.Fetcher: it resolves one node by kind and id.
func (c *Client) Fetch(ctx context.Context, kind flow.NodeKind, id int64) (any, error) {
	switch kind {
	case flow.KindTrigger:
		return c.GetTrigger(ctx, id)
	case flow.KindMessage:
		return c.GetMessage(ctx, id)
	case flow.KindCondition:
		return c.GetCondition(ctx, id)
	case flow.KindAPIRequest:
		return c.GetAPIRequest(ctx, id)
	case flow.KindDatabaseOperation:
		return c.GetDatabaseOperation(ctx, id)
	default:
		return nil, errors.Errorf("designer: unknown node kind %q", kind)
	}
}
