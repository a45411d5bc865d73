package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apiv1 "github.com/beam-cloud/toolshelf/pkg/api/v1"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the gateway's JSON API
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// NewClient creates a client for the gateway at addr (e.g. http://localhost:1994)
func NewClient(addr string) *Client {
	return &Client{
		baseURL: strings.TrimRight(addr, "/") + apiv1.HttpServerBaseRoute,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		stream:  &http.Client{},
	}
}

// envelope mirrors apiv1.Response with a typed payload
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func (c *Client) Categories(ctx context.Context) ([]types.Category, error) {
	var out []types.Category
	err := c.do(ctx, http.MethodGet, "/categories", nil, &out)
	return out, err
}

func (c *Client) ListTools(ctx context.Context, search string, category types.Category) (apiv1.ToolListResponse, error) {
	var out apiv1.ToolListResponse
	err := c.do(ctx, http.MethodGet, "/tools?"+filterQuery(search, category), nil, &out)
	return out, err
}

// GetTool looks up one record by id in the unfiltered list.
func (c *Client) GetTool(ctx context.Context, id string) (apiv1.ToolResponse, error) {
	list, err := c.ListTools(ctx, "", types.CategoryAll)
	if err != nil {
		return apiv1.ToolResponse{}, err
	}
	for _, t := range list.Tools {
		if t.Id == id {
			return t, nil
		}
	}
	return apiv1.ToolResponse{}, &APIError{Status: http.StatusNotFound, Message: "tool not found"}
}

func (c *Client) CreateTool(ctx context.Context, fields types.ToolFields) (apiv1.ToolResponse, error) {
	var out apiv1.ToolResponse
	err := c.do(ctx, http.MethodPost, "/tools", toRequest(fields), &out)
	return out, err
}

func (c *Client) UpdateTool(ctx context.Context, id string, fields types.ToolFields) (apiv1.ToolResponse, error) {
	var out apiv1.ToolResponse
	err := c.do(ctx, http.MethodPut, "/tools/"+url.PathEscape(id), toRequest(fields), &out)
	return out, err
}

func (c *Client) DeleteTool(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tools/"+url.PathEscape(id), nil, nil)
}

// Watch calls fn with every snapshot the gateway streams until ctx is done
// or the stream ends.
func (c *Client) Watch(ctx context.Context, search string, category types.Category, fn func(apiv1.ToolListResponse)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools/stream?"+filterQuery(search, category), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var list apiv1.ToolListResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &list); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		fn(list)
	}

	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	return json.Unmarshal(env.Data, out)
}

func decodeError(resp *http.Response) error {
	env := envelope[json.RawMessage]{}
	msg := ""
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
		msg = env.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func filterQuery(search string, category types.Category) string {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if category != "" && category != types.CategoryAll {
		q.Set("category", string(category))
	}
	return q.Encode()
}

func toRequest(f types.ToolFields) apiv1.ToolRequest {
	return apiv1.ToolRequest{
		Name:        f.Name,
		Url:         f.Url,
		Description: f.Description,
		Category:    f.Category,
	}
}
