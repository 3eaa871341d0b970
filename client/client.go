package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/aep/cursorkv/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	base string
	hc   *http.Client
}

func New(address string) *Client {
	return &Client{
		base: strings.TrimRight(address, "/"),
		hc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) kvURL(key string) string {
	return c.base + "/v1/kv/" + url.PathEscape(key)
}

func (c *Client) do(ctx context.Context, method string, target string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	e := api.Error{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		e.Message = body.Message
	}
	return e
}

// Get returns the stored bytes, or with nobuffer the value as json.
func (c *Client) Get(ctx context.Context, key string, nobuffer bool) ([]byte, error) {
	target := c.kvURL(key)
	if nobuffer {
		target += "?nobuffer=true"
	}
	resp, err := c.do(ctx, http.MethodGet, target, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) Put(ctx context.Context, key string, value []byte, binary bool) error {
	target := c.kvURL(key)
	if binary {
		target += "?encoding=binary"
	}
	resp, err := c.do(ctx, http.MethodPut, target, "application/octet-stream", bytes.NewReader(value))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.kvURL(key), "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Batch(ctx context.Context, req *api.BatchRequest) (*api.BatchResponse, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, c.base+"/v1/batch", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out api.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding batch response: %w", err)
	}
	return &out, nil
}

// Range streams the entries selected by the range query q, for example
// `key>="a" key<"b" limit=10`. An empty q selects everything.
func (c *Client) Range(ctx context.Context, q string) iter.Seq2[api.RangeEntry, error] {
	return func(yield func(api.RangeEntry, error) bool) {
		target := c.base + "/v1/range"
		if q != "" {
			target += "?q=" + url.QueryEscape(q)
		}
		resp, err := c.do(ctx, http.MethodGet, target, "", nil)
		if err != nil {
			yield(api.RangeEntry{}, err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for sc.Scan() {
			var e api.RangeEntry
			dec := json.NewDecoder(bytes.NewReader(sc.Bytes()))
			dec.UseNumber()
			if err := dec.Decode(&e); err != nil {
				yield(api.RangeEntry{}, err)
				return
			}
			if e.Error != "" {
				yield(api.RangeEntry{}, api.Error{Code: http.StatusInternalServerError, Message: e.Error})
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(api.RangeEntry{}, err)
		}
	}
}
