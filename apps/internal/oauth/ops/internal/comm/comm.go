// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package comm provides helpers for communicating with HTTP backends.
package comm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"strings"

	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/google/uuid"
)

// Version is sent to the identity provider in the x-client-Ver header.
const Version = "1.0.0"

// testID is the client-request-id sent by tests so headers can be compared.
var testID string

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Client provides a wrapper to our *http.Client that handles compression and serialization needs.
type Client struct {
	client HTTPClient
}

// New returns a new Client object.
func New(httpClient HTTPClient) *Client {
	if httpClient == nil {
		panic("http.Client cannot == nil")
	}

	return &Client{client: httpClient}
}

// URLFormCall is used to make a call where we need to send application/x-www-form-urlencoded data
// to the backend and receive JSON back. qv will be encoded into the request body.
func (c *Client) URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error {
	if len(qv) == 0 {
		return fmt.Errorf("URLFormCall() requires qv to have non-zero length")
	}

	if err := c.checkResp(reflect.ValueOf(resp)); err != nil {
		return err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse path URL(%s): %w", endpoint, err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	addStdHeaders(headers)

	enc := qv.Encode()

	req := &http.Request{
		Method:        http.MethodPost,
		URL:           u,
		Header:        headers,
		ContentLength: int64(len(enc)),
		Body:          io.NopCloser(strings.NewReader(enc)),
		GetBody: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(enc)), nil
		},
	}

	data, err := c.do(ctx, req)
	if err != nil {
		// The token endpoint describes failures in a JSON body; give it to the caller too.
		if len(data) > 0 {
			_ = json.Unmarshal(data, resp)
		}
		return err
	}

	v, ok := resp.(interface{ UnmarshalJSON([]byte) error })
	if ok {
		return v.UnmarshalJSON(data)
	}
	return json.Unmarshal(data, resp)
}

// do makes the HTTP call to the server and returns the contents of the body.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req = req.WithContext(ctx)

	reply, err := c.client.Do(req)
	if err != nil {
		return nil, customErrors.CallErr{
			Req: req,
			Err: fmt.Errorf("server response error:\n %w", err),
		}
	}
	defer reply.Body.Close()

	data, err := c.readBody(reply)
	if err != nil {
		return nil, err
	}

	var body io.Reader = bytes.NewReader(data)
	reply.Body = io.NopCloser(body)

	if reply.StatusCode != http.StatusOK {
		return data, customErrors.CallErr{
			Req:  req,
			Resp: reply,
			Err:  fmt.Errorf("http call(%s)(%s) error: reply status code was %d:\n%s", req.URL.String(), req.Method, reply.StatusCode, sanitize(data)),
		}
	}

	return data, nil
}

// checkResp checks a response object o make sure it is a pointer to a struct.
func (c *Client) checkResp(v reflect.Value) error {
	if v.Kind() != reflect.Ptr {
		return fmt.Errorf("bug: resp argument must a *struct, was %T", v.Interface())
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("bug: resp argument must be a *struct, was %T", v.Interface())
	}
	return nil
}

// readBody reads the body out of an *http.Response. It supports gzip encoded responses.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "":
		// Do nothing
	case "gzip":
		r, err := gzipDecompress(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip response could not be decompressed: %w", err)
		}
		reader = r
	default:
		return nil, fmt.Errorf("bug: comm.Client.JSONCall(): content was send with unsupported content-encoding %s", resp.Header.Get("Content-Encoding"))
	}
	return io.ReadAll(reader)
}

// sanitize keeps secrets that the token endpoint may echo back out of error messages.
func sanitize(data []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return string(data)
	}
	for _, k := range []string{"access_token", "refresh_token", "id_token"} {
		if _, ok := payload[k]; ok {
			payload[k] = "[redacted]"
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return string(data)
	}
	return string(b)
}

func addStdHeaders(headers http.Header) http.Header {
	id := testID
	if id == "" {
		id = uuid.New().String()
	}
	headers.Set("Accept-Encoding", "gzip")
	headers.Set("x-client-SKU", "BatchExplorer.Go")
	headers.Set("x-client-Ver", Version)
	headers.Set("x-client-OS", runtime.GOOS)
	headers.Set("x-client-CPU", runtime.GOARCH)
	headers.Set("client-request-id", id)
	headers.Set("return-client-request-id", "false")
	return headers
}
