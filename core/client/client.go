/*
Package client provides easy and fast in-process access to the REST api

Instead of marshalling HTTP, the client talks directly to the mux router. It
is perfectly suited for unit tests, and also works against a running server
when created with a base URL.
*/
package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/yoanarobeva/book-reads-app-server/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// backend, through the mux router.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to a running backend.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added.
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithToken returns a new client carrying the access token.
func (c Client) WithToken(token string) Client {
	return c.WithHeader(access.AuthorizationHeader, token)
}

func (c Client) do(r *http.Request) (int, []byte, error) {
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		return rec.Result().StatusCode, rec.Body.Bytes(), nil
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, resBody, nil
}

func decode(resBody []byte, result interface{}) error {
	if resBody == nil || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

// RawGet gets the resource from path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// The path can be extended with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	r, _ := http.NewRequest(http.MethodGet, c.url+path, nil)
	status, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, decode(resBody, result)
}

// RawPost posts a resource to path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	j, err := encode(body)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
	}
	r, _ := http.NewRequest(http.MethodPost, c.url+path, bytes.NewBuffer(j))
	status, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, decode(resBody, result)
}

// RawPut puts a resource to path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	j, err := encode(body)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("PUT to %s: %w", path, err)
	}
	r, _ := http.NewRequest(http.MethodPut, c.url+path, bytes.NewBuffer(j))
	status, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, decode(resBody, result)
}

// RawDelete deletes the resource at path. Expects http.StatusOK or
// http.StatusNoContent as response, otherwise it will flag an error.
// Returns the actual http status code.
func (c Client) RawDelete(path string, result interface{}) (int, error) {
	r, _ := http.NewRequest(http.MethodDelete, c.url+path, nil)
	status, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, decode(resBody, result)
}

func encode(body interface{}) ([]byte, error) {
	if j, ok := body.([]byte); ok {
		return j, nil
	}
	return json.Marshal(body)
}
