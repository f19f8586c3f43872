// Package checker talks to the external analysis service.
package checker

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

	"github.com/sirupsen/logrus"

	"verisync/internal/model"
)

// Service is the request/response surface of the analysis service. Every call
// is a suspension point of the engine: it happens outside the engine's lock
// and observes ctx for cancellation.
type Service interface {
	GetComponents(ctx context.Context, fileURI string) ([]model.ComponentDescriptor, error)
	Check(ctx context.Context, fileURI, component string) ([]model.ComponentResult, error)
	Interpret(ctx context.Context, fileURI, component, inputsJSON string) (string, error)
	CounterExample(ctx context.Context, fileURI, component string, abstract, concrete []string, property string) (string, error)
	GetRawCommand(ctx context.Context, fileURI, component string) ([]string, error)
}

// Client implements Service over the checker's JSON-over-HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient validates the base URL and returns a client. A zero timeout
// leaves requests unbounded; cancellation then only comes from the caller's
// context, which matches how check sessions are aborted.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid checker URL %q: %w", baseURL, err)
	}
	logrus.Infof("Using analysis service at %s", baseURL)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	logrus.Debugf("checker: POST %s (%d bytes)", path, len(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("analysis service request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("analysis service %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// GetComponents fetches the ordered component listing for a root file.
func (c *Client) GetComponents(ctx context.Context, fileURI string) ([]model.ComponentDescriptor, error) {
	var out []model.ComponentDescriptor
	err := c.post(ctx, "/components", map[string]string{"uri": fileURI}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Check runs verification of one component and returns per-component results.
func (c *Client) Check(ctx context.Context, fileURI, component string) ([]model.ComponentResult, error) {
	var out []model.ComponentResult
	err := c.post(ctx, "/check", map[string]string{"uri": fileURI, "name": component}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Interpret forwards simulation inputs and returns the opaque result payload.
func (c *Client) Interpret(ctx context.Context, fileURI, component, inputsJSON string) (string, error) {
	var out struct {
		Result string `json:"result"`
	}
	err := c.post(ctx, "/interpret", map[string]string{
		"uri":    fileURI,
		"name":   component,
		"inputs": inputsJSON,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Result, nil
}

// CounterExample fetches the trace refuting one property of one analysis.
func (c *Client) CounterExample(ctx context.Context, fileURI, component string, abstract, concrete []string, property string) (string, error) {
	var out struct {
		Result string `json:"result"`
	}
	err := c.post(ctx, "/counterexample", map[string]any{
		"uri":      fileURI,
		"name":     component,
		"abstract": abstract,
		"concrete": concrete,
		"property": property,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Result, nil
}

// GetRawCommand returns the checker invocation (command plus arguments) for
// running the component outside the engine.
func (c *Client) GetRawCommand(ctx context.Context, fileURI, component string) ([]string, error) {
	var out []string
	err := c.post(ctx, "/raw", map[string]string{"uri": fileURI, "name": component}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
