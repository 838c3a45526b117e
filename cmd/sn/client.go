package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentience/sentience/internal/pipeline"
)

// client talks to a running SENTIENCE daemon
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: a streamed answer can take minutes
		http: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 2 * time.Minute}},
	}
}

// do sends a JSON request and decodes a JSON response into out
func (c *client) do(method, path string, body, out interface{}) error {
	resp, err := c.send(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) send(method, path string, body interface{}) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	return resp, nil
}

// stream posts a prompt to /api/ai/stream and calls onToken for each
// fragment. It returns the final text once the done frame arrives.
func (c *client) stream(prompt, conversationID string, onToken func(string)) (string, error) {
	resp, err := c.send(http.MethodPost, "/api/ai/stream", map[string]string{
		"prompt":         prompt,
		"conversationId": conversationID,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apiError(resp)
	}

	var full string
	err = readFrames(resp.Body, func(f pipeline.Frame) error {
		switch f.Kind() {
		case pipeline.KindToken:
			onToken(f.Token)
		case pipeline.KindError:
			return fmt.Errorf("stream failed: %s", f.Error)
		case pipeline.KindDone:
			full = f.FullText
		}
		return nil
	})
	return full, err
}

// readFrames decodes "data: <json>" events until a terminal frame
func readFrames(r io.Reader, fn func(pipeline.Frame) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f pipeline.Frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			return fmt.Errorf("bad frame %q: %w", line, err)
		}
		if err := fn(f); err != nil {
			return err
		}
		if f.Terminal() {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("%s (%d)", body.Error, resp.StatusCode)
}
