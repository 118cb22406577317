package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

// httpClient serves short control calls; task exchanges are bounded by the
// round context instead, since sorting a large subsequence can take longer.
var (
	httpClient = &http.Client{Timeout: 5 * time.Second}
	taskClient = &http.Client{}
)

func PostJSON(ctx context.Context, url string, body any, out any) error {
	return postJSON(ctx, httpClient, url, body, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(url, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(url, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError keeps the first line of the body, which is where
// http.Error puts the message.
func statusError(url string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: http %s: %s", ErrProtocol, url, text)
	}
	if text == "" {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return fmt.Errorf("http %s: %d: %s", url, resp.StatusCode, text)
}
