package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/torsort/internal/cluster"
	"github.com/dreamware/torsort/internal/worker"
)

// startNode runs the worker loop of a fresh node until the test ends
func startNode(t *testing.T) (*Node, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	node := NewNode("test-node")
	errc := make(chan error, 1)
	go func() { errc <- node.Run(ctx) }()
	return node, errc
}

func postTask(node *Node, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/task", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	node.routes().ServeHTTP(rec, req)
	return rec
}

// TestHandleTask tests task delivery through the HTTP handler
func TestHandleTask(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedValues []int32
	}{
		{
			name:           "sort",
			body:           `{"kind":"sort","payloads":[{"length":4,"values":[4,-2,9,0]}]}`,
			expectedStatus: http.StatusOK,
			expectedValues: []int32{-2, 0, 4, 9},
		},
		{
			name:           "merge",
			body:           `{"kind":"merge","round":1,"payloads":[{"length":2,"values":[1,5]},{"length":3,"values":[2,3,8]}]}`,
			expectedStatus: http.StatusOK,
			expectedValues: []int32{1, 2, 3, 5, 8},
		},
		{
			name:           "idle",
			body:           `{"kind":"idle","round":1}`,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "bad json",
			body:           `{"kind":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, _ := startNode(t)

			rec := postTask(node, tt.body)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedValues == nil {
				return
			}

			var res cluster.Result
			if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
				t.Fatalf("Failed to decode result: %v", err)
			}
			if err := res.Payload.Validate(); err != nil {
				t.Errorf("Invalid payload: %v", err)
			}
			if len(res.Payload.Values) != len(tt.expectedValues) {
				t.Fatalf("Expected %v, got %v", tt.expectedValues, res.Payload.Values)
			}
			for i, v := range tt.expectedValues {
				if res.Payload.Values[i] != v {
					t.Errorf("Expected %v, got %v", tt.expectedValues, res.Payload.Values)
					break
				}
			}
		})
	}
}

// TestHandleTaskMethod tests that only POST is accepted
func TestHandleTaskMethod(t *testing.T) {
	node, _ := startNode(t)

	req := httptest.NewRequest(http.MethodGet, "/task", nil)
	rec := httptest.NewRecorder()
	node.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

// TestHandleTaskProtocolError tests that a malformed task stops the worker
func TestHandleTaskProtocolError(t *testing.T) {
	node, errc := startNode(t)

	rec := postTask(node, `{"kind":"sort","payloads":[{"length":3,"values":[1]}]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case err := <-errc:
		if err == nil {
			t.Error("Expected the worker loop to stop with an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker loop did not stop")
	}

	rec = postTask(node, `{"kind":"idle","round":1}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 after stop, got %d", rec.Code)
	}
}

// TestHandleTaskBusy tests that a second task is refused while one is
// outstanding
func TestHandleTaskBusy(t *testing.T) {
	// the loop is not running, so a delivered exchange stays outstanding
	node := NewNode("test-node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	held := make(chan error, 1)
	go func() {
		for {
			_, err := node.Mailbox.Exchange(ctx, cluster.SortTask([]int32{2, 1}))
			if !errors.Is(err, worker.ErrBusy) {
				held <- err
				return
			}
		}
	}()

	// a canceled request never waits on the free slot, so only an occupied
	// mailbox answers 409
	canceled, stop := context.WithCancel(context.Background())
	stop()
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodPost, "/task",
			bytes.NewBufferString(`{"kind":"idle","round":1}`)).WithContext(canceled)
		rec := httptest.NewRecorder()
		node.routes().ServeHTTP(rec, req)
		return rec.Code == http.StatusConflict
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-held:
		assert.ErrorIs(t, err, context.Canceled, "the outstanding exchange must end by cancellation, not ErrBusy")
	case <-time.After(2 * time.Second):
		t.Fatal("outstanding exchange did not return")
	}
}

// TestHandleTaskDone tests that done stops the worker loop cleanly
func TestHandleTaskDone(t *testing.T) {
	node, errc := startNode(t)

	rec := postTask(node, `{"kind":"done"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rec.Code)
	}

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker loop did not stop")
	}
}

// TestNodeInfo tests the /info endpoint
func TestNodeInfo(t *testing.T) {
	node, _ := startNode(t)

	postTask(node, `{"kind":"sort","payloads":[{"length":2,"values":[2,1]}]}`)
	postTask(node, `{"kind":"idle","round":1}`)

	// an idle exchange returns once the loop has taken it, which can be
	// before the loop counts it
	var info worker.Info
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/info", nil)
		rec := httptest.NewRecorder()
		node.routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
			return false
		}
		return info.Stats.Idles == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "test-node", info.ID)
	assert.Equal(t, worker.TaskStats{Sorts: 1, Idles: 1, Values: 2}, info.Stats)
}

// TestNodeOverHTTP drives a node through cluster.HTTPEndpoint, the way the
// coordinator does
func TestNodeOverHTTP(t *testing.T) {
	node, errc := startNode(t)
	server := httptest.NewServer(node.routes())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ep := cluster.HTTPEndpoint{Addr: server.URL}

	res, err := ep.Exchange(ctx, cluster.MergeTask(1, []int32{1, 4}, []int32{2, 3}))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Payload.Length != 4 {
		t.Errorf("Expected 4 values, got %d", res.Payload.Length)
	}

	if _, err := ep.Exchange(ctx, cluster.IdleTask(2)); err != nil {
		t.Errorf("idle: %v", err)
	}
	if _, err := ep.Exchange(ctx, cluster.DoneTask()); err != nil {
		t.Errorf("done: %v", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}
}
