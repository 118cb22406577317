package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dreamware/torsort/internal/cluster"
)

// TestGetenv tests the getenv utility function
func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      string
		expected string
	}{
		{
			name:     "environment variable set",
			key:      "TEST_ENV_VAR",
			value:    "test_value",
			def:      "default",
			expected: "test_value",
		},
		{
			name:     "environment variable not set",
			key:      "UNSET_ENV_VAR",
			value:    "",
			def:      "default_value",
			expected: "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
				defer os.Unsetenv(tt.key)
			}

			result := getenv(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

// TestMustGetenv tests the mustGetenv utility function
func TestMustGetenv(t *testing.T) {
	t.Run("variable set", func(t *testing.T) {
		os.Setenv("MUST_HAVE_VAR", "required_value")
		defer os.Unsetenv("MUST_HAVE_VAR")

		result := mustGetenv("MUST_HAVE_VAR")
		if result != "required_value" {
			t.Errorf("Expected 'required_value', got %s", result)
		}
	})

	t.Run("variable not set", func(t *testing.T) {
		oldLogFatal := logFatal
		defer func() { logFatal = oldLogFatal }()

		fatalCalled := false
		logFatal = func(format string, v ...interface{}) {
			fatalCalled = true
		}

		_ = mustGetenv("UNSET_REQUIRED_VAR")

		if !fatalCalled {
			t.Error("Expected log.Fatal to be called but it wasn't")
		}
	})
}

// TestRegister tests the node registration function
func TestRegister(t *testing.T) {
	tests := []struct {
		name         string
		serverStatus int
		expectFatal  bool
		retries      int
	}{
		{
			name:         "successful registration on first try",
			serverStatus: http.StatusNoContent,
			retries:      1,
		},
		{
			name:         "successful registration after retries",
			serverStatus: http.StatusNoContent,
			retries:      3,
		},
		{
			name:         "registration fails after max retries",
			serverStatus: http.StatusInternalServerError,
			expectFatal:  true,
			retries:      11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/register" {
					t.Errorf("Expected POST /register, got %s %s", r.Method, r.URL.Path)
				}

				var req cluster.RegisterRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("Failed to decode request body: %v", err)
				}
				if req.Node.ID != "test-node" || req.Node.Addr != "http://localhost:8081" {
					t.Errorf("Unexpected registration %+v", req.Node)
				}

				attempts++
				if attempts >= tt.retries && tt.serverStatus == http.StatusNoContent {
					w.WriteHeader(http.StatusNoContent)
				} else {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}))
			defer server.Close()

			oldLogFatal := logFatal
			defer func() { logFatal = oldLogFatal }()

			fatalCalled := false
			logFatal = func(format string, v ...interface{}) {
				fatalCalled = true
			}

			register(context.Background(), server.URL, "test-node", "http://localhost:8081")

			if tt.expectFatal && !fatalCalled {
				t.Error("Expected log.Fatal to be called but it wasn't")
			}
			if !tt.expectFatal && fatalCalled {
				t.Error("Unexpected log.Fatal call")
			}
		})
	}
}

// TestHealthEndpoint tests the health check endpoint
func TestHealthEndpoint(t *testing.T) {
	node := NewNode("test-node")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	node.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

// freeAddr returns a loopback address that was free a moment ago
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// TestMainFunction runs the node through its whole life: register, serve a
// sort, receive done, exit.
func TestMainFunction(t *testing.T) {
	registered := make(chan cluster.NodeInfo, 1)
	coordServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/register" {
			var req cluster.RegisterRequest
			json.NewDecoder(r.Body).Decode(&req)
			registered <- req.Node
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer coordServer.Close()

	listen := freeAddr(t)
	public := "http://" + listen
	t.Setenv("NODE_ID", "")
	t.Setenv("NODE_LISTEN", listen)
	t.Setenv("NODE_ADDR", public)
	t.Setenv("COORDINATOR_ADDR", coordServer.URL)

	oldLogFatal := logFatal
	defer func() { logFatal = oldLogFatal }()
	logFatal = func(format string, v ...interface{}) {
		t.Errorf("unexpected fatal: "+format, v...)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		main()
	}()

	var info cluster.NodeInfo
	select {
	case info = <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("node did not register")
	}
	if info.ID == "" {
		t.Error("Expected a generated node ID")
	}
	if info.Addr != public {
		t.Errorf("Expected addr %s, got %s", public, info.Addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ep := cluster.HTTPEndpoint{Addr: public}

	res, err := ep.Exchange(ctx, cluster.SortTask([]int32{3, 1, 2}))
	if err != nil {
		t.Fatalf("sort exchange: %v", err)
	}
	if got := fmt.Sprint(res.Payload.Values); got != "[1 2 3]" {
		t.Errorf("Expected [1 2 3], got %s", got)
	}

	if _, err := ep.Exchange(ctx, cluster.DoneTask()); err != nil {
		t.Fatalf("done exchange: %v", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Error("node did not exit after done")
	}
}
