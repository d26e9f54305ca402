package testdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxBatchSize is the batch limit enforced by the mock event server.
const MaxBatchSize = 50

// MockServer is an in-memory event server and engine double. It stores
// created events, answers the events, batch and query endpoints, and
// records every request together with the peak number of requests it was
// serving at once.
type MockServer struct {
	*httptest.Server
	AccessKey string

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	requests []RecordedRequest
	events   map[string]json.RawMessage
	nextID   atomic.Int64

	inFlight     atomic.Int32
	peakInFlight atomic.Int32
	requestCount atomic.Int32
	latency      atomic.Int64
}

// HandlerFunc is a custom handler function type
type HandlerFunc func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
	Start   time.Time
	End     time.Time
}

// NewMockServer creates a mock server accepting accessKey.
func NewMockServer(accessKey string) *MockServer {
	ms := &MockServer{
		AccessKey: accessKey,
		handlers:  make(map[string]HandlerFunc),
		events:    make(map[string]json.RawMessage),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)

	ms.Server = httptest.NewServer(mux)
	ms.setupDefaultHandlers()

	return ms
}

// setupDefaultHandlers installs the event server and engine endpoints
func (ms *MockServer) setupDefaultHandlers() {
	ms.RegisterHandler("GET /", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		return http.StatusOK, map[string]string{"status": "alive"}
	})

	ms.RegisterHandler("POST /events.json", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		if status, resp := ms.checkKey(r); status != 0 {
			return status, resp
		}
		status, resp := ms.createEvent(body)
		return status, resp
	})

	ms.RegisterHandler("GET /events/", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		if status, resp := ms.checkKey(r); status != 0 {
			return status, resp
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/events/"), ".json")
		ms.mu.RLock()
		raw, ok := ms.events[id]
		ms.mu.RUnlock()
		if !ok {
			return http.StatusNotFound, map[string]string{"message": "Not Found"}
		}
		return http.StatusOK, raw
	})

	ms.RegisterHandler("DELETE /events/", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		if status, resp := ms.checkKey(r); status != 0 {
			return status, resp
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/events/"), ".json")
		ms.mu.Lock()
		_, ok := ms.events[id]
		delete(ms.events, id)
		ms.mu.Unlock()
		if !ok {
			return http.StatusNotFound, map[string]string{"message": "Not Found"}
		}
		return http.StatusOK, map[string]string{"message": "Found"}
	})

	ms.RegisterHandler("POST /batch/events.json", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		if status, resp := ms.checkKey(r); status != 0 {
			return status, resp
		}
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return http.StatusBadRequest, map[string]string{"message": err.Error()}
		}
		if len(items) > MaxBatchSize {
			return http.StatusBadRequest, map[string]string{
				"message": fmt.Sprintf("Batch request must have less than or equal to %d events", MaxBatchSize),
			}
		}
		results := make([]map[string]interface{}, len(items))
		for i, item := range items {
			status, resp := ms.createEvent(item)
			entry := map[string]interface{}{"status": status}
			for k, v := range resp {
				entry[k] = v
			}
			results[i] = entry
		}
		return http.StatusOK, results
	})

	ms.RegisterHandler("POST /queries.json", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		var query map[string]interface{}
		if err := json.Unmarshal(body, &query); err != nil {
			return http.StatusBadRequest, map[string]string{"message": err.Error()}
		}
		num := 2
		if n, ok := query["num"].(float64); ok {
			num = int(n)
		}
		scores := make([]map[string]interface{}, num)
		for i := range scores {
			scores[i] = map[string]interface{}{
				"item":  fmt.Sprintf("i%d", i+1),
				"score": float64(num-i) / 10,
			}
		}
		return http.StatusOK, map[string]interface{}{"itemScores": scores}
	})
}

func (ms *MockServer) checkKey(r *http.Request) (int, map[string]string) {
	if ms.AccessKey != "" && r.URL.Query().Get("accessKey") != ms.AccessKey {
		return http.StatusUnauthorized, map[string]string{"message": "Invalid accessKey."}
	}
	return 0, nil
}

// createEvent validates and stores one event. An event whose properties
// contain "invalid": true is rejected, which lets tests provoke per-item
// failures.
func (ms *MockServer) createEvent(body []byte) (int, map[string]interface{}) {
	var e map[string]interface{}
	if err := json.Unmarshal(body, &e); err != nil {
		return http.StatusBadRequest, map[string]interface{}{"message": err.Error()}
	}
	for _, field := range []string{"event", "entityType", "entityId"} {
		if s, _ := e[field].(string); s == "" {
			return http.StatusBadRequest, map[string]interface{}{"message": "field " + field + " is required"}
		}
	}
	if props, ok := e["properties"].(map[string]interface{}); ok {
		if invalid, _ := props["invalid"].(bool); invalid {
			return http.StatusBadRequest, map[string]interface{}{"message": "invalid property"}
		}
	}

	id := fmt.Sprintf("ev-%d", ms.nextID.Add(1))
	e["eventId"] = id
	stored, _ := json.Marshal(e)

	ms.mu.Lock()
	ms.events[id] = stored
	ms.mu.Unlock()

	return http.StatusCreated, map[string]interface{}{"eventId": id}
}

// RegisterHandler registers a handler for "METHOD /path". A pattern ending
// in "/" other than "GET /" matches every path with that prefix.
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

// SetLatency delays every response by d.
func (ms *MockServer) SetLatency(d time.Duration) {
	ms.latency.Store(int64(d))
}

func (ms *MockServer) lookup(method, path string) HandlerFunc {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	pattern := method + " " + path
	if h, ok := ms.handlers[pattern]; ok {
		return h
	}

	// Longest prefix wins
	prefixes := make([]string, 0, len(ms.handlers))
	for p := range ms.handlers {
		if strings.HasSuffix(p, "/") && !strings.HasSuffix(p, " /") && strings.HasPrefix(pattern, p) {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return nil
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return ms.handlers[prefixes[0]]
}

// handleRequest routes requests to appropriate handlers
func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	current := ms.inFlight.Add(1)
	defer ms.inFlight.Add(-1)
	for {
		peak := ms.peakInFlight.Load()
		if current <= peak || ms.peakInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	ms.requestCount.Add(1)

	body := make([]byte, 0)
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	if d := time.Duration(ms.latency.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
		}
	}

	status, response := http.StatusNotFound, interface{}(map[string]string{"message": "Not Found"})
	if handler := ms.lookup(r.Method, r.URL.Path); handler != nil {
		status, response = handler(w, r, body)
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
		Start:   start,
		End:     time.Now(),
	})
	ms.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	switch resp := response.(type) {
	case nil:
	case json.RawMessage:
		w.Write(resp)
	case string:
		io.WriteString(w, resp)
	default:
		json.NewEncoder(w).Encode(resp)
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// PeakInFlight returns the largest number of requests served concurrently.
func (ms *MockServer) PeakInFlight() int {
	return int(ms.peakInFlight.Load())
}

// GetRequests returns all recorded requests in completion order
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// EventCount returns the number of stored events.
func (ms *MockServer) EventCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.events)
}

// Reset clears recorded requests and stored events
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.peakInFlight.Store(0)
	ms.requests = ms.requests[:0]
	ms.events = make(map[string]json.RawMessage)
}

// WithErrorResponse sets up a handler that returns status with a message body
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, message string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		return statusCode, map[string]string{"message": message}
	})
}

// WithRawResponse sets up a handler that returns body verbatim
func (ms *MockServer) WithRawResponse(pattern string, statusCode int, body string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request, _ []byte) (int, interface{}) {
		return statusCode, body
	})
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
