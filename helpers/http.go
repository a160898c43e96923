package helpers

import (
	"bufio"
	"bytes"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"
)

// MockHTTP is http.RoundTripper for tests.
// Responds with Status (default 200), or Err, or whatever Fun returns.
// Every request body is recorded.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Status int
	Body   []byte
	Err    error

	mu       sync.Mutex
	requests []MockRequest
}

type MockRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = ioutil.ReadAll(req.Body)
		req.Body.Close()
		req.Body = ioutil.NopCloser(bytes.NewReader(body))
	}
	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	m.mu.Unlock()

	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	status := m.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\n\r\n", status, http.StatusText(status), len(m.Body))
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}
