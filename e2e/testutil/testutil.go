// Package testutil runs the full server in-process from a configuration file
// and drives it with HTTP/1.1 and h2c clients.
package testutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/http2"

	"example.com/listingfs/internal/app"
	"example.com/listingfs/internal/config"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string // may include a query string
	Headers http.Header
	Body    []byte
}

// HeaderMatcher maps header names to their exact expected values.
type HeaderMatcher map[string]string

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string)
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", m.ExpectedBody, body)
}

// StringContainsBodyMatcher checks that every substring occurs in the body.
type StringContainsBodyMatcher struct {
	Substrings []string
}

func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	for _, s := range m.Substrings {
		if !bytes.Contains(body, []byte(s)) {
			return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", s, body)
		}
	}
	return true, ""
}

// OrderedSubstringsBodyMatcher checks that the substrings occur in the given order.
type OrderedSubstringsBodyMatcher struct {
	Substrings []string
}

func (m *OrderedSubstringsBodyMatcher) Match(body []byte) (bool, string) {
	rest := body
	for _, s := range m.Substrings {
		i := bytes.Index(rest, []byte(s))
		if i < 0 {
			return false, fmt.Sprintf("substring %q missing or out of order. Body: %q", s, body)
		}
		rest = rest[i+len(s):]
	}
	return true, ""
}

// JSONFieldsBodyMatcher decodes the body as a JSON object and checks that it
// contains ExpectedFields. Nested objects are compared recursively; other keys are ignored.
type JSONFieldsBodyMatcher struct {
	ExpectedFields map[string]interface{}
}

func (m *JSONFieldsBodyMatcher) Match(body []byte) (bool, string) {
	var got map[string]interface{}
	if err := json.Unmarshal(body, &got); err != nil {
		return false, fmt.Sprintf("body is not a JSON object: %v. Body: %q", err, body)
	}
	return matchFields("", m.ExpectedFields, got)
}

func matchFields(prefix string, want, got map[string]interface{}) (bool, string) {
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			return false, fmt.Sprintf("missing JSON field %s%s", prefix, k)
		}
		if wm, isMap := w.(map[string]interface{}); isMap {
			gm, ok := g.(map[string]interface{})
			if !ok {
				return false, fmt.Sprintf("JSON field %s%s is not an object: %v", prefix, k, g)
			}
			if ok, msg := matchFields(prefix+k+".", wm, gm); !ok {
				return false, msg
			}
			continue
		}
		if w != g {
			return false, fmt.Sprintf("JSON field %s%s: expected %v, got %v", prefix, k, w, g)
		}
	}
	return true, ""
}

// ExpectedResponse models the expected outcome of an HTTP request.
type ExpectedResponse struct {
	StatusCode   int
	Headers      HeaderMatcher
	BodyMatcher  BodyMatcher
	ExpectNoBody bool // if set, BodyMatcher is ignored and the body must be empty
}

// ActualResponse stores what a client received.
type ActualResponse struct {
	StatusCode int
	Proto      string
	Headers    http.Header
	Body       []byte
}

// HTTPClientType identifies the transport used for a test.
type HTTPClientType string

const (
	GoHTTPClient HTTPClientType = "http1"
	H2CClient    HTTPClientType = "h2c"
)

// HTTPTestClient sends a TestRequest to a server address.
type HTTPTestClient interface {
	Do(serverAddr string, request TestRequest) (ActualResponse, error)
	Type() HTTPClientType
}

type goHTTPClient struct {
	kind   HTTPClientType
	client *http.Client
}

// NewGoNetHTTPClient returns an HTTP/1.1 client that does not follow redirects.
func NewGoNetHTTPClient() HTTPTestClient {
	return &goHTTPClient{kind: GoHTTPClient, client: &http.Client{
		Timeout:       5 * time.Second,
		CheckRedirect: noRedirects,
	}}
}

// NewH2CClient returns a client speaking HTTP/2 with prior knowledge over cleartext.
func NewH2CClient() HTTPTestClient {
	return &goHTTPClient{kind: H2CClient, client: &http.Client{
		Timeout:       5 * time.Second,
		CheckRedirect: noRedirects,
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}}
}

func noRedirects(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func (c *goHTTPClient) Type() HTTPClientType { return c.kind }

func (c *goHTTPClient) Do(serverAddr string, request TestRequest) (ActualResponse, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}
	req, err := http.NewRequest(method, "http://"+serverAddr+request.Path, body)
	if err != nil {
		return ActualResponse{}, err
	}
	for name, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ActualResponse{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("reading response body: %w", err)
	}
	return ActualResponse{StatusCode: resp.StatusCode, Proto: resp.Proto, Headers: resp.Header, Body: data}, nil
}

// WriteTempConfig encodes configData as JSON or TOML into dir and returns the file path.
func WriteTempConfig(t *testing.T, dir string, configData interface{}, format string) string {
	t.Helper()
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		t.Fatalf("failed to encode %s config: %v", format, err)
	}
	path := filepath.Join(dir, "listingfs."+strings.ToLower(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// ServerInstance is a server started from a configuration file.
type ServerInstance struct {
	Address    string
	ConfigPath string
	cancel     context.CancelFunc
	done       chan error
}

// StartTestServer loads configPath and serves it until the test ends.
func StartTestServer(t *testing.T, configPath string) *ServerInstance {
	t.Helper()
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("loading %s: %v", configPath, err)
	}
	a, err := app.New(cfg, configPath)
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	if err := a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ServerInstance{
		Address:    a.Addr().String(),
		ConfigPath: configPath,
		cancel:     cancel,
		done:       make(chan error, 1),
	}
	go func() { s.done <- a.Run(ctx) }()
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("stopping server: %v", err)
		}
	})
	return s
}

// Stop shuts the server down and waits for it to exit.
func (s *ServerInstance) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	select {
	case err := <-s.done:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server at %s did not stop", s.Address)
	}
}

// E2ETestCase is one request and its expected response.
type E2ETestCase struct {
	Name     string
	Request  TestRequest
	Expected ExpectedResponse
}

// E2ETestDefinition describes a server configuration and the requests run against it.
type E2ETestDefinition struct {
	Name             string
	ServerConfigData interface{}
	ConfigFormat     string // "json" or "toml"
	TestCases        []E2ETestCase
}

// RunE2ETest starts one server for def and runs every case with every client.
func RunE2ETest(t *testing.T, def E2ETestDefinition) {
	t.Helper()
	format := def.ConfigFormat
	if format == "" {
		format = "json"
	}
	s := StartTestServer(t, WriteTempConfig(t, t.TempDir(), def.ServerConfigData, format))

	for _, client := range []HTTPTestClient{NewGoNetHTTPClient(), NewH2CClient()} {
		for _, tc := range def.TestCases {
			t.Run(fmt.Sprintf("%s/%s", client.Type(), tc.Name), func(t *testing.T) {
				actual, err := client.Do(s.Address, tc.Request)
				if err != nil {
					t.Fatalf("request %s %s failed: %v", tc.Request.Method, tc.Request.Path, err)
				}
				AssertResponse(t, tc.Expected, actual)
			})
		}
	}
}

// AssertResponse compares an actual response with the expectation.
func AssertResponse(t *testing.T, want ExpectedResponse, got ActualResponse) {
	t.Helper()
	if got.StatusCode != want.StatusCode {
		t.Errorf("status: expected %d, got %d (body %q)", want.StatusCode, got.StatusCode, got.Body)
	}
	for name, value := range want.Headers {
		if v := got.Headers.Get(name); v != value {
			t.Errorf("header %s: expected %q, got %q", name, value, v)
		}
	}
	if want.ExpectNoBody {
		if len(got.Body) != 0 {
			t.Errorf("expected empty body, got %q", got.Body)
		}
		return
	}
	if want.BodyMatcher != nil {
		if ok, msg := want.BodyMatcher.Match(got.Body); !ok {
			t.Error(msg)
		}
	}
}
