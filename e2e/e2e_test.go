package e2e

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/listingfs/e2e/testutil"
	"example.com/listingfs/internal/config"
)

// writeDocRoot creates files (and their parent directories) below a fresh temp dir.
// Names ending in "/" create empty directories.
func writeDocRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", p, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return root
}

func quietLogging(t *testing.T) map[string]interface{} {
	return map[string]interface{}{
		"log_level":  "DEBUG",
		"access_log": map[string]interface{}{"enabled": false},
		"error_log":  map[string]interface{}{"target": filepath.Join(t.TempDir(), "error.log")},
	}
}

func TestDefaultErrorResponses(t *testing.T) {
	docRoot := writeDocRoot(t, map[string]string{"testfile.txt": "content"})

	testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name: "DefaultErrorResponses",
		ServerConfigData: map[string]interface{}{
			"server":  map[string]interface{}{"address": "127.0.0.1:0"},
			"logging": quietLogging(t),
			"routing": map[string]interface{}{
				"routes": []map[string]interface{}{{
					"path_pattern":   "/files/",
					"match_type":     "Prefix",
					"handler_type":   "ListingFileServer",
					"handler_config": map[string]interface{}{"root": docRoot},
				}},
			},
		},
		TestCases: []testutil.E2ETestCase{
			{
				Name:    "404_NoRoute_HTML",
				Request: testutil.TestRequest{Method: "GET", Path: "/does-not-exist"},
				Expected: testutil.ExpectedResponse{
					StatusCode: 404,
					Headers:    testutil.HeaderMatcher{"content-type": "text/html; charset=utf-8"},
					BodyMatcher: &testutil.StringContainsBodyMatcher{Substrings: []string{
						"<h1>Not Found</h1><p>The requested resource was not found on this server.</p>",
					}},
				},
			},
			{
				Name: "404_NoRoute_JSON",
				Request: testutil.TestRequest{
					Method: "GET", Path: "/does-not-exist-either",
					Headers: http.Header{"Accept": []string{"application/json"}},
				},
				Expected: testutil.ExpectedResponse{
					StatusCode: 404,
					Headers:    testutil.HeaderMatcher{"content-type": "application/json; charset=utf-8"},
					BodyMatcher: &testutil.JSONFieldsBodyMatcher{ExpectedFields: map[string]interface{}{
						"error": map[string]interface{}{"status_code": 404.0, "message": "Not Found"},
					}},
				},
			},
			{
				Name:    "404_MissingFileUnderRoute",
				Request: testutil.TestRequest{Method: "GET", Path: "/files/nope.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  404,
					BodyMatcher: &testutil.StringContainsBodyMatcher{Substrings: []string{"<h1>Not Found</h1>"}},
				},
			},
			{
				// Unsupported methods are forwarded; with no other route the router answers 404.
				Name:    "POST_IsForwarded",
				Request: testutil.TestRequest{Method: "POST", Path: "/files/testfile.txt", Body: []byte("x")},
				Expected: testutil.ExpectedResponse{
					StatusCode: 404,
				},
			},
			{
				Name:     "HEAD_404_HasNoBody",
				Request:  testutil.TestRequest{Method: "HEAD", Path: "/does-not-exist"},
				Expected: testutil.ExpectedResponse{StatusCode: 404, ExpectNoBody: true},
			},
		},
	})
}

func TestListingFileServer_TOMLConfig(t *testing.T) {
	dir := t.TempDir()
	// handler_config root is relative; it resolves against the config file's directory.
	public := filepath.Join(dir, "public")
	for name, content := range map[string]string{
		"b.txt":              "bee",
		"A.txt":              "capital a",
		"zeta/":              "",
		"alpha/readme.md":    "# alpha",
		"site/index.html":    "<p>welcome</p>",
		"site/other.txt":     "other",
		".secret/token":      "hunter2",
		"space dir/f 1.txt":  "spaced",
		"styles/site.css":    "body{}",
		"data/records.jsonl": "{}\n",
	} {
		p := filepath.Join(public, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfgData := map[string]interface{}{
		"server":  map[string]interface{}{"address": "127.0.0.1:0", "graceful_shutdown_timeout": "2s"},
		"logging": quietLogging(t),
		"routing": map[string]interface{}{
			"routes": []map[string]interface{}{{
				"path_pattern": "/",
				"match_type":   "Prefix",
				"handler_type": "ListingFileServer",
				"handler_config": map[string]interface{}{
					"root":       "public",
					"options":    []string{"Index", "NormalizeDirs"},
					"title":      "Listing of",
					"mime_types": map[string]string{".jsonl": "application/x-ndjson"},
				},
			}},
		},
	}
	s := testutil.StartTestServer(t, testutil.WriteTempConfig(t, dir, cfgData, "toml"))

	cases := []testutil.E2ETestCase{
		{
			Name:    "RootListing_DirectoriesFirst",
			Request: testutil.TestRequest{Method: "GET", Path: "/"},
			Expected: testutil.ExpectedResponse{
				StatusCode: 200,
				Headers:    testutil.HeaderMatcher{"content-type": "text/html; charset=utf-8"},
				BodyMatcher: &testutil.OrderedSubstringsBodyMatcher{Substrings: []string{
					"<title>Listing of /</title>",
					">.secret/<", ">alpha/<", ">data/<", ">site/<", ">space dir/<", ">styles/<", ">zeta/<",
					">A.txt<", ">b.txt<",
					"9 entries",
				}},
			},
		},
		{
			Name:    "SubdirectoryListing",
			Request: testutil.TestRequest{Method: "GET", Path: "/alpha/"},
			Expected: testutil.ExpectedResponse{
				StatusCode: 200,
				BodyMatcher: &testutil.OrderedSubstringsBodyMatcher{Substrings: []string{
					"<h1>Listing of /alpha/</h1>", `<a href="../">../</a>`, `href="./readme.md"`, "1 entry",
				}},
			},
		},
		{
			Name:    "EscapedNamesAreLinkedRelative",
			Request: testutil.TestRequest{Method: "GET", Path: "/space%20dir/"},
			Expected: testutil.ExpectedResponse{
				StatusCode:  200,
				BodyMatcher: &testutil.StringContainsBodyMatcher{Substrings: []string{`href="./f%201.txt"`, ">f 1.txt<"}},
			},
		},
		{
			Name:    "EmptyDirectory",
			Request: testutil.TestRequest{Method: "GET", Path: "/zeta/"},
			Expected: testutil.ExpectedResponse{
				StatusCode:  200,
				BodyMatcher: &testutil.StringContainsBodyMatcher{Substrings: []string{"0 entries"}},
			},
		},
		{
			Name:    "DirectoryWithoutSlashRedirects",
			Request: testutil.TestRequest{Method: "GET", Path: "/alpha?sort=name"},
			Expected: testutil.ExpectedResponse{
				StatusCode: http.StatusPermanentRedirect,
				Headers:    testutil.HeaderMatcher{"location": "/alpha/?sort=name"},
			},
		},
		{
			Name:    "IndexFileIsServed",
			Request: testutil.TestRequest{Method: "GET", Path: "/site/"},
			Expected: testutil.ExpectedResponse{
				StatusCode:  200,
				Headers:     testutil.HeaderMatcher{"content-type": "text/html; charset=utf-8"},
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("<p>welcome</p>")},
			},
		},
		{
			Name:    "PlainFile",
			Request: testutil.TestRequest{Method: "GET", Path: "/b.txt"},
			Expected: testutil.ExpectedResponse{
				StatusCode:  200,
				Headers:     testutil.HeaderMatcher{"content-type": "text/plain; charset=utf-8", "content-length": "3"},
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("bee")},
			},
		},
		{
			Name:    "BuiltinMimeType",
			Request: testutil.TestRequest{Method: "GET", Path: "/styles/site.css"},
			Expected: testutil.ExpectedResponse{
				StatusCode: 200,
				Headers:    testutil.HeaderMatcher{"content-type": "text/css; charset=utf-8"},
			},
		},
		{
			Name:    "CustomMimeType",
			Request: testutil.TestRequest{Method: "GET", Path: "/data/records.jsonl"},
			Expected: testutil.ExpectedResponse{
				StatusCode: 200,
				Headers:    testutil.HeaderMatcher{"content-type": "application/x-ndjson"},
			},
		},
		{
			Name: "RangeRequest",
			Request: testutil.TestRequest{
				Method: "GET", Path: "/A.txt",
				Headers: http.Header{"Range": []string{"bytes=0-6"}},
			},
			Expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusPartialContent,
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("capital")},
			},
		},
		{
			Name:     "HEADFile",
			Request:  testutil.TestRequest{Method: "HEAD", Path: "/b.txt"},
			Expected: testutil.ExpectedResponse{StatusCode: 200, ExpectNoBody: true},
		},
		{
			// Listed above, but not reachable without the DotFiles option.
			Name:     "DotfileRejected",
			Request:  testutil.TestRequest{Method: "GET", Path: "/.secret/token"},
			Expected: testutil.ExpectedResponse{StatusCode: 404},
		},
		{
			Name:     "EncodedTraversalRejected",
			Request:  testutil.TestRequest{Method: "GET", Path: "/alpha/%2e%2e/b.txt"},
			Expected: testutil.ExpectedResponse{StatusCode: 404},
		},
		{
			Name:     "MissingFile",
			Request:  testutil.TestRequest{Method: "GET", Path: "/nope"},
			Expected: testutil.ExpectedResponse{StatusCode: 404},
		},
	}

	for _, client := range []testutil.HTTPTestClient{testutil.NewGoNetHTTPClient(), testutil.NewH2CClient()} {
		for _, tc := range cases {
			t.Run(string(client.Type())+"/"+tc.Name, func(t *testing.T) {
				actual, err := client.Do(s.Address, tc.Request)
				if err != nil {
					t.Fatalf("request failed: %v", err)
				}
				testutil.AssertResponse(t, tc.Expected, actual)
				if client.Type() == testutil.H2CClient && actual.Proto != "HTTP/2.0" {
					t.Errorf("expected HTTP/2.0, got %s", actual.Proto)
				}
			})
		}
	}
}

func TestRouting_MatchingLogic(t *testing.T) {
	docsRoot := writeDocRoot(t, map[string]string{"guide.txt": "guide", "shared.txt": "from docs"})
	fallbackRoot := writeDocRoot(t, map[string]string{"docs/shared.txt": "from fallback", "docs/only-here.txt": "fallback only", "top.txt": "top"})

	handlerCfg := func(root string, options ...string) map[string]interface{} {
		return map[string]interface{}{"root": root, "options": options}
	}

	testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:         "RoutingMatchingLogic",
		ConfigFormat: "json",
		ServerConfigData: map[string]interface{}{
			"server":  map[string]interface{}{"address": "127.0.0.1:0"},
			"logging": quietLogging(t),
			"routing": map[string]interface{}{
				"routes": []map[string]interface{}{
					{
						"path_pattern":   "/",
						"match_type":     "Prefix",
						"handler_type":   "ListingFileServer",
						"rank":           20,
						"handler_config": handlerCfg(fallbackRoot),
					},
					{
						"path_pattern":   "/docs/",
						"match_type":     "Prefix",
						"handler_type":   "ListingFileServer",
						"handler_config": handlerCfg(docsRoot),
					},
				},
			},
		},
		TestCases: []testutil.E2ETestCase{
			{
				Name:    "LowerRankWins",
				Request: testutil.TestRequest{Path: "/docs/shared.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  200,
					BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("from docs")},
				},
			},
			{
				Name:    "AbsentFileForwardsToNextRoute",
				Request: testutil.TestRequest{Path: "/docs/only-here.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  200,
					BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("fallback only")},
				},
			},
			{
				Name:    "FallbackRouteServesOtherPaths",
				Request: testutil.TestRequest{Path: "/top.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  200,
					BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("top")},
				},
			},
			{
				Name:    "DirectoryOfPrefixRouteListsItsRoot",
				Request: testutil.TestRequest{Path: "/docs/"},
				Expected: testutil.ExpectedResponse{
					StatusCode: 200,
					BodyMatcher: &testutil.OrderedSubstringsBodyMatcher{Substrings: []string{
						"<h1>Index of /docs/</h1>", ">guide.txt<", ">shared.txt<",
					}},
				},
			},
			{
				Name:     "NothingMatches",
				Request:  testutil.TestRequest{Path: "/missing.txt"},
				Expected: testutil.ExpectedResponse{StatusCode: 404},
			},
		},
	})
}

func TestRouting_ConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		routes  []config.Route
		wantErr string
	}{
		{
			name:    "prefix without trailing slash",
			routes:  []config.Route{{PathPattern: "/docs", MatchType: config.MatchTypePrefix, HandlerType: "ListingFileServer"}},
			wantErr: "must end with '/'",
		},
		{
			name:    "bad match type",
			routes:  []config.Route{{PathPattern: "/", MatchType: "Glob", HandlerType: "ListingFileServer"}},
			wantErr: "match_type",
		},
		{
			name: "duplicate route",
			routes: []config.Route{
				{PathPattern: "/a/", MatchType: config.MatchTypePrefix, HandlerType: "ListingFileServer"},
				{PathPattern: "/a/", MatchType: config.MatchTypePrefix, HandlerType: "ListingFileServer"},
			},
			wantErr: "duplicates",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(map[string]interface{}{"routing": map[string]interface{}{"routes": tc.routes}})
			if err != nil {
				t.Fatal(err)
			}
			path := filepath.Join(t.TempDir(), "bad.json")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}
			_, err = config.LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
