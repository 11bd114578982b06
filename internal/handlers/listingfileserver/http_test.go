package listingfileserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/listingfs/internal/logger"
	"example.com/listingfs/internal/server"
)

func serve(t *testing.T, s *ListingFileServer, method, target string, segments []string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handled := s.ServeRoute(rec, req, segments)
	return rec, handled
}

func TestServeRoute_Redirect(t *testing.T) {
	s, err := New(memRoot, OptionNormalizeDirs, nil, nil, WithFs(docsTree(t)))
	require.NoError(t, err)

	rec, handled := serve(t, s, http.MethodGet, "/docs?x=1", []string{"docs"})
	require.True(t, handled)
	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/docs/?x=1", rec.Header().Get("Location"))
}

func TestServeRoute_Listing(t *testing.T) {
	s, err := New(memRoot, OptionNone, nil, nil, WithFs(docsTree(t)))
	require.NoError(t, err)

	rec, handled := serve(t, s, http.MethodGet, "/docs/", []string{"docs", ""})
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Index of /docs/")
	assert.Contains(t, rec.Body.String(), `href="./api/"`)
}

func TestServeRoute_HeadListingHasNoBody(t *testing.T) {
	s, err := New(memRoot, OptionNone, nil, nil, WithFs(docsTree(t)))
	require.NoError(t, err)

	rec, handled := serve(t, s, http.MethodHead, "/docs/", []string{"docs", ""})
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())
}

func TestServeRoute_IndexFile(t *testing.T) {
	s, err := New(memRoot, OptionIndex, nil, nil, WithFs(docsTree(t)))
	require.NoError(t, err)

	rec, handled := serve(t, s, http.MethodGet, "/docs/", []string{"docs", ""})
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>docs</h1>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestServeRoute_FileWithRangeAndCustomType(t *testing.T) {
	s, err := New(memRoot, OptionNone, nil, nil,
		WithFs(docsTree(t)),
		WithMimeTypes(map[string]string{".MD": "text/x-markdown"}))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/docs/guide.md", nil)
	req.Header.Set("Range", "bytes=2-")
	rec := httptest.NewRecorder()
	require.True(t, s.ServeRoute(rec, req, []string{"docs", "guide.md"}))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "guide", rec.Body.String())
	assert.Equal(t, "text/x-markdown", rec.Header().Get("Content-Type"))
}

func TestServeRoute_ForwardWritesNothing(t *testing.T) {
	s, err := New(memRoot, OptionNone, nil, nil, WithFs(docsTree(t)))
	require.NoError(t, err)

	for _, tc := range []struct {
		method   string
		target   string
		segments []string
	}{
		{http.MethodGet, "/missing", []string{"missing"}},
		{http.MethodGet, "/x", []string{"docs", "..", "..", "etc", "passwd"}},
		{http.MethodPost, "/docs/", []string{"docs", ""}},
		{http.MethodDelete, "/file.txt", []string{"file.txt"}},
	} {
		rec, handled := serve(t, s, tc.method, tc.target, tc.segments)
		assert.False(t, handled, "%s %s", tc.method, tc.target)
		assert.Zero(t, rec.Body.Len())
		assert.Empty(t, rec.Header())
	}
}

func TestServeRoute_UnreadableDirectoryIs500(t *testing.T) {
	docs := filepath.Join(memRoot, "docs")
	fsys := flakyFs{Fs: docsTree(t), failOpen: map[string]bool{docs: true}}
	s, err := New(memRoot, OptionNone, nil, logger.NewDiscardLogger(), WithFs(fsys))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/docs/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	require.True(t, s.ServeRoute(rec, req, []string{"docs", ""}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body server.ErrorResponseJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Error.StatusCode)
}

func TestServeFile_VanishedFileIs404(t *testing.T) {
	file := filepath.Join(memRoot, "file.txt")
	fsys := flakyFs{Fs: docsTree(t), failOpen: map[string]bool{file: true}}
	s, err := New(memRoot, OptionNone, nil, nil, WithFs(fsys))
	require.NoError(t, err)

	// Stat still succeeds, so the dispatcher picks ServeFile and the open fails afterwards.
	rec, handled := serve(t, s, http.MethodGet, "/file.txt", []string{"file.txt"})
	require.True(t, handled)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}
