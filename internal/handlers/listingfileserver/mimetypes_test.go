package listingfileserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeResolver(t *testing.T) {
	r := NewMimeTypeResolver(map[string]string{
		".Custom": "application/x-custom",
		".html":   "text/x-overridden",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/a/b/file.custom", "application/x-custom"},
		{"/a/b/FILE.CUSTOM", "application/x-custom"},
		{"index.html", "text/x-overridden"},
		{"style.css", "text/css; charset=utf-8"},
		{"module.WASM", "application/wasm"},
		{"README", ""},
		{"archive.unknownext", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, r.ContentType(tc.path), tc.path)
	}
}

func TestMimeTypeResolver_NilCustom(t *testing.T) {
	r := NewMimeTypeResolver(nil)
	assert.Equal(t, "text/html; charset=utf-8", r.ContentType("index.HTML"))
	assert.Equal(t, "image/png", r.ContentType("x.png"))
}
