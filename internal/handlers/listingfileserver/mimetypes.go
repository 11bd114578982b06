package listingfileserver

import (
	"mime"
	"path/filepath"
	"strings"
)

// builtinMimeTypes covers common types that mime.TypeByExtension may not know
// on a minimal system without /etc/mime.types.
var builtinMimeTypes = map[string]string{
	".avif":  "image/avif",
	".css":   "text/css; charset=utf-8",
	".csv":   "text/csv; charset=utf-8",
	".gz":    "application/gzip",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/vnd.microsoft.icon",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".mp4":   "video/mp4",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".tar":   "application/x-tar",
	".txt":   "text/plain; charset=utf-8",
	".wasm":  "application/wasm",
	".webp":  "image/webp",
	".woff2": "font/woff2",
	".xml":   "application/xml; charset=utf-8",
	".yaml":  "application/yaml",
	".zip":   "application/zip",
}

// MimeTypeResolver picks the Content-Type for a served file.
type MimeTypeResolver struct {
	custom map[string]string
}

// NewMimeTypeResolver takes extension -> type overrides; keys are matched case-insensitively.
func NewMimeTypeResolver(custom map[string]string) *MimeTypeResolver {
	r := &MimeTypeResolver{custom: make(map[string]string, len(custom))}
	for ext, typ := range custom {
		r.custom[strings.ToLower(ext)] = typ
	}
	return r
}

// ContentType checks the custom mappings, then the built-in table, then the
// mime package. It returns "" when nothing matches so that the caller can
// sniff the content instead.
func (r *MimeTypeResolver) ContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return ""
	}
	if typ, ok := r.custom[ext]; ok {
		return typ
	}
	if typ, ok := builtinMimeTypes[ext]; ok {
		return typ
	}
	return mime.TypeByExtension(ext)
}
