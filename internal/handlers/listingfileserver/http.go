package listingfileserver

import (
	"net/http"
	"path/filepath"
	"strconv"

	"example.com/listingfs/internal/logger"
	"example.com/listingfs/internal/server"
)

// ServeRoute implements server.Handler. Only GET and HEAD are handled; every
// other method, and every Forward outcome, returns false without writing.
func (s *ListingFileServer) ServeRoute(w http.ResponseWriter, r *http.Request, segments []string) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	out := s.Handle(Request{
		URLPath:  r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Segments: segments,
	})

	switch out.Kind {
	case OutcomeForward:
		return false
	case OutcomeRedirect:
		http.Redirect(w, r, out.Location, http.StatusPermanentRedirect)
	case OutcomeServeFile:
		s.serveFile(w, r, out.Path)
	case OutcomeRenderListing:
		h := w.Header()
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Set("Content-Length", strconv.Itoa(len(out.Body)))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			w.Write(out.Body)
		}
	case OutcomeNotFound:
		server.WriteErrorResponse(w, r, http.StatusNotFound, "", s.log)
	default:
		server.WriteErrorResponse(w, r, http.StatusInternalServerError, "", s.log)
	}
	return true
}

// serveFile streams name with http.ServeContent, which takes care of ranges
// and conditional requests. A file that cannot be opened any more is a 404.
func (s *ListingFileServer) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := s.fs.Open(name)
	if err != nil {
		s.log.Warn("ListingFileServer: file vanished before it could be served", logger.LogFields{
			"path":  name,
			"error": err.Error(),
		})
		server.WriteErrorResponse(w, r, http.StatusNotFound, "", s.log)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		server.WriteErrorResponse(w, r, http.StatusNotFound, "", s.log)
		return
	}

	if ct := s.mime.ContentType(name); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, filepath.Base(name), fi.ModTime(), f)
}
