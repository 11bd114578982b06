package listingfileserver

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"example.com/listingfs/internal/logger"
)

// Request is the part of an HTTP request the dispatcher looks at.
type Request struct {
	// URLPath is the decoded request path as the client sent it, e.g. "/docs".
	URLPath string
	// RawQuery is carried over into redirects.
	RawQuery string
	// Segments are the decoded path segments below the route's mount point.
	Segments []string
}

// OutcomeKind enumerates the dispatcher's possible decisions.
type OutcomeKind int

const (
	// OutcomeForward declines the request so another route can try it.
	OutcomeForward OutcomeKind = iota
	OutcomeRedirect
	OutcomeServeFile
	OutcomeRenderListing
	OutcomeNotFound
	// OutcomeError is an internal failure, e.g. a directory that could not be read.
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeForward:
		return "Forward"
	case OutcomeRedirect:
		return "Redirect"
	case OutcomeServeFile:
		return "ServeFile"
	case OutcomeRenderListing:
		return "RenderListing"
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Outcome is the result of Handle. Only the fields relevant to Kind are set.
type Outcome struct {
	Kind OutcomeKind
	// Location is the redirect target (path and query) for OutcomeRedirect.
	Location string
	// Path is the filesystem path to serve for OutcomeServeFile.
	Path string
	// Label and Body are set for OutcomeRenderListing.
	Label string
	Body  []byte
	Err   error
}

// dispatchState is what every rule sees: the request and its resolution.
type dispatchState struct {
	req      Request
	target   ResolvedTarget
	resolved bool
}

type dispatchRule struct {
	name  string
	apply func(s *ListingFileServer, st *dispatchState) (Outcome, bool)
}

// dispatchRules is evaluated in order and the first rule that applies decides.
var dispatchRules = []dispatchRule{
	{"unresolved", func(s *ListingFileServer, st *dispatchState) (Outcome, bool) {
		if !st.resolved {
			return Outcome{Kind: OutcomeForward}, true
		}
		return Outcome{}, false
	}},
	{"normalize-dirs", func(s *ListingFileServer, st *dispatchState) (Outcome, bool) {
		if st.target.Kind != KindDirectory || !s.opts.Contains(OptionNormalizeDirs) {
			return Outcome{}, false
		}
		if strings.HasSuffix(st.req.URLPath, "/") {
			return Outcome{}, false
		}
		return Outcome{Kind: OutcomeRedirect, Location: redirectLocation(st.req.URLPath, st.req.RawQuery)}, true
	}},
	{"index", func(s *ListingFileServer, st *dispatchState) (Outcome, bool) {
		if st.target.Kind != KindDirectory || !s.opts.Contains(OptionIndex) {
			return Outcome{}, false
		}
		index := filepath.Join(st.target.Path, IndexFileName)
		if !s.openableRegularFile(index) {
			return Outcome{}, false
		}
		return Outcome{Kind: OutcomeServeFile, Path: index}, true
	}},
	{"listing", func(s *ListingFileServer, st *dispatchState) (Outcome, bool) {
		if st.target.Kind != KindDirectory {
			return Outcome{}, false
		}
		return s.renderListing(st), true
	}},
	{"file", func(s *ListingFileServer, st *dispatchState) (Outcome, bool) {
		if st.target.Kind != KindFile {
			return Outcome{}, false
		}
		return Outcome{Kind: OutcomeServeFile, Path: st.target.Path}, true
	}},
	{"absent", func(s *ListingFileServer, st *dispatchState) (Outcome, bool) {
		return Outcome{Kind: OutcomeForward}, true
	}},
}

// Handle resolves req against the root and decides what to do with it.
// It never writes a response; see ServeRoute for that.
func (s *ListingFileServer) Handle(req Request) Outcome {
	st := &dispatchState{req: req}
	st.target, st.resolved = Resolve(s.fs, s.root, req.Segments, s.opts.Contains(OptionDotFiles))
	if !st.resolved {
		s.log.Debug("ListingFileServer: request path rejected", logger.LogFields{
			"path": req.URLPath,
			"root": s.root,
		})
	}

	for _, rule := range dispatchRules {
		if out, ok := rule.apply(s, st); ok {
			s.log.Debug("ListingFileServer: dispatched", logger.LogFields{
				"path":    req.URLPath,
				"rule":    rule.name,
				"outcome": out.Kind.String(),
			})
			return out
		}
	}
	// The last rule always applies.
	return Outcome{Kind: OutcomeForward}
}

func (s *ListingFileServer) renderListing(st *dispatchState) Outcome {
	entries, err := ListDirectory(s.fs, st.target.Path)
	if err != nil {
		s.log.Error("ListingFileServer: failed to list directory", logger.LogFields{
			"path":  st.target.Path,
			"error": err.Error(),
		})
		return Outcome{Kind: OutcomeError, Err: err}
	}

	label := directoryLabel(st.req.URLPath)
	body, err := s.renderer.Render(label, EntryNames(entries))
	if err != nil {
		s.log.Error("ListingFileServer: failed to render listing", logger.LogFields{
			"path":  st.target.Path,
			"error": err.Error(),
		})
		return Outcome{Kind: OutcomeError, Err: err}
	}
	return Outcome{Kind: OutcomeRenderListing, Label: label, Body: body}
}

func (s *ListingFileServer) openableRegularFile(name string) bool {
	f, err := s.fs.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	return err == nil && fi.Mode().IsRegular()
}

// directoryLabel always starts and ends with '/'.
func directoryLabel(urlPath string) string {
	p := path.Clean("/" + urlPath)
	if p == "/" {
		return p
	}
	return p + "/"
}

// redirectLocation appends a trailing slash to urlPath. Cleaning first
// collapses repeated slashes so the result cannot become a scheme-relative URL.
func redirectLocation(urlPath, rawQuery string) string {
	p := path.Clean("/" + urlPath)
	if p != "/" {
		p += "/"
	}
	u := url.URL{Path: p, RawQuery: rawQuery}
	return u.String()
}
