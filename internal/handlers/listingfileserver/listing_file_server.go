// Package listingfileserver serves files below a root directory and renders a
// listing for directories that have no index file.
package listingfileserver

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"example.com/listingfs/internal/config"
	"example.com/listingfs/internal/logger"
	"example.com/listingfs/internal/server"
)

const (
	// HandlerType is the handler_type name used in route configuration.
	HandlerType = "ListingFileServer"
	// DefaultRank is low priority so that more specific routes win.
	DefaultRank = 10
	// IndexFileName is looked up inside directories when OptionIndex is set.
	IndexFileName = "index.html"
)

// ListingFileServer holds the immutable per-route configuration. It is safe
// for concurrent use.
type ListingFileServer struct {
	root     string
	opts     Options
	rank     int
	renderer Renderer
	fs       afero.Fs
	mime     *MimeTypeResolver
	log      *logger.Logger
}

// Option customises a ListingFileServer at construction time.
type Option func(*ListingFileServer)

// WithRank overrides DefaultRank.
func WithRank(rank int) Option {
	return func(s *ListingFileServer) { s.rank = rank }
}

// WithFs swaps the filesystem, e.g. for afero.NewMemMapFs in tests.
func WithFs(fsys afero.Fs) Option {
	return func(s *ListingFileServer) { s.fs = fsys }
}

// WithMimeTypes sets extension -> Content-Type overrides for served files.
func WithMimeTypes(types map[string]string) Option {
	return func(s *ListingFileServer) { s.mime = NewMimeTypeResolver(types) }
}

// New validates root and returns a ListingFileServer. A root that does not
// exist or is not a directory yields a *ConfigurationError.
// A nil renderer falls back to NewHTMLRenderer("").
func New(root string, opts Options, renderer Renderer, lg *logger.Logger, options ...Option) (*ListingFileServer, error) {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	if renderer == nil {
		renderer = NewHTMLRenderer("")
	}
	s := &ListingFileServer{
		opts:     opts,
		rank:     DefaultRank,
		renderer: renderer,
		fs:       afero.NewOsFs(),
		mime:     NewMimeTypeResolver(nil),
		log:      lg,
	}
	for _, o := range options {
		o(s)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &ConfigurationError{Root: root, Err: err}
	}
	fi, err := s.fs.Stat(abs)
	if err != nil {
		lg.Error("ListingFileServer path does not exist", logger.LogFields{"root": abs, "error": err.Error()})
		return nil, &ConfigurationError{Root: abs, Err: err}
	}
	if !fi.IsDir() {
		lg.Error("ListingFileServer path is not a directory", logger.LogFields{"root": abs})
		return nil, &ConfigurationError{Root: abs, Err: ErrNotDirectory}
	}
	s.root = abs

	lg.Info("ListingFileServer configured", logger.LogFields{
		"root":    abs,
		"options": opts.String(),
		"rank":    s.rank,
	})
	return s, nil
}

// MustNew is like New but panics on error.
func MustNew(root string, opts Options, renderer Renderer, lg *logger.Logger, options ...Option) *ListingFileServer {
	s, err := New(root, opts, renderer, lg, options...)
	if err != nil {
		panic(err)
	}
	return s
}

// Root returns the absolute root directory.
func (s *ListingFileServer) Root() string { return s.root }

// Options returns the enabled options.
func (s *ListingFileServer) Options() Options { return s.opts }

// Rank implements server.Ranker.
func (s *ListingFileServer) Rank() int { return s.rank }

// Factory returns a server.HandlerFactory for route configuration. Relative
// roots are resolved against the directory of mainConfigFilePath.
func Factory(mainConfigFilePath string) server.HandlerFactory {
	return func(raw json.RawMessage, lg *logger.Logger) (server.Handler, error) {
		s, err := NewFromConfig(raw, lg, mainConfigFilePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NewFromConfig builds a ListingFileServer from a route's handler_config.
func NewFromConfig(raw json.RawMessage, lg *logger.Logger, mainConfigFilePath string) (*ListingFileServer, error) {
	cfg, err := config.ParseAndValidateListingFileServerConfig(raw, mainConfigFilePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", HandlerType, err)
	}
	opts, err := ParseOptions(cfg.OptionNames())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", HandlerType, err)
	}

	options := []Option{WithMimeTypes(cfg.ResolvedMimeTypes)}
	if cfg.Rank != nil {
		options = append(options, WithRank(*cfg.Rank))
	}
	return New(cfg.Root, opts, NewHTMLRenderer(cfg.Title), lg, options...)
}
