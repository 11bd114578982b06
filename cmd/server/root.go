package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"example.com/listingfs/internal/app"
	"example.com/listingfs/internal/config"
	"example.com/listingfs/internal/handlers/listingfileserver"
)

const (
	configFlag        = "config"
	addrFlag          = "addr"
	rootFlag          = "root"
	indexFlag         = "index"
	dotFilesFlag      = "dotfiles"
	normalizeDirsFlag = "normalize-dirs"
	rankFlag          = "rank"
	titleFlag         = "title"
	logLevelFlag      = "log-level"
	tlsCertFlag       = "tls-cert"
	tlsKeyFlag        = "tls-key"
)

type cliOptions struct {
	configFile    string
	addr          string
	root          string
	index         bool
	dotFiles      bool
	normalizeDirs bool
	rank          int
	title         string
	logLevel      string
	tlsCert       string
	tlsKey        string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:   "listingfs",
		Short: "Serve a directory tree over HTTP with generated directory listings",
		Long: `listingfs serves files below a root directory. Directories without an
index file are rendered as a browsable listing, directories first.

Either point it at a configuration file:

$ listingfs --config /etc/listingfs.toml

or serve a single directory on "/":

$ listingfs --root ./public --index --normalize-dirs`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, configFlag, "c", "", "Path to the configuration file (JSON or TOML)")
	f.StringVar(&opts.addr, addrFlag, ":8080", "Listen address when no configuration file is given")
	f.StringVarP(&opts.root, rootFlag, "r", "", "Directory to serve on \"/\" when no configuration file is given")
	f.BoolVar(&opts.index, indexFlag, false, "Serve index.html from directories before rendering a listing")
	f.BoolVar(&opts.dotFiles, dotFilesFlag, false, "Allow path segments that start with '.'")
	f.BoolVar(&opts.normalizeDirs, normalizeDirsFlag, false, "Redirect directory requests that lack a trailing slash")
	f.IntVar(&opts.rank, rankFlag, listingfileserver.DefaultRank, "Route rank; lower ranks are tried first")
	f.StringVar(&opts.title, titleFlag, "", "Heading prefix for generated listings")
	f.StringVar(&opts.logLevel, logLevelFlag, string(config.LogLevelInfo), "DEBUG, INFO, WARNING or ERROR")
	f.StringVar(&opts.tlsCert, tlsCertFlag, "", "PEM certificate; enables HTTPS together with --tls-key")
	f.StringVar(&opts.tlsKey, tlsKeyFlag, "", "PEM private key")
	cmd.MarkFlagsMutuallyExclusive(configFlag, rootFlag)
	cmd.MarkFlagsRequiredTogether(tlsCertFlag, tlsKeyFlag)
	return cmd
}

// loadConfig returns the validated configuration and the absolute path of the
// file it came from ("" in quick mode).
func loadConfig(opts *cliOptions) (*config.Config, string, error) {
	if opts.configFile != "" {
		path, err := filepath.Abs(opts.configFile)
		if err != nil {
			return nil, "", fmt.Errorf("resolving config path %s: %w", opts.configFile, err)
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	if opts.root == "" {
		return nil, "", errors.New("either --config or --root is required")
	}

	root, err := filepath.Abs(opts.root)
	if err != nil {
		return nil, "", fmt.Errorf("resolving root %s: %w", opts.root, err)
	}
	var names []string
	if opts.dotFiles {
		names = append(names, "DotFiles")
	}
	if opts.index {
		names = append(names, "Index")
	}
	if opts.normalizeDirs {
		names = append(names, "NormalizeDirs")
	}
	handlerCfg, err := json.Marshal(config.ListingFileServerConfig{
		Root:    root,
		Options: names,
		Rank:    &opts.rank,
		Title:   opts.title,
	})
	if err != nil {
		return nil, "", err
	}

	addr := opts.addr
	cfg := &config.Config{
		Server: &config.ServerConfig{Address: &addr},
		Routing: &config.RoutingConfig{Routes: []config.Route{{
			PathPattern:   "/",
			MatchType:     config.MatchTypePrefix,
			HandlerType:   listingfileserver.HandlerType,
			HandlerConfig: handlerCfg,
		}}},
		Logging: &config.LoggingConfig{LogLevel: config.LogLevel(opts.logLevel)},
	}
	if opts.tlsCert != "" {
		cfg.Server.TLS = &config.TLSConfig{CertFile: opts.tlsCert, KeyFile: opts.tlsKey}
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg, ""); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func run(ctx context.Context, opts *cliOptions) error {
	cfg, cfgPath, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, cfgPath)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
