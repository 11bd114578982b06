package listingfileserver

import (
	"fmt"
	"strings"
)

// Options is a set of independent serving flags.
type Options uint8

const (
	// OptionNone enables nothing: no dotfiles, no index lookup, no redirects.
	OptionNone Options = 0
	// OptionDotFiles permits path segments beginning with '.'.
	OptionDotFiles Options = 1 << iota
	// OptionIndex serves index.html from a directory before falling back to a listing.
	OptionIndex
	// OptionNormalizeDirs redirects directory requests without a trailing slash.
	OptionNormalizeDirs
)

var optionNames = []struct {
	opt  Options
	name string
}{
	{OptionDotFiles, "DotFiles"},
	{OptionIndex, "Index"},
	{OptionNormalizeDirs, "NormalizeDirs"},
}

// Contains reports whether every flag in other is set in o.
func (o Options) Contains(other Options) bool {
	return o&other == other
}

func (o Options) String() string {
	if o == OptionNone {
		return "None"
	}
	var parts []string
	for _, n := range optionNames {
		if o.Contains(n.opt) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseOptions converts option names (case-insensitive) into an Options set.
func ParseOptions(names []string) (Options, error) {
	opts := OptionNone
outer:
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if strings.EqualFold(name, "None") {
			continue
		}
		for _, n := range optionNames {
			if strings.EqualFold(name, n.name) {
				opts |= n.opt
				continue outer
			}
		}
		return OptionNone, fmt.Errorf("unknown option %q (want DotFiles, Index or NormalizeDirs)", raw)
	}
	return opts, nil
}
