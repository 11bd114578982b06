package listingfileserver

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// TargetKind is the filesystem kind of a resolved path at probe time.
type TargetKind int

const (
	KindAbsent TargetKind = iota
	KindDirectory
	KindFile
)

func (k TargetKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "absent"
	}
}

// ResolvedTarget is root joined with the validated request path. It is built
// per request and never cached.
type ResolvedTarget struct {
	// Path is the absolute filesystem path.
	Path string
	// Rel is the validated path relative to root, using the OS separator. Empty for root itself.
	Rel  string
	Kind TargetKind
}

// Resolve joins root with segments and probes the result. It returns false when
// any segment is unsafe (parent references, separators, absolute or volume
// markers, dotfiles unless allowed) or the joined path would leave root.
//
// segments must already be percent-decoded. Empty and "." segments are ignored.
func Resolve(fsys afero.Fs, root string, segments []string, allowDotfiles bool) (ResolvedTarget, bool) {
	rel, ok := segmentsToRelPath(segments, allowDotfiles)
	if !ok {
		return ResolvedTarget{}, false
	}

	full := filepath.Join(root, rel)
	if !within(root, full) {
		return ResolvedTarget{}, false
	}

	target := ResolvedTarget{Path: full, Rel: rel, Kind: KindAbsent}
	fi, err := fsys.Stat(full)
	switch {
	case err != nil:
	case fi.IsDir():
		target.Kind = KindDirectory
	case fi.Mode().IsRegular():
		target.Kind = KindFile
	}
	return target, true
}

func segmentsToRelPath(segments []string, allowDotfiles bool) (string, bool) {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch {
		case seg == "":
			continue
		case seg == "..":
			return "", false
		case strings.HasPrefix(seg, "."):
			if !allowDotfiles {
				return "", false
			}
			if seg == "." {
				continue
			}
		}
		if !safeSegment(seg) {
			return "", false
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...), true
}

// safeSegment rejects characters that could change the meaning of a path once
// the segment is handed to the operating system.
func safeSegment(seg string) bool {
	if strings.ContainsAny(seg, "/\\\x00") {
		return false
	}
	if strings.HasPrefix(seg, "*") {
		return false
	}
	if strings.HasSuffix(seg, ":") || strings.HasSuffix(seg, "<") || strings.HasSuffix(seg, ">") {
		return false
	}
	if filepath.VolumeName(seg) != "" || filepath.IsAbs(seg) {
		return false
	}
	if runtime.GOOS == "windows" && strings.Contains(seg, ":") {
		return false
	}
	return true
}

func within(root, full string) bool {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
