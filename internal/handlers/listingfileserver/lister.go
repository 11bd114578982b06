package listingfileserver

import (
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// DirectoryEntry is one immediate child of a listed directory.
type DirectoryEntry struct {
	Name  string
	IsDir bool
}

// ListDirectory enumerates dir and returns its entries, directories first and
// each group ordered by name (byte-wise, so "B" sorts before "a").
//
// Every entry is classified with its own Stat call. Entries that vanish or
// cannot be stat'ed are left out. Only a failure to enumerate dir itself is an
// error.
func ListDirectory(fsys afero.Fs, dir string) ([]DirectoryEntry, error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return nil, &DirectoryUnreadableError{Path: dir, Err: err}
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return nil, &DirectoryUnreadableError{Path: dir, Err: err}
	}

	entries := make([]DirectoryEntry, 0, len(names))
	for _, name := range names {
		fi, err := fsys.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		entries = append(entries, DirectoryEntry{Name: name, IsDir: fi.IsDir()})
	}
	SortEntries(entries)
	return entries, nil
}

// SortEntries orders entries by (not IsDir, Name).
func SortEntries(entries []DirectoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}

// EntryNames returns the display names handed to a Renderer. Directories get a trailing '/'.
func EntryNames(entries []DirectoryEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		if e.IsDir {
			names[i] = e.Name + "/"
		} else {
			names[i] = e.Name
		}
	}
	return names
}
