package listingfileserver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const memRoot = "/srv/www"

// newMemTree builds an in-memory tree under memRoot. Paths ending in '/' are
// directories, everything else is a file with the given content.
func newMemTree(t *testing.T, entries map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(memRoot, 0o755))
	for p, content := range entries {
		full := filepath.Join(memRoot, filepath.FromSlash(p))
		if strings.HasSuffix(p, "/") {
			require.NoError(t, fsys.MkdirAll(full, 0o755))
			continue
		}
		require.NoError(t, fsys.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(fsys, full, []byte(content), 0o644))
	}
	return fsys
}

// reversingFs enumerates directories in reverse name order so that tests do
// not depend on the underlying filesystem's ordering.
type reversingFs struct {
	afero.Fs
}

func (r reversingFs) Open(name string) (afero.File, error) {
	f, err := r.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return reversingFile{f}, nil
}

type reversingFile struct {
	afero.File
}

func (f reversingFile) Readdirnames(n int) ([]string, error) {
	names, err := f.File.Readdirnames(n)
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, err
}

// flakyFs fails Stat for the listed paths and Open for the listed directories.
type flakyFs struct {
	afero.Fs
	failStat map[string]bool
	failOpen map[string]bool
}

func (f flakyFs) Stat(name string) (os.FileInfo, error) {
	if f.failStat[name] {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return f.Fs.Stat(name)
}

func (f flakyFs) Open(name string) (afero.File, error) {
	if f.failOpen[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name)
}

// recordingRenderer captures the last call so tests can inspect label and entries.
type recordingRenderer struct {
	label   string
	entries []string
}

func (r *recordingRenderer) Render(label string, entries []string) ([]byte, error) {
	r.label = label
	r.entries = append([]string(nil), entries...)
	return []byte(label + "|" + strings.Join(entries, ",")), nil
}
