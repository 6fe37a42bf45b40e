package sessionlog

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/Iron-Ham/questline/internal/errors"
)

// Listing is the result of looking for sub-worker files. NotFound is set
// when the directory does not exist, which is normal for a session that
// never launched a sub-worker.
type Listing struct {
	Dir      string
	Files    []string // absolute paths, sorted by name
	NotFound bool
}

// ListSubagents lists the sub-worker files in dir. A missing directory is
// reported through Listing.NotFound, not as an error. A path that exists but
// is not a directory fails with ErrDirectoryNotFound.
func ListSubagents(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Listing{Dir: dir, NotFound: true}, nil
		}
		if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
			err = errors.Join(errors.ErrDirectoryNotFound, err)
		}
		return Listing{Dir: dir}, errors.Wrap(err, "read subagent directory")
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsSubagentFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return Listing{Dir: dir, Files: files}, nil
}
