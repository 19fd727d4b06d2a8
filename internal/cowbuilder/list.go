package cowbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/open-edge-platform/cowbuilder-aide/internal/cowenv"
	"github.com/samber/lo"
)

// Entry describes one base cow found under the cache root.
type Entry struct {
	Name            string    `json:"name"`
	BasePath        string    `json:"basePath"`
	BindMountDir    string    `json:"bindMountDir"`
	HasBindMountDir bool      `json:"hasBindMountDir"`
	ModTime         time.Time `json:"modTime"`
}

// List returns the base cows under the cache root, sorted by name. A missing
// cache root yields an empty list.
func (d *Dispatcher) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.layout.CacheRoot)
	if err != nil {
		if os.IsNotExist(err) {
			d.log.Debugf("Cache root %s does not exist", d.layout.CacheRoot)
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("reading cache root %s: %w", d.layout.CacheRoot, err)
	}

	cows := lo.Filter(dirEntries, func(e os.DirEntry, _ int) bool {
		return e.IsDir() && strings.HasSuffix(e.Name(), ".cow") && len(e.Name()) > len(".cow")
	})

	entries := lo.Map(cows, func(e os.DirEntry, _ int) Entry {
		name := strings.TrimSuffix(e.Name(), ".cow")
		entry := Entry{
			Name:         name,
			BasePath:     filepath.Join(d.layout.CacheRoot, e.Name()),
			BindMountDir: cowenv.BindMountDir(d.layout.Home, d.layout.Namespace, name),
		}
		if info, err := e.Info(); err == nil {
			entry.ModTime = info.ModTime()
		}
		if info, err := os.Stat(entry.BindMountDir); err == nil && info.IsDir() {
			entry.HasBindMountDir = true
		}
		return entry
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
