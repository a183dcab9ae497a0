package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const indexFile = "index.htm"

// DiscoverAssets builds static routes for the regular files directly under
// dir: "/<name>/" for each file and "/" for index.htm.
func DiscoverAssets(dir string, development bool) (map[string]Handler, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frontend directory: %w", err)
	}

	routes := make(map[string]Handler, len(entries)+1)
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		h, err := NewStaticFileHandler(filepath.Join(dir, e.Name()), development)
		if err != nil {
			return nil, err
		}
		routes["/"+e.Name()+"/"] = h
		if e.Name() == indexFile {
			routes["/"] = h
		}
	}
	return routes, nil
}
