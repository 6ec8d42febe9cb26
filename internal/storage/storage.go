// Package storage provides the persistent asset cache on local disk and the
// S3-backed asset source. Both implement ports defined in the asset package.
package storage

import (
	"path/filepath"
	"strings"
)

// keyPath maps an asset key to a path below root, refusing keys that would
// escape it.
func keyPath(root, key string) (string, bool) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", false
	}
	p := filepath.Join(root, clean)
	if !strings.HasPrefix(p, filepath.Clean(root)+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}
