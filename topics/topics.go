// Package topics provides the topic hierarchy type used to associate
// incoming files with their registered data mappings. A topic hierarchy has
// two equivalent representations: a directory path ("foo/bar/baz") as it
// appears in object-storage keys, and a dotted path ("foo.bar.baz") as it
// appears in data-mapping keys and broker subjects.
package topics

import (
	"path"
	"strings"

	"github.com/wmo-im/wis2node/errors"
)

// Hierarchy is a topic hierarchy in both of its representations.
type Hierarchy struct {
	DirPath string
	DotPath string
}

// New builds a Hierarchy from either representation.
func New(p string) (Hierarchy, error) {
	p = strings.Trim(p, "/.")
	if p == "" {
		return Hierarchy{}, errors.WrapInvalid(errors.ErrInvalidKey,
			"Hierarchy", "New", "empty topic hierarchy")
	}

	if strings.Contains(p, "/") {
		return Hierarchy{DirPath: p, DotPath: strings.ReplaceAll(p, "/", ".")}, nil
	}
	return Hierarchy{DirPath: strings.ReplaceAll(p, ".", "/"), DotPath: p}, nil
}

// FromObjectKey derives the topic hierarchy for a stored object from its
// key. The leading element of the key is the channel directory (for example
// the incoming-data prefix) and the trailing element is the file name; the
// directories in between form the hierarchy.
func FromObjectKey(key string) (Hierarchy, error) {
	key = strings.Trim(key, "/")
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return Hierarchy{}, errors.WrapInvalid(errors.ErrInvalidKey,
			"Hierarchy", "FromObjectKey", "object key has no directory component")
	}

	parts := strings.Split(dir, "/")
	if len(parts) < 2 {
		return Hierarchy{}, errors.WrapInvalid(errors.ErrInvalidKey,
			"Hierarchy", "FromObjectKey", "object key below channel directory")
	}

	// Drop the channel directory
	return New(strings.Join(parts[1:], "/"))
}

// String returns the dotted representation.
func (h Hierarchy) String() string {
	return h.DotPath
}
