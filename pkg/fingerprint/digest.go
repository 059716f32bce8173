package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io/fs"
	"slices"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Digest accumulates the inputs of a step into a sha256 fingerprint. Every
// field is length-prefixed so that adjacent values cannot run together.
type Digest struct {
	h   hash.Hash
	err error
}

// NewDigest returns an empty digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) field(data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	d.h.Write(n[:])
	d.h.Write(data)
}

// Field adds a labeled string.
func (d *Digest) Field(label, value string) *Digest {
	d.field([]byte(label))
	d.field([]byte(value))
	return d
}

// Value adds the YAML encoding of v. Map keys are encoded in sorted order.
func (d *Digest) Value(label string, v any) *Digest {
	data, err := yaml.Marshal(v)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("encoding %s: %w", label, err)
	}
	d.field([]byte(label))
	d.field(data)
	return d
}

// Env adds environment variables in sorted key order.
func (d *Digest) Env(env map[string]string) *Digest {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d.field([]byte("env"))
	d.field(binary.BigEndian.AppendUint32(nil, uint32(len(keys))))
	for _, k := range keys {
		d.field([]byte(k))
		d.field([]byte(env[k]))
	}
	return d
}

// Files adds the path and content of every regular file in fsys matching one
// of include and none of exclude. Matches are deduplicated and hashed in
// sorted order.
func (d *Digest) Files(fsys fs.FS, include, exclude []string) *Digest {
	files, err := MatchFiles(fsys, include, exclude)
	if err != nil {
		if d.err == nil {
			d.err = err
		}
		return d
	}

	d.field([]byte("files"))
	d.field(binary.BigEndian.AppendUint32(nil, uint32(len(files))))
	for _, name := range files {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			if d.err == nil {
				d.err = fmt.Errorf("reading input %s: %w", name, err)
			}
			return d
		}
		d.field([]byte(name))
		d.field(content)
	}
	return d
}

// Sum returns the hex digest, or the first error met while adding inputs.
func (d *Digest) Sum() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return hex.EncodeToString(d.h.Sum(nil)), nil
}

// MatchFiles returns the sorted regular files of fsys that match one of
// include and none of exclude.
func MatchFiles(fsys fs.FS, include, exclude []string) ([]string, error) {
	included, err := globFS(fsys, include)
	if err != nil {
		return nil, fmt.Errorf("include filter: %w", err)
	}
	excluded, err := globFS(fsys, exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude filter: %w", err)
	}

	var result []string
	for _, f := range included {
		info, err := fs.Stat(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if _, found := slices.BinarySearch(excluded, f); found {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

func globFS(fsys fs.FS, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}
