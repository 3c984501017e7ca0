// Package fileutil discovers audio files and groups them into albums by
// parent directory.
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one discovered audio file with its album grouping key.
type Entry struct {
	Path     string
	AlbumKey string
}

// audioExtensions lists the container extensions worth analyzing. Formats
// without a tag mapping are still measured and reported.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".m4b":  true,
	".mp4":  true,
	".wav":  true,
}

// IsAudioPath reports whether the path has a recognized audio extension.
func IsAudioPath(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Discover expands the given paths into audio file entries. Directory
// arguments are walked recursively; file arguments are taken as-is even
// without a recognized extension, since the caller named them explicitly.
// Entries are deduplicated and sorted by path, with each entry's album
// key set to its absolute parent directory.
func Discover(paths []string) ([]Entry, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input paths")
	}

	seen := make(map[string]bool)
	var entries []Entry
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		if seen[abs] {
			return nil
		}
		seen[abs] = true
		entries = append(entries, Entry{Path: abs, AlbumKey: filepath.Dir(abs)})
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := add(path); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(path, func(sub string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && sub != path {
					return fs.SkipDir
				}
				return nil
			}
			if !IsAudioPath(sub) {
				return nil
			}
			return add(sub)
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Albums returns the distinct album keys in the entries, sorted.
func Albums(entries []Entry) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, entry := range entries {
		if !seen[entry.AlbumKey] {
			seen[entry.AlbumKey] = true
			keys = append(keys, entry.AlbumKey)
		}
	}
	sort.Strings(keys)
	return keys
}
