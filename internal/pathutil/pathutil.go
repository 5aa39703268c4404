// Package pathutil converts between filesystem paths and the
// percent-encoded file:// URIs the wire protocol carries, and resolves
// paths relative to the process's working directory the way an editor's
// `fnamemodify(path, ':.')` would.
package pathutil

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ToURI encodes an absolute or relative filesystem path as a file:// URI,
// percent-encoding reserved characters (spaces, '#', '?', unicode).
func ToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// FromURI decodes a file:// URI back into a filesystem path. Round-trips
// with ToURI.
func FromURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", raw, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file uri: %q", raw)
	}
	return filepath.FromSlash(u.Path), nil
}

// Normalize resolves path to an absolute, cleaned path. Relative paths are
// resolved against the current working directory.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	return filepath.Clean(filepath.Join(wd, path)), nil
}

// ToRelative returns path relative to the working directory when it is
// contained within it, or the normalized absolute path otherwise.
func ToRelative(path string) string {
	abs, err := Normalize(path)
	if err != nil {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(wd, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}
