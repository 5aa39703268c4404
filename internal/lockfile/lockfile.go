// Package lockfile publishes and removes the JSON discovery file an agent
// reads to find a running bridge: its port, bearer token, and workspace
// metadata.
package lockfile

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/wrath-codes/amp-extras/internal/amperr"
)

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Lockfile is the on-disk, camelCase JSON document published under Dir().
type Lockfile struct {
	Port             int      `json:"port"`
	AuthToken        string   `json:"authToken"`
	PID              int      `json:"pid"`
	WorkspaceFolders []string `json:"workspaceFolders"`
	IDEName          string   `json:"ideName"`
}

// GenerateToken returns n cryptographically random characters from
// [A-Za-z0-9].
func GenerateToken(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(tokenCharset)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = tokenCharset[idx.Int64()]
	}
	return string(buf), nil
}

// Dir resolves to the well-known lockfile directory. This is intentionally
// the same path on every platform: the agent looks exactly there, so no
// XDG-style per-platform fallback is permitted.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".local", "share", "amp", "ide")
}

func pathFor(port int) string {
	return filepath.Join(Dir(), fmt.Sprintf("%d.json", port))
}

// Write creates Dir() if needed and publishes the lockfile for port,
// returning its absolute path.
func Write(port int, token string, workspaceFolders []string, ideName string) (string, error) {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", amperr.Wrap(amperr.KindConfigError, fmt.Errorf("create lockfile dir: %w", err))
	}

	lf := Lockfile{
		Port:             port,
		AuthToken:        token,
		PID:              os.Getpid(),
		WorkspaceFolders: workspaceFolders,
		IDEName:          ideName,
	}
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return "", amperr.Wrap(amperr.KindConfigError, fmt.Errorf("marshal lockfile: %w", err))
	}

	path := pathFor(port)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", amperr.Wrap(amperr.KindConfigError, fmt.Errorf("write lockfile: %w", err))
	}
	return path, nil
}

// Remove deletes the lockfile for port. A missing file is not an error.
func Remove(port int) error {
	err := os.Remove(pathFor(port))
	if err != nil && !os.IsNotExist(err) {
		return amperr.Wrap(amperr.KindConfigError, fmt.Errorf("remove lockfile: %w", err))
	}
	return nil
}
