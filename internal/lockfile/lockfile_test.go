package lockfile

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestGenerateTokenLengthAndCharset(t *testing.T) {
	tok, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(tok) != 32 {
		t.Fatalf("got length %d, want 32", len(tok))
	}
	for _, r := range tok {
		if !strings.ContainsRune(tokenCharset, r) {
			t.Fatalf("token contains out-of-charset rune %q", r)
		}
	}
}

func TestGenerateTokenRandomness(t *testing.T) {
	a, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if a == b {
		t.Fatal("two generated tokens were identical; suspiciously non-random")
	}
}

func TestDirIsWellKnown(t *testing.T) {
	home, _ := os.UserHomeDir()
	want := home + "/.local/share/amp/ide"
	if got := Dir(); got != want {
		t.Fatalf("Dir() = %q, want %q", got, want)
	}
}

func TestWriteAndRemoveLockfile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	port := 54321
	path, err := Write(port, "tok12345", []string{"/work"}, "nvim 0.10.1")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"port", "authToken", "pid", "workspaceFolders", "ideName"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("lockfile json missing camelCase field %q", key)
		}
	}

	if err := Remove(port); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected lockfile to be removed")
	}
}

func TestRemoveNonexistentLockfileIsNotError(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := Remove(1); err != nil {
		t.Fatalf("Remove on missing lockfile returned error: %v", err)
	}
}
