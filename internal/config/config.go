// Package config loads the bridge's own ambient settings — logging,
// heartbeat timing, debounce window, and directory overrides — from a
// YAML file, and watches it for edits so a running process can pick up
// changes without a restart.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Settings are the bridge's own tunables. Every field has a zero-value
// default applied by Defaults, so a missing or partial settings.yaml is
// never an error.
type Settings struct {
	LogLevel    string `yaml:"log_level,omitempty"`
	LogFile     string `yaml:"log_file,omitempty"`
	IDEName     string `yaml:"ide_name,omitempty"`
	LockfileDir string `yaml:"lockfile_dir,omitempty"`

	PingIntervalMS int `yaml:"ping_interval_ms,omitempty"`
	PongTimeoutMS  int `yaml:"pong_timeout_ms,omitempty"`
	DebounceMS     int `yaml:"debounce_ms,omitempty"`
}

// Defaults returns the settings a bare process should run with.
func Defaults() Settings {
	return Settings{
		LogLevel:       "info",
		IDEName:        "amp-extras",
		PingIntervalMS: 30_000,
		PongTimeoutMS:  60_000,
		DebounceMS:     10,
	}
}

// PingInterval and PongTimeout render the millisecond fields as
// durations for callers that need a time.Duration directly.
func (s Settings) PingInterval() time.Duration { return time.Duration(s.PingIntervalMS) * time.Millisecond }
func (s Settings) PongTimeout() time.Duration  { return time.Duration(s.PongTimeoutMS) * time.Millisecond }
func (s Settings) DebounceWindow() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// UserDir returns $HOME/.amp-extras, creating it if absent.
func UserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".amp-extras")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads settings.yaml from dir, merging onto Defaults(). A missing
// file yields the defaults unchanged.
func Load(dir string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes s to dir/settings.yaml, creating dir if necessary.
func Save(dir string, s Settings) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "settings.yaml"), data, 0o644)
}

// Watch reloads dir/settings.yaml on every write/create/rename event and
// publishes the new value on the returned channel. The channel is closed
// and the watcher released when stop is closed. Reload errors are
// swallowed (the last-known-good Settings simply isn't replaced) since a
// transient partial write from an external editor should not crash the
// bridge.
func Watch(dir string, stop <-chan struct{}) (<-chan Settings, error) {
	path := filepath.Join(dir, "settings.yaml")
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watching dir rather than path directly survives atomic
	// replace-the-file saves (rename clobbers the inode fsnotify was
	// watching).
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan Settings, 1)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
					continue
				}
				time.Sleep(50 * time.Millisecond) // let a non-atomic writer finish
				s, err := Load(dir)
				if err != nil {
					continue
				}
				select {
				case out <- s:
				default:
				}
			case <-watcher.Errors:
				continue
			case <-stop:
				return
			}
		}
	}()
	return out, nil
}
