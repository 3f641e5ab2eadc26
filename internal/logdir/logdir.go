// Package logdir manages the output directory shared by mission manager
// sessions:
//
//	<root>/
//	  .meta/registry/<session>.session   one marker per session id
//	  models/                            saved agent models
//	  <task>/<session>/log_<vehicle>/    transition logs
package logdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	MetaDir     = ".meta"
	RegistryDir = "registry"
	ModelsDir   = "models"

	sessionExt = ".session"
	logPrefix  = "log_"
)

// ErrNotLogDir is returned when a directory lacks the .meta marker.
var ErrNotLogDir = errors.New("logdir: not a log directory")

// Directory is an opened log root.
type Directory struct {
	root     string
	Registry *Registry
}

// Open opens root, creating the layout when it does not exist unless
// mustExist is set. An existing directory without .meta is rejected.
func Open(root string, mustExist bool) (*Directory, error) {
	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("log directory %s: is a file", root)
	case errors.Is(err, os.ErrNotExist):
		if mustExist {
			return nil, fmt.Errorf("log directory %s: %w", root, os.ErrNotExist)
		}
		for _, dir := range []string{
			filepath.Join(root, MetaDir, RegistryDir),
			filepath.Join(root, ModelsDir),
		} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("init log directory: %w", err)
			}
		}
	case err != nil:
		return nil, fmt.Errorf("log directory %s: %w", root, err)
	}

	if info, err := os.Stat(filepath.Join(root, MetaDir)); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotLogDir)
	}
	reg, err := openRegistry(filepath.Join(root, MetaDir, RegistryDir))
	if err != nil {
		return nil, err
	}
	return &Directory{root: root, Registry: reg}, nil
}

// Root is the directory path.
func (d *Directory) Root() string { return d.root }

// ModelsDir is where agents store models.
func (d *Directory) ModelsDir() string { return filepath.Join(d.root, ModelsDir) }

// TaskDir returns the directory for a task, creating it if needed.
func (d *Directory) TaskDir(task string) (string, error) {
	if task == "" || strings.ContainsAny(task, `/\`) || strings.HasPrefix(task, ".") {
		return "", fmt.Errorf("invalid task name %q", task)
	}
	path := filepath.Join(d.root, task)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}
	return path, nil
}

// VehicleLogDir is the transition log path for one vehicle in a session.
// It is not created; translog.Create does that.
func (d *Directory) VehicleLogDir(task, session, vehicle string) string {
	return filepath.Join(d.root, task, session, logPrefix+vehicle)
}

// SessionLogs returns every vehicle log directory recorded for session,
// across all tasks, keyed by vehicle name.
func (d *Directory) SessionLogs(session string) (map[string]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.root, "*", session, logPrefix+"*"))
	if err != nil {
		return nil, err
	}
	logs := make(map[string]string, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err != nil || !info.IsDir() {
			continue
		}
		logs[strings.TrimPrefix(filepath.Base(m), logPrefix)] = m
	}
	return logs, nil
}

// NewSessionID builds a session id from a timestamp and optional suffix.
func NewSessionID(now time.Time, suffix string) string {
	id := fmt.Sprintf("%d", now.Unix())
	if suffix != "" {
		id += "-" + suffix
	}
	return id
}

// Registry records session ids so they stay unique within a log root.
type Registry struct {
	path string
}

func openRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return &Registry{path: path}, nil
}

// Register claims a unique id derived from name: name itself, then
// name-0, name-1 and so on. Claims are exclusive file creations, so two
// processes sharing a root cannot receive the same id.
func (r *Registry) Register(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid session name %q", name)
	}
	candidate := name
	for c := 0; ; c++ {
		f, err := os.OpenFile(filepath.Join(r.path, candidate+sessionExt), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return candidate, f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("register session %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d", name, c)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	info, err := os.Stat(filepath.Join(r.path, id+sessionExt))
	return err == nil && info.Mode().IsRegular()
}

// Sessions lists registered ids in sorted order. Non-marker entries are
// skipped.
func (r *Registry) Sessions() ([]string, error) {
	entries, err := os.ReadDir(r.path)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), sessionExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), sessionExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Count is the number of registered sessions.
func (r *Registry) Count() (int, error) {
	ids, err := r.Sessions()
	return len(ids), err
}
