// Package store persists a personal to-do list as a single JSON file.
//
// Every mutation rewrites the whole file. There is no locking: two processes
// mutating the same file concurrently race and the last writer wins.
package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

// DefaultPath is the storage file used when no location is configured.
const DefaultPath = "tasks.json"

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	timeNow     = time.Now
)

type Task struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   Timestamp `json:"created_at"`
}

// LoadResult is the outcome of reading the storage file.
// Recovered is set when the file existed but could not be read or decoded;
// Tasks is empty in that case and Cause holds the underlying error.
type LoadResult struct {
	Tasks     []Task
	Recovered bool
	Cause     error
}

// Load reads the task collection at path. It never fails: a missing file is
// an empty collection, and an unreadable or malformed one is reported as
// Recovered with an empty collection.
func Load(path string) LoadResult {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LoadResult{Tasks: []Task{}}
		}
		return LoadResult{Tasks: []Task{}, Recovered: true, Cause: err}
	}
	tasks, err := decodeTasks(b)
	if err != nil {
		return LoadResult{Tasks: []Task{}, Recovered: true, Cause: err}
	}
	return LoadResult{Tasks: tasks}
}

// Save overwrites path with the full serialized collection.
func Save(path string, tasks []Task) error {
	data, err := encodeTasks(tasks)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

type Store struct {
	path  string
	tasks []Task
	log   log.FieldLogger
}

type Option func(*Store)

func WithLogger(l log.FieldLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open loads the collection at path into a Store. An empty path means
// DefaultPath. Recovery from a corrupt file is logged at warn level and
// returned so the caller can tell the user.
func Open(path string, opts ...Option) (*Store, LoadResult) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	s := &Store{path: path, log: log.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	res := Load(path)
	if res.Recovered {
		s.log.WithFields(log.Fields{"path": path, "cause": res.Cause}).
			Warn("task file unreadable; starting with an empty list")
	}
	s.tasks = res.Tasks
	s.log.WithFields(log.Fields{"path": path, "tasks": len(s.tasks)}).Debug("loaded tasks")
	return s, res
}

func (s *Store) Path() string { return s.path }

// Save writes the current collection back to the storage file.
func (s *Store) Save() error {
	return Save(s.path, s.tasks)
}

// Add appends a new open task and persists the collection.
func (s *Store) Add(title, description string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	t := Task{
		ID:          nextID(s.tasks),
		Title:       title,
		Description: description,
		CreatedAt:   NewTimestamp(timeNow()),
	}
	prev := s.tasks
	s.tasks = append(s.tasks[:len(s.tasks):len(s.tasks)], t)
	if err := s.Save(); err != nil {
		s.tasks = prev
		return Task{}, err
	}
	s.log.WithFields(log.Fields{"id": t.ID, "title": t.Title}).Debug("added task")
	return t, nil
}

// List returns the stored tasks in order. Completed tasks are left out
// unless includeCompleted is set.
func (s *Store) List(includeCompleted bool) []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if includeCompleted || !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// Complete marks the first task with the given id as completed and persists.
// Completing an already completed task rewrites the same state.
func (s *Store) Complete(id int) (Task, error) {
	i := s.indexOf(id)
	if i < 0 {
		return Task{}, fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	old := s.tasks[i]
	s.tasks[i].Completed = true
	if err := s.Save(); err != nil {
		s.tasks[i] = old
		return Task{}, err
	}
	s.log.WithField("id", id).Debug("completed task")
	return s.tasks[i], nil
}

// Delete removes every task with the given id and persists. It returns the
// first removed task.
func (s *Store) Delete(id int) (Task, error) {
	kept := make([]Task, 0, len(s.tasks))
	var removed *Task
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			if removed == nil {
				removed = &s.tasks[i]
			}
			continue
		}
		kept = append(kept, s.tasks[i])
	}
	if removed == nil {
		return Task{}, fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	prev := s.tasks
	s.tasks = kept
	if err := s.Save(); err != nil {
		s.tasks = prev
		return Task{}, err
	}
	s.log.WithField("id", id).Debug("deleted task")
	return *removed, nil
}

func (s *Store) indexOf(id int) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// nextID is one past the largest id in use, so an id freed by a delete in the
// middle of the list is never handed out while a higher id still exists.
func nextID(tasks []Task) int {
	highest := 0
	for _, t := range tasks {
		if t.ID > highest {
			highest = t.ID
		}
	}
	return highest + 1
}

func newULID() string {
	t := ulid.Timestamp(timeNow())
	entropy := ulid.Monotonic(randReader{}, 0)
	id, err := ulid.New(t, entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToLower(id.String())
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, creating the parent directory if needed.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), newULID()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
