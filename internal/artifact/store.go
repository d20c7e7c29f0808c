// Package artifact implements the file-backed Artifact Store (spec §4.1):
// an append-only tree keyed by (job_id, artifact_name), storing inputs,
// shard chunks, and task outputs with temp-then-rename write atomicity.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/crowdcompute/crowdcompute/internal/coordinator/core"
)

// Ref describes a finalized artifact.
type Ref struct {
	JobID uuid.UUID
	Name  string
	Size  int64
	Hash  string // hex-encoded sha256
}

// Store is the Artifact Store's capability surface.
type Store interface {
	Put(jobID uuid.UUID, name string, r io.Reader) (Ref, error)
	Get(jobID uuid.UUID, name string) ([]byte, string, error)
	List(jobID uuid.UUID) ([]string, error)
	Drop(jobID uuid.UUID) error
	HasJob(jobID uuid.UUID) bool
	EnsureJob(jobID uuid.UUID) error
}

// fileStore lays artifacts out at <root>/<job_id>/<artifact_name>, staging
// writers into <root>/<job_id>/.tmp-<name>-<nonce> and renaming on success
// so readers never observe partial bytes (spec §9 "Artifact atomicity").
type fileStore struct {
	root string

	// mu serializes the bookkeeping (creation order, finalized-ness) that
	// the filesystem alone can't give us atomically across a rename.
	mu      sync.Mutex
	order   map[string][]string // jobID -> artifact names in creation order
	known   map[string]map[string]bool
	nonceN  uint64
}

func NewFileStore(root string) (Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	return &fileStore{
		root:  root,
		order: make(map[string][]string),
		known: make(map[string]map[string]bool),
	}, nil
}

func (s *fileStore) jobDir(jobID uuid.UUID) string {
	return filepath.Join(s.root, jobID.String())
}

func (s *fileStore) EnsureJob(jobID uuid.UUID) error {
	if err := os.MkdirAll(s.jobDir(jobID), 0o755); err != nil {
		return core.WrapError(core.KindJobUnknown, "cannot create job directory", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[jobID.String()] == nil {
		s.known[jobID.String()] = make(map[string]bool)
	}
	return nil
}

func (s *fileStore) HasJob(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[jobID.String()]
	return ok
}

func (s *fileStore) Put(jobID uuid.UUID, name string, r io.Reader) (Ref, error) {
	jobKey := jobID.String()

	s.mu.Lock()
	if s.known[jobKey] == nil {
		s.mu.Unlock()
		return Ref{}, core.NewError(core.KindJobUnknown, "job "+jobKey+" does not exist")
	}
	if s.known[jobKey][name] {
		s.mu.Unlock()
		return Ref{}, core.NewError(core.KindConflict, "artifact "+name+" already finalized")
	}
	s.nonceN++
	nonce := s.nonceN
	s.mu.Unlock()

	dir := s.jobDir(jobID)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".tmp-%s-%d", name, nonce))
	finalPath := filepath.Join(dir, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Ref{}, fmt.Errorf("artifact store: stage %s: %w", name, err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("artifact store: write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("artifact store: sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("artifact store: close %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return Ref{}, fmt.Errorf("artifact store: finalize %s: %w", name, err)
	}

	ref := Ref{
		JobID: jobID,
		Name:  name,
		Size:  size,
		Hash:  hex.EncodeToString(hasher.Sum(nil)),
	}

	s.mu.Lock()
	if s.known[jobKey] == nil {
		s.known[jobKey] = make(map[string]bool)
	}
	if !s.known[jobKey][name] {
		s.known[jobKey][name] = true
		s.order[jobKey] = append(s.order[jobKey], name)
	}
	s.mu.Unlock()

	return ref, nil
}

func (s *fileStore) Get(jobID uuid.UUID, name string) ([]byte, string, error) {
	s.mu.Lock()
	finalized := s.known[jobID.String()] != nil && s.known[jobID.String()][name]
	s.mu.Unlock()
	if !finalized {
		return nil, "", core.NewError(core.KindNotFound, "artifact "+name+" not found")
	}

	path := filepath.Join(s.jobDir(jobID), name)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", core.WrapError(core.KindNotFound, "artifact "+name+" not found", err)
	}
	defer f.Close()

	hasher := sha256.New()
	data, err := io.ReadAll(io.TeeReader(f, hasher))
	if err != nil {
		return nil, "", fmt.Errorf("artifact store: read %s: %w", name, err)
	}
	return data, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *fileStore) List(jobID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.known[jobID.String()]; !ok {
		return nil, core.NewError(core.KindJobUnknown, "job "+jobID.String()+" does not exist")
	}
	return append([]string(nil), s.order[jobID.String()]...), nil
}

func (s *fileStore) Drop(jobID uuid.UUID) error {
	jobKey := jobID.String()
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		return fmt.Errorf("artifact store: drop %s: %w", jobKey, err)
	}
	s.mu.Lock()
	delete(s.known, jobKey)
	delete(s.order, jobKey)
	s.mu.Unlock()
	return nil
}
