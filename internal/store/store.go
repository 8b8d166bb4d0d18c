package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

// Collection file names inside the dataset directory.
const (
	organizationsFile = "organizations.json"
	projectsFile      = "projects.json"
	lockFile          = "dataset.lock"
)

// Config captures the parameters for the dataset store.
type Config struct {
	// Dir is the dataset directory holding both collections.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DatasetStore implements crawler.RecordStore over two JSON collections.
//
// Every write is a read-modify-write of the whole collection under the
// dataset lock, finished by an atomic rename, so a revision is either fully
// persisted or not at all. Readers never take the lock; they always see the
// last completed revision.
type DatasetStore struct {
	dir      string
	orgPath  string
	projPath string
	lock     *fileLock
	mu       sync.Mutex
	hasher   crawler.Hasher
	clock    crawler.Clock
	logger   *zap.Logger
}

// New creates the dataset directory if needed and verifies it is writable.
func New(cfg Config, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger) (*DatasetStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("dataset directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dataset directory: %w", err)
	}
	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("dataset directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetStore{
		dir:      cfg.Dir,
		orgPath:  filepath.Join(cfg.Dir, organizationsFile),
		projPath: filepath.Join(cfg.Dir, projectsFile),
		lock:     newFileLock(filepath.Join(cfg.Dir, lockFile)),
		hasher:   hasher,
		clock:    clock,
		logger:   logger,
	}, nil
}

// UpsertOrganization inserts or merges one organization sighting and returns
// the stable record ID.
func (s *DatasetStore) UpsertOrganization(ctx context.Context, fact crawler.OrganizationFact) (crawler.UpsertResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return crawler.UpsertResult{}, err
	}
	defer release()

	orgs, err := s.loadOrganizations()
	if err != nil {
		return crawler.UpsertResult{}, err
	}

	res, err := s.upsertOrgLocked(&orgs, fact)
	if err != nil {
		return crawler.UpsertResult{}, err
	}
	if res.Created || res.Changed {
		if err := s.writeCollection(s.orgPath, orgs); err != nil {
			return crawler.UpsertResult{}, err
		}
	}
	return res, nil
}

// UpsertProject inserts or merges one project sighting. The owning
// organization is resolved or created inside the same locked revision, and
// the organization collection is written before the project collection, so an
// interrupted write can never leave a project orphaned.
func (s *DatasetStore) UpsertProject(ctx context.Context, fact crawler.ProjectFact) (crawler.UpsertResult, error) {
	if fact.OrganizationName == "" && fact.OrganizationWebsite == "" {
		return crawler.UpsertResult{}, fmt.Errorf("project fact %q has no organization", fact.Name)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return crawler.UpsertResult{}, err
	}
	defer release()

	orgs, err := s.loadOrganizations()
	if err != nil {
		return crawler.UpsertResult{}, err
	}
	projects, err := s.loadProjects()
	if err != nil {
		return crawler.UpsertResult{}, err
	}

	orgRes, err := s.upsertOrgLocked(&orgs, crawler.OrganizationFact{
		Name:    fact.OrganizationName,
		Website: fact.OrganizationWebsite,
	})
	if err != nil {
		return crawler.UpsertResult{}, err
	}

	key, err := projectIdentityKey(orgRes.ID, fact.Name)
	if err != nil {
		return crawler.UpsertResult{}, err
	}
	id, err := s.recordID("prj", key)
	if err != nil {
		return crawler.UpsertResult{}, err
	}

	res := crawler.UpsertResult{ID: id}
	now := s.clock.Now()
	idx := -1
	for i := range projects {
		if projects[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		projects = append(projects, ProjectRecord{
			ID:             id,
			OrganizationID: orgRes.ID,
			Name:           strings.TrimSpace(fact.Name),
			Summary:        strings.TrimSpace(fact.Summary),
			SourceURLs:     sourceURLSet(fact.SourceURL),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		res.Created = true
	} else if mergeProject(&projects[idx], fact) {
		projects[idx].UpdatedAt = now
		res.Changed = true
	}

	if orgRes.Created || orgRes.Changed {
		if err := s.writeCollection(s.orgPath, orgs); err != nil {
			return crawler.UpsertResult{}, err
		}
	}
	if res.Created || res.Changed {
		if err := s.writeCollection(s.projPath, projects); err != nil {
			return crawler.UpsertResult{}, err
		}
	}
	return res, nil
}

// Organizations returns the last completed revision of the organization
// collection. No lock is taken; renames are atomic.
func (s *DatasetStore) Organizations(context.Context) ([]OrganizationRecord, error) {
	return s.loadOrganizations()
}

// Projects returns the last completed revision of the project collection.
func (s *DatasetStore) Projects(context.Context) ([]ProjectRecord, error) {
	return s.loadProjects()
}

// acquire serializes writers: in-process goroutines through the mutex,
// concurrent processes through the lock file.
func (s *DatasetStore) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if err := s.lock.Acquire(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := s.lock.Release(); err != nil {
			s.logger.Warn("dataset lock release failed", zap.Error(err))
		}
		s.mu.Unlock()
	}, nil
}

// upsertOrgLocked mutates the in-memory organization collection. The caller
// holds the dataset lock and decides whether to persist.
func (s *DatasetStore) upsertOrgLocked(orgs *[]OrganizationRecord, fact crawler.OrganizationFact) (crawler.UpsertResult, error) {
	key, err := orgIdentityKey(fact.Name, fact.Website)
	if err != nil {
		return crawler.UpsertResult{}, err
	}
	id, err := s.recordID("org", key)
	if err != nil {
		return crawler.UpsertResult{}, err
	}

	now := s.clock.Now()
	records := *orgs

	for i := range records {
		if records[i].ID == id {
			res := crawler.UpsertResult{ID: id}
			if mergeOrganization(&records[i], fact) {
				records[i].UpdatedAt = now
				res.Changed = true
			}
			return res, nil
		}
	}

	// Fall back to name matching in either direction: a name-only sighting
	// may describe an organization already stored under its domain key, and a
	// website sighting may complete a record first seen without one. A
	// domain-keyed fact never folds into a record carrying a different
	// domain; same-name organizations on distinct domains stay distinct.
	nameOnly := strings.HasPrefix(key, "name:")
	factDomain := crawler.CanonicalDomain(fact.Website)
	if norm := normalizeName(fact.Name); norm != "" {
		for i := range records {
			if normalizeName(records[i].Name) != norm {
				continue
			}
			if !nameOnly && records[i].Website != "" && crawler.CanonicalDomain(records[i].Website) != factDomain {
				continue
			}
			res := crawler.UpsertResult{ID: records[i].ID}
			if mergeOrganization(&records[i], fact) {
				records[i].UpdatedAt = now
				res.Changed = true
			}
			return res, nil
		}
	}

	*orgs = append(records, OrganizationRecord{
		ID:           id,
		Name:         strings.TrimSpace(fact.Name),
		Description:  strings.TrimSpace(fact.Description),
		Website:      strings.TrimSpace(fact.Website),
		ContactEmail: strings.TrimSpace(fact.ContactEmail),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return crawler.UpsertResult{ID: id, Created: true}, nil
}

func (s *DatasetStore) recordID(prefix, identityKey string) (string, error) {
	digest, err := s.hasher.Hash([]byte(identityKey))
	if err != nil {
		return "", fmt.Errorf("hash identity key: %w", err)
	}
	return prefix + "-" + digest[:16], nil
}

func (s *DatasetStore) loadOrganizations() ([]OrganizationRecord, error) {
	var records []OrganizationRecord
	if err := loadJSON(s.orgPath, &records); err != nil {
		return nil, fmt.Errorf("load organizations: %w", err)
	}
	return records, nil
}

func (s *DatasetStore) loadProjects() ([]ProjectRecord, error) {
	var records []ProjectRecord
	if err := loadJSON(s.projPath, &records); err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	return records, nil
}

// loadJSON tolerates a missing collection (fresh dataset) but refuses a
// corrupt one: wiping records on a parse error would silently lose data.
func loadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeCollection persists one collection as a complete revision: marshal,
// write to a temp file in the same directory, fsync, rename over the old
// file. A reader can never observe a partially written collection.
func (s *DatasetStore) writeCollection(path string, records any) error {
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp collection: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp collection: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp collection: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp collection: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("swap collection revision: %w", err)
	}
	return nil
}

func sourceURLSet(url string) []string {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return []string{url}
}
