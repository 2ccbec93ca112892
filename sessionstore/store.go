// Package sessionstore persists one compressed archive per session in a
// remote object storage bucket.
//
// Archives are addressed as {basePath}{sessionID}/session.zip. Save uploads
// the staging file {localDir}/{sessionID}.zip, Extract downloads the archive
// to a caller-chosen path, and Delete removes it. The store holds no mutable
// state; concurrent calls are safe but not ordered relative to each other.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/sessionarchive/objstore"
	"github.com/google/uuid"
)

const (
	// ArchiveName is the object name of every session archive.
	ArchiveName = "session.zip"
	// ArchiveContentType is the media type declared on uploaded archives.
	ArchiveContentType = "application/zip"

	archiveExt = ".zip"
)

// RemoteStore is the contract consumed by the session manager.
type RemoteStore interface {
	SessionExists(ctx context.Context, sessionID string) bool
	Save(ctx context.Context, sessionID string) error
	Extract(ctx context.Context, sessionID, destinationPath string) error
	Delete(ctx context.Context, sessionID string) error
}

var _ RemoteStore = (*Store)(nil)

// Config holds the construction parameters of a Store.
type Config struct {
	// Client is the object storage handle. Required. The store never closes it.
	Client objstore.Client
	// BucketName is the bucket (or container) holding the archives. Required.
	BucketName string
	// BasePath prefixes every object key. Empty, or longer than one
	// character and ending in "/".
	BasePath string
	// BucketOptions are passed through to the client. Zero value means none.
	BucketOptions objstore.BucketOptions
	// LocalDir is where Save looks for {sessionID}.zip. Empty resolves
	// against the working directory.
	LocalDir string
}

// Store implements RemoteStore on top of an objstore.Client.
type Store struct {
	client        objstore.Client
	bucketName    string
	basePath      string
	bucketOptions objstore.BucketOptions
	localDir      string

	bucket objstore.Bucket
}

// New validates cfg and returns a Store. It performs no I/O.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, &ConfigError{Reason: ReasonMissingParameters}
	}
	if cfg.Client == nil {
		return nil, &ConfigError{Reason: ReasonMissingClient}
	}
	if cfg.BucketName == "" {
		return nil, &ConfigError{Reason: ReasonMissingBucket}
	}
	if cfg.BasePath != "" && (len(cfg.BasePath) <= 1 || !strings.HasSuffix(cfg.BasePath, "/")) {
		return nil, &ConfigError{Reason: ReasonInvalidBasePath}
	}

	return &Store{
		client:        cfg.Client,
		bucketName:    cfg.BucketName,
		basePath:      cfg.BasePath,
		bucketOptions: cfg.BucketOptions,
		localDir:      cfg.LocalDir,
		bucket:        cfg.Client.Bucket(cfg.BucketName, cfg.BucketOptions),
	}, nil
}

func (s *Store) Client() objstore.Client               { return s.client }
func (s *Store) BucketName() string                    { return s.bucketName }
func (s *Store) BasePath() string                      { return s.basePath }
func (s *Store) BucketOptions() objstore.BucketOptions { return s.bucketOptions }
func (s *Store) LocalDir() string                      { return s.localDir }

// ObjectKey returns the object key of the session's archive.
func (s *Store) ObjectKey(sessionID string) string {
	return s.basePath + sessionID + "/" + ArchiveName
}

// LocalArchivePath returns the staging file Save uploads for the session.
func (s *Store) LocalArchivePath(sessionID string) string {
	return filepath.Join(s.localDir, sessionID+archiveExt)
}

// validateSessionID keeps each id inside a single key segment and the
// staging path inside LocalDir.
func validateSessionID(sessionID string) error {
	switch {
	case sessionID == "", sessionID == ".", sessionID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	case strings.ContainsAny(sessionID, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSessionID, sessionID)
	}
	return nil
}

func (s *Store) transferError(op Op, sessionID string, err error) error {
	return &TransferError{Op: op, SessionID: sessionID, Key: s.ObjectKey(sessionID), Err: err}
}

// Probe reports whether the session's archive exists, keeping probe failures
// distinct from absence.
func (s *Store) Probe(ctx context.Context, sessionID string) (Presence, error) {
	if err := validateSessionID(sessionID); err != nil {
		return ProbeFailed, err
	}
	ok, err := s.bucket.Exists(ctx, s.ObjectKey(sessionID))
	if err != nil {
		return ProbeFailed, s.transferError(OpExists, sessionID, err)
	}
	if ok {
		return Present, nil
	}
	return Absent, nil
}

// SessionExists reports whether the archive verifiably exists. Probe
// failures read as false.
func (s *Store) SessionExists(ctx context.Context, sessionID string) bool {
	p, _ := s.Probe(ctx, sessionID)
	return p == Present
}

// Save uploads the session's staging archive. It fails with a
// *MissingArchiveError, without contacting the backend, when the staging
// file does not exist.
func (s *Store) Save(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	path := s.LocalArchivePath(sessionID)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingArchiveError{SessionID: sessionID, Path: path}
		}
		return s.transferError(OpSave, sessionID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return s.transferError(OpSave, sessionID, err)
	}
	if info.IsDir() {
		return &MissingArchiveError{SessionID: sessionID, Path: path}
	}

	attrs := objstore.ObjectAttrs{ContentType: ArchiveContentType}
	if err := s.bucket.Upload(ctx, s.ObjectKey(sessionID), f, attrs); err != nil {
		return s.transferError(OpSave, sessionID, err)
	}
	return nil
}

// Extract downloads the session's archive to destinationPath, replacing any
// existing file. Bytes are staged in a temporary sibling file that is renamed
// into place only after the download completes.
func (s *Store) Extract(ctx context.Context, sessionID, destinationPath string) (err error) {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if destinationPath == "" {
		return ErrInvalidDestination
	}

	rc, err := s.bucket.NewReader(ctx, s.ObjectKey(sessionID))
	if err != nil {
		return s.transferError(OpExtract, sessionID, err)
	}
	defer rc.Close()

	dir, base := filepath.Split(destinationPath)
	tmpPath := filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return s.transferError(OpExtract, sessionID, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmp, rc); err != nil {
		return s.transferError(OpExtract, sessionID, err)
	}
	if err = tmp.Close(); err != nil {
		return s.transferError(OpExtract, sessionID, err)
	}
	if err = os.Rename(tmpPath, destinationPath); err != nil {
		return s.transferError(OpExtract, sessionID, err)
	}
	return nil
}

// Delete removes the session's archive. Deleting an archive that does not
// exist succeeds.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	err := s.bucket.Delete(ctx, s.ObjectKey(sessionID))
	if err != nil && !errors.Is(err, objstore.ErrObjectNotFound) {
		return s.transferError(OpDelete, sessionID, err)
	}
	return nil
}
