package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrNotFound = errors.New("detection not found")

// Detection is one persisted classification result.
type Detection struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ImagePath  string    `json:"image_path"`
	Class      string    `json:"class,omitempty"`
	Label      string    `json:"label"`
	Color      string    `json:"color"`
	Confidence float32   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	detectionPrefix = "detection/"
	timePrefix      = "time/"
	userPrefix      = "user/"
)

// Store keeps detection history in a leveldb database. Each record is
// written once under its id, plus two ordering keys (global and per user)
// whose timestamps sort lexically.
type Store struct {
	db  *leveldb.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path not set")
	}
	if basepath := filepath.Dir(path); basepath != "" {
		if err := os.MkdirAll(basepath, os.ModePerm); err != nil {
			return nil, err
		}
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save assigns an id and creation time when missing and writes d.
func (s *Store) Save(ctx context.Context, d *Detection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode detection: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(detectionKey(d.ID), raw)
	batch.Put(timeKey(d), []byte(d.ID))
	batch.Put(userKey(d), []byte(d.ID))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("save detection %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get(detectionKey(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d := &Detection{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode detection %s: %w", id, err)
	}
	return d, nil
}

// ListByUser returns the detections of userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Detection, error) {
	return s.listIndex(ctx, []byte(userPrefix+url.PathEscape(userID)+"/"))
}

// List returns every detection, newest first.
func (s *Store) List(ctx context.Context) ([]Detection, error) {
	return s.listIndex(ctx, []byte(timePrefix))
}

func (s *Store) listIndex(ctx context.Context, prefix []byte) ([]Detection, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	detections := []Detection{}
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := s.Get(ctx, string(iter.Value()))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		detections = append(detections, *d)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return detections, nil
}

// Delete removes one detection and returns what was removed.
func (s *Store) Delete(ctx context.Context, id string) (*Detection, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	batch.Delete(detectionKey(d.ID))
	batch.Delete(timeKey(d))
	batch.Delete(userKey(d))
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("delete detection %s: %w", id, err)
	}
	return d, nil
}

// DeleteAll removes every detection in one batch and returns them.
func (s *Store) DeleteAll(ctx context.Context) ([]Detection, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	for i := range all {
		d := &all[i]
		batch.Delete(detectionKey(d.ID))
		batch.Delete(timeKey(d))
		batch.Delete(userKey(d))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("delete detections: %w", err)
	}
	return all, nil
}

// DeleteByUser removes the history of one user.
func (s *Store) DeleteByUser(ctx context.Context, userID string) ([]Detection, error) {
	mine, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	for i := range mine {
		d := &mine[i]
		batch.Delete(detectionKey(d.ID))
		batch.Delete(timeKey(d))
		batch.Delete(userKey(d))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("delete detections of %s: %w", userID, err)
	}
	return mine, nil
}

func detectionKey(id string) []byte {
	return []byte(detectionPrefix + id)
}

func timeKey(d *Detection) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", timePrefix, d.CreatedAt.UnixNano(), d.ID))
}

func userKey(d *Detection) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", userPrefix, url.PathEscape(d.UserID), d.CreatedAt.UnixNano(), d.ID))
}
