// Package persist saves and loads cache snapshots.
//
// A snapshot is encoded as JSON, compressed with snappy and written to any
// URL the afs service understands (file://, mem://, s3://, gs://...).
// Errors are stored as their message text and restored as plain errors.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/viant/afs"

	"github.com/jonwraymond/fetchops/cache"
	"github.com/jonwraymond/fetchops/response"
)

const formatVersion = 1

// ErrNotFound indicates no snapshot exists at the URL.
var ErrNotFound = errors.New("persist: snapshot not found")

// ErrVersion indicates a snapshot written by an incompatible format.
var ErrVersion = errors.New("persist: unsupported snapshot version")

type record struct {
	Data              any               `json:"data,omitempty"`
	Error             string            `json:"error,omitempty"`
	Status            int               `json:"status,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	Outcome           string            `json:"outcome"`
	RefreshError      string            `json:"refreshError,omitempty"`
	RetryError        string            `json:"retryError,omitempty"`
	Retries           int               `json:"retries,omitempty"`
	IsRefreshed       bool              `json:"isRefreshed,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	GarbageCollection time.Duration     `json:"garbageCollection,omitempty"`
}

type document struct {
	Version int                          `json:"version"`
	Buckets map[string]map[string]record `json:"buckets"`
}

// Store persists snapshots at one URL.
type Store struct {
	fs  afs.Service
	url string
}

// NewStore creates a Store. A nil fs uses afs.New().
func NewStore(fs afs.Service, URL string) *Store {
	if fs == nil {
		fs = afs.New()
	}
	return &Store{fs: fs, url: URL}
}

// URL returns the snapshot location.
func (s *Store) URL() string { return s.url }

// Save writes snap, replacing any previous snapshot.
func (s *Store) Save(ctx context.Context, snap cache.Snapshot) error {
	raw, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := s.fs.Upload(ctx, s.url, 0o644, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("persist: upload %s: %w", s.url, err)
	}
	return nil
}

// Load reads the snapshot. A missing snapshot returns ErrNotFound.
func (s *Store) Load(ctx context.Context) (cache.Snapshot, error) {
	exists, err := s.fs.Exists(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("persist: stat %s: %w", s.url, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	raw, err := s.fs.DownloadWithURL(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("persist: download %s: %w", s.url, err)
	}
	return Decode(raw)
}

// Encode serializes and compresses snap.
func Encode(snap cache.Snapshot) ([]byte, error) {
	doc := document{Version: formatVersion, Buckets: make(map[string]map[string]record, len(snap))}
	for cacheKey, bucket := range snap {
		records := make(map[string]record, len(bucket))
		for requestKey, e := range bucket {
			records[requestKey] = toRecord(e)
		}
		doc.Buckets[cacheKey] = records
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("persist: encode: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode decompresses and parses a snapshot.
func Decode(data []byte) (cache.Snapshot, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("persist: decompress: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("persist: decode: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	snap := make(cache.Snapshot, len(doc.Buckets))
	for cacheKey, records := range doc.Buckets {
		bucket := make(cache.Bucket, len(records))
		for requestKey, r := range records {
			bucket[requestKey] = fromRecord(r)
		}
		snap[cacheKey] = bucket
	}
	return snap, nil
}

func toRecord(e cache.Entry) record {
	return record{
		Data:              e.Response.Data,
		Error:             errText(e.Response.Err),
		Status:            e.Response.Status,
		Headers:           e.Response.Headers,
		Outcome:           e.Response.Outcome.String(),
		RefreshError:      errText(e.RefreshError),
		RetryError:        errText(e.RetryError),
		Retries:           e.Retries,
		IsRefreshed:       e.IsRefreshed,
		Timestamp:         e.Timestamp,
		GarbageCollection: e.GarbageCollection,
	}
}

func fromRecord(r record) cache.Entry {
	outcome := response.Success
	if r.Outcome == response.Failure.String() {
		outcome = response.Failure
	}
	return cache.Entry{
		Response: response.Response{
			Data:    r.Data,
			Err:     textErr(r.Error),
			Status:  r.Status,
			Headers: r.Headers,
			Outcome: outcome,
		},
		RefreshError:      textErr(r.RefreshError),
		RetryError:        textErr(r.RetryError),
		Retries:           r.Retries,
		IsRefreshed:       r.IsRefreshed,
		Timestamp:         r.Timestamp,
		GarbageCollection: r.GarbageCollection,
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func textErr(s string) error {
	if s == "" {
		return nil
	}
	return errors.New(s)
}
