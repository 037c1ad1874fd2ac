package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/contentlake/bundledb/errors"
)

const defaultMinRecordLength = 100

type FsDataStoreConfig struct {
	Path            string `json:"path"`
	MinRecordLength int    `json:"min_record_length"`
}

// FsDataStore is a content-addressed record store: the identifier of a
// record is the hex sha-256 of its content, so identical values share a
// single file and records are immutable once written.
type FsDataStore struct {
	root      string
	minRecord int
}

func NewFsDataStore(cfg *FsDataStoreConfig) (*FsDataStore, error) {
	if err := os.MkdirAll(filepath.Join(cfg.Path, "tmp"), 0o755); err != nil {
		return nil, err
	}
	minRecord := cfg.MinRecordLength
	if minRecord <= 0 {
		minRecord = defaultMinRecordLength
	}
	return &FsDataStore{root: cfg.Path, minRecord: minRecord}, nil
}

func (s *FsDataStore) MinRecordLength() int { return s.minRecord }

func (s *FsDataStore) AddRecord(ctx context.Context, r io.Reader) (string, error) {
	tmp := filepath.Join(s.root, "tmp", uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	id := hex.EncodeToString(h.Sum(nil))
	path := s.recordPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		// record already present, content addressing makes this a no-op
		os.Remove(tmp)
		return id, nil
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return id, nil
}

func (s *FsDataStore) GetRecord(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	if !validRecordID(id) {
		return nil, 0, fmt.Errorf("invalid data record id %q", id)
	}
	f, err := os.Open(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, apierrors.ErrNoSuchBlob
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Records lists all record identifiers, for consistency sweeps.
func (s *FsDataStore) Records() ([]string, error) {
	var out []string
	shards, err := ioutil.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	for _, shard := range shards {
		if !shard.IsDir() || shard.Name() == "tmp" {
			continue
		}
		files, err := ioutil.ReadDir(filepath.Join(s.root, shard.Name()))
		if err != nil {
			return nil, err
		}
		for _, fi := range files {
			out = append(out, shard.Name()+fi.Name())
		}
	}
	return out, nil
}

func (s *FsDataStore) recordPath(id string) string {
	return filepath.Join(s.root, id[:2], id[2:])
}

func validRecordID(id string) bool {
	if len(id) != 64 {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}) < 0
}
