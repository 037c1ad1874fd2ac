package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/cubefs/blobstore/util/taskpool"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
	"github.com/contentlake/bundledb/util/limiter"
)

const removeTaskPoolSize = 8

type FsConfig struct {
	Path    string         `json:"path"`
	Limiter limiter.Config `json:"limiter"`
}

// FsBlobStore keeps blobs as plain files under a root directory, sharded
// by the first bytes of the owning node id. Writes go through the
// configured rate limiter; removals run in a background task pool.
type FsBlobStore struct {
	root    string
	limiter limiter.Limiter
	tasks   taskpool.TaskPool
}

func NewFsBlobStore(cfg *FsConfig) (*FsBlobStore, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, err
	}
	return &FsBlobStore{
		root:    cfg.Path,
		limiter: limiter.New(cfg.Limiter),
		tasks:   taskpool.New(removeTaskPoolSize, removeTaskPoolSize),
	}, nil
}

func (s *FsBlobStore) CreateID(id proto.PropertyID, index int) string {
	parent := id.Parent.String()
	return parent[:2] + "/" + parent[2:4] + "/" + parent + "/" +
		escapeLocal(id.Name) + "." + strconv.Itoa(index) + ".bin"
}

func (s *FsBlobStore) Put(ctx context.Context, blobID string, r io.Reader, size int64) error {
	path, err := s.resolve(blobID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := s.limiter.Acquire(); err != nil {
		return err
	}
	defer s.limiter.Release()

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(s.limiter.Writer(ctx, f), io.LimitReader(r, size))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != size {
		err = fmt.Errorf("short blob write: got %d of %d bytes", n, size)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FsBlobStore) Get(ctx context.Context, blobID string) (io.ReadCloser, error) {
	path, err := s.resolve(blobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.ErrNoSuchBlob
		}
		return nil, err
	}
	return &limitedReadCloser{Reader: s.limiter.Reader(ctx, f), closer: f}, nil
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (rc *limitedReadCloser) Close() error { return rc.closer.Close() }

// Remove unlinks the blob file asynchronously. The file is renamed aside
// first so the caller observes the removal immediately.
func (s *FsBlobStore) Remove(ctx context.Context, blobID string) (bool, error) {
	path, err := s.resolve(blobID)
	if err != nil {
		return false, err
	}
	gone := path + ".del"
	if err := os.Rename(path, gone); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	s.tasks.Run(func() {
		if err := os.Remove(gone); err != nil {
			log.Warnf("removing blob file %s: %s", gone, err)
		}
	})
	return true, nil
}

func (s *FsBlobStore) GetResource(blobID string) (string, error) {
	return s.resolve(blobID)
}

func (s *FsBlobStore) Close() {
	s.tasks.Close()
}

func (s *FsBlobStore) resolve(blobID string) (string, error) {
	if blobID == "" || strings.Contains(blobID, "..") {
		return "", fmt.Errorf("invalid blob id %q", blobID)
	}
	return filepath.Join(s.root, filepath.FromSlash(blobID)), nil
}

func escapeLocal(name proto.Name) string {
	var sb strings.Builder
	for _, r := range name.Local {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
