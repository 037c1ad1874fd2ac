package namespace

import (
	"sync"

	apierrors "github.com/contentlake/bundledb/errors"
	"github.com/contentlake/bundledb/proto"
)

// Registry keeps the bidirectional prefix <-> namespace URI mapping. The
// built-in namespaces are preloaded and cannot be remapped. The registry
// is read-only during codec operation.
type Registry struct {
	mu       sync.RWMutex
	prefixes map[string]string // prefix -> uri
	uris     map[string]string // uri -> prefix
}

var builtins = map[string]string{
	"":    proto.NSDefaultURI,
	"jcr": proto.NSJCRURI,
	"nt":  proto.NSNTURI,
	"mix": proto.NSMixURI,
	"sv":  proto.NSSVURI,
	"rep": proto.NSInternalURI,
}

func NewRegistry() *Registry {
	r := &Registry{
		prefixes: make(map[string]string, len(builtins)),
		uris:     make(map[string]string, len(builtins)),
	}
	for prefix, uri := range builtins {
		r.prefixes[prefix] = uri
		r.uris[uri] = prefix
	}
	return r
}

// Register maps prefix to uri. Remapping a built-in prefix or URI, or
// reusing a prefix or URI that is already mapped, fails.
func (r *Registry) Register(prefix, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := builtins[prefix]; ok {
		return apierrors.ErrDuplicateName
	}
	if _, ok := r.prefixes[prefix]; ok {
		return apierrors.ErrDuplicateName
	}
	if _, ok := r.uris[uri]; ok {
		return apierrors.ErrDuplicateName
	}
	r.prefixes[prefix] = uri
	r.uris[uri] = prefix
	return nil
}

// GetURI resolves a prefix.
func (r *Registry) GetURI(prefix string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uri, ok := r.prefixes[prefix]
	return uri, ok
}

// GetPrefix resolves a namespace URI.
func (r *Registry) GetPrefix(uri string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix, ok := r.uris[uri]
	return prefix, ok
}

// URIs returns a snapshot of all registered URIs.
func (r *Registry) URIs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.uris))
	for uri := range r.uris {
		out = append(out, uri)
	}
	return out
}
