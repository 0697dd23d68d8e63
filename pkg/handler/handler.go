// Package handler maps configuration subtrees onto device CLI commands.
//
// Each subtree has one Handler registered under a fixed path. A handler
// decodes plain field maps into its own record type and implements some of
// the Reader, ListReader and Writer capabilities. Handlers never talk to a
// transport directly; they go through a Device, which in production is a
// *session.Session.
package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/newtron-network/newtcli/pkg/cache"
	"github.com/newtron-network/newtcli/pkg/session"
)

// Data is one configuration record of a subtree.
type Data interface {
	Key() string
	Fields() map[string]string
}

// Device is the blocking command surface handlers use.
type Device interface {
	BlockingRead(ctx context.Context, rc *cache.ReadContext, command string) (string, error)
	BlockingWriteAndRead(ctx context.Context, op session.WriteOp, commands ...string) (string, error)
	BlockingDeleteAndRead(ctx context.Context, commands ...string) (string, error)
}

// Handler is implemented by every registered subtree.
type Handler interface {
	Path() string
	Decode(key string, fields map[string]string) (Data, error)
}

// Reader reads one record. A missing record returns (nil, nil).
type Reader interface {
	Handler
	Read(ctx context.Context, dev Device, rc *cache.ReadContext, key string) (Data, error)
}

// ListReader reads every record of a subtree.
type ListReader interface {
	Handler
	ReadList(ctx context.Context, dev Device, rc *cache.ReadContext) ([]Data, error)
}

// Writer changes records. The session is in config mode when these run.
type Writer interface {
	Handler
	Write(ctx context.Context, dev Device, after Data) error
	Update(ctx context.Context, dev Device, before, after Data) error
	Delete(ctx context.Context, dev Device, before Data) error
}

// Registry is the fixed set of handlers, built once at startup.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry. It panics on a duplicate path: the set of
// handlers is part of the program, not input.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if _, dup := r.handlers[h.Path()]; dup {
			panic(fmt.Sprintf("handler: duplicate path %q", h.Path()))
		}
		r.handlers[h.Path()] = h
	}
	return r
}

// Default returns a registry with every built-in handler.
func Default() *Registry {
	return NewRegistry(VLANs{}, InterfaceDescriptions{})
}

// Lookup returns the handler for path.
func (r *Registry) Lookup(path string) (Handler, error) {
	h, ok := r.handlers[path]
	if !ok {
		return nil, fmt.Errorf("no handler for path %q", path)
	}
	return h, nil
}

// Writer returns the handler for path if it can write.
func (r *Registry) Writer(path string) (Writer, error) {
	h, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	w, ok := h.(Writer)
	if !ok {
		return nil, fmt.Errorf("handler %q is read-only", path)
	}
	return w, nil
}

// Reader returns the handler for path if it can read single records.
func (r *Registry) Reader(path string) (Reader, error) {
	h, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	rd, ok := h.(Reader)
	if !ok {
		return nil, fmt.Errorf("handler %q cannot read", path)
	}
	return rd, nil
}

// ListReader returns the handler for path if it can list records.
func (r *Registry) ListReader(path string) (ListReader, error) {
	h, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	lr, ok := h.(ListReader)
	if !ok {
		return nil, fmt.Errorf("handler %q cannot list", path)
	}
	return lr, nil
}

// Paths returns the registered paths, sorted.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
