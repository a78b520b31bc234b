// Package registry stores schema documents in pebble and hands out their
// compiled declaration trees.
//
// Documents are kept verbatim under "schema/<ksuid>" and indexed by name under
// "name/<name>". Compiled declarations are immutable and cached per id.
package registry

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/bitctf/pkg/ctf"
	"github.com/ssargent/bitctf/pkg/schema"
)

var (
	// ErrSchemaNotFound is returned when no schema has the given id or name
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("registry is closed")
)

var (
	schemaPrefix = []byte("schema/")
	namePrefix   = []byte("name/")
)

// Entry is a stored schema
type Entry struct {
	ID       ksuid.KSUID
	Name     string
	Created  time.Time
	Raw      []byte
	Document *schema.Document
}

// Summary describes a stored schema without its document
type Summary struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Created     time.Time `json:"created" yaml:"created"`
}

// Option configures Open
type Option func(*options)

type options struct {
	fs      vfs.FS
	compile []schema.Option
}

// InMemory keeps the database in memory, for tests and one-shot commands
func InMemory() Option {
	return func(o *options) { o.fs = vfs.NewMem() }
}

// WithCompileOptions sets the options used to compile stored documents
func WithCompileOptions(opts ...schema.Option) Option {
	return func(o *options) { o.compile = opts }
}

// Registry is safe for concurrent use
type Registry struct {
	db      *pebble.DB
	compile []schema.Option
	cache   sync.Map // ksuid.KSUID -> ctf.Declaration
	mu      sync.Mutex
	closed  bool
}

// Open opens or creates the registry database in dir
func Open(dir string, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	db, err := pebble.Open(dir, &pebble.Options{FS: o.fs})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open registry at %s", dir)
	}
	return &Registry{db: db, compile: o.compile}, nil
}

// ParseID parses the string form of a schema id
func ParseID(s string) (ksuid.KSUID, error) {
	id, err := ksuid.Parse(s)
	if err != nil {
		return ksuid.Nil, errors.Wrapf(ErrSchemaNotFound, "invalid schema id %q", s)
	}
	return id, nil
}

// Put validates and stores a new document and returns its id. A document
// with the name of an existing one takes over the name.
func (r *Registry) Put(data []byte) (ksuid.KSUID, error) {
	doc, decl, err := r.validate(data)
	if err != nil {
		return ksuid.Nil, err
	}
	id := ksuid.New()
	if err := r.write(id, doc.Name, data, ""); err != nil {
		return ksuid.Nil, err
	}
	r.cache.Store(id, decl)
	return id, nil
}

// Update replaces the document stored under id
func (r *Registry) Update(id ksuid.KSUID, data []byte) error {
	old, err := r.Get(id)
	if err != nil {
		return err
	}
	doc, decl, err := r.validate(data)
	if err != nil {
		return err
	}
	if err := r.write(id, doc.Name, data, old.Name); err != nil {
		return err
	}
	r.cache.Store(id, decl)
	return nil
}

func (r *Registry) validate(data []byte) (*schema.Document, ctf.Declaration, error) {
	doc, err := schema.LoadBytes(data)
	if err != nil {
		return nil, nil, err
	}
	if doc.Name == "" {
		return nil, nil, errors.Wrap(schema.ErrInvalidSchema, "document has no name")
	}
	decl, err := schema.Compile(doc, r.compile...)
	if err != nil {
		return nil, nil, err
	}
	return doc, decl, nil
}

func (r *Registry) write(id ksuid.KSUID, name string, data []byte, oldName string) error {
	if err := r.check(); err != nil {
		return err
	}
	b := r.db.NewBatch()
	defer b.Close()

	if oldName != "" && oldName != name {
		if owner, err := r.lookupName(oldName); err == nil && owner == id {
			if err := b.Delete(nameKey(oldName), nil); err != nil {
				return errors.Wrap(err, "failed to unindex schema name")
			}
		}
	}
	if err := b.Set(schemaKey(id), data, nil); err != nil {
		return errors.Wrap(err, "failed to store schema")
	}
	if err := b.Set(nameKey(name), id.Bytes(), nil); err != nil {
		return errors.Wrap(err, "failed to index schema name")
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "failed to commit schema")
	}
	return nil
}

// Get returns the document stored under id
func (r *Registry) Get(id ksuid.KSUID) (*Entry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	raw, err := r.get(schemaKey(id))
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", id)
	}
	doc, err := schema.LoadBytes(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "stored schema %s", id)
	}
	return &Entry{ID: id, Name: doc.Name, Created: id.Time(), Raw: raw, Document: doc}, nil
}

// Resolve accepts an id or a schema name
func (r *Registry) Resolve(ref string) (ksuid.KSUID, error) {
	if err := r.check(); err != nil {
		return ksuid.Nil, err
	}
	if id, err := ksuid.Parse(ref); err == nil {
		if _, err := r.get(schemaKey(id)); err == nil {
			return id, nil
		}
	}
	id, err := r.lookupName(ref)
	if err != nil {
		return ksuid.Nil, errors.Wrapf(err, "schema %q", ref)
	}
	return id, nil
}

func (r *Registry) lookupName(name string) (ksuid.KSUID, error) {
	raw, err := r.get(nameKey(name))
	if err != nil {
		return ksuid.Nil, err
	}
	return ksuid.FromBytes(raw)
}

// Declaration returns the compiled declaration tree of id
func (r *Registry) Declaration(id ksuid.KSUID) (ctf.Declaration, error) {
	if decl, ok := r.cache.Load(id); ok {
		return decl.(ctf.Declaration), nil
	}
	entry, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	decl, err := schema.Compile(entry.Document, r.compile...)
	if err != nil {
		return nil, errors.Wrapf(err, "stored schema %s", id)
	}
	actual, _ := r.cache.LoadOrStore(id, decl)
	return actual.(ctf.Declaration), nil
}

// Delete removes the document stored under id
func (r *Registry) Delete(id ksuid.KSUID) error {
	entry, err := r.Get(id)
	if err != nil {
		return err
	}
	b := r.db.NewBatch()
	defer b.Close()
	if err := b.Delete(schemaKey(id), nil); err != nil {
		return errors.Wrap(err, "failed to delete schema")
	}
	if owner, err := r.lookupName(entry.Name); err == nil && owner == id {
		if err := b.Delete(nameKey(entry.Name), nil); err != nil {
			return errors.Wrap(err, "failed to unindex schema name")
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "failed to commit delete")
	}
	r.cache.Delete(id)
	return nil
}

// List returns every stored schema, oldest first
func (r *Registry) List() ([]Summary, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: schemaPrefix,
		UpperBound: prefixEnd(schemaPrefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schemas")
	}
	defer iter.Close()

	var out []Summary
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := ksuid.FromBytes(iter.Key()[len(schemaPrefix):])
		if err != nil {
			return nil, errors.Wrapf(err, "bad schema key %q", iter.Key())
		}
		doc, err := schema.LoadBytes(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "stored schema %s", id)
		}
		out = append(out, Summary{ID: id.String(), Name: doc.Name, Description: doc.Description, Created: id.Time()})
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to list schemas")
	}
	// ksuids sort by time only to the second
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

// Close closes the database
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

func (r *Registry) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *Registry) get(key []byte) ([]byte, error) {
	data, closer, err := r.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrSchemaNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read registry")
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

func schemaKey(id ksuid.KSUID) []byte {
	return append(append([]byte{}, schemaPrefix...), id.Bytes()...)
}

func nameKey(name string) []byte {
	return append(append([]byte{}, namePrefix...), name...)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}
