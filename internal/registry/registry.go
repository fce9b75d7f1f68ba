package registry

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/homequest/realestate-search/internal/config"
)

// Registry is the static clean-path redirect table consulted before any
// index lookup. The table is an immutable snapshot; Reload swaps the whole
// map atomically, never mutating it in place.
type Registry struct {
	snapshot atomic.Pointer[map[string]string]
	source   Source
	logger   *zap.Logger
}

// Source produces a full redirect table.
type Source interface {
	Load(ctx context.Context) (map[string]string, error)
}

func New(source Source, logger *zap.Logger) (*Registry, error) {
	r := &Registry{source: source, logger: logger}
	if err := r.Reload(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Empty returns a registry with no entries and no source.
func Empty() *Registry {
	r := &Registry{}
	empty := map[string]string{}
	r.snapshot.Store(&empty)
	return r
}

// Lookup returns the redirect target for an exact path key.
func (r *Registry) Lookup(path string) (string, bool) {
	m := r.snapshot.Load()
	if m == nil {
		return "", false
	}
	target, ok := (*m)[path]
	return target, ok
}

func (r *Registry) Len() int {
	m := r.snapshot.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Reload fetches a fresh table from the source and swaps it in.
func (r *Registry) Reload(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("registry has no source")
	}
	table, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading redirect registry: %w", err)
	}
	r.snapshot.Store(&table)
	if r.logger != nil {
		r.logger.Info("redirect registry loaded", zap.Int("entries", len(table)))
	}
	return nil
}

// FileSource reads the registry from a YAML file mapping path -> target.
type FileSource struct {
	Path string
}

func (fs FileSource) Load(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(fs.Path)
	if err != nil {
		return nil, fmt.Errorf("reading redirects file %s: %w", fs.Path, err)
	}
	table := make(map[string]string)
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing redirects file: %w", err)
	}
	return table, nil
}

// FirestoreSource reads the registry from a Firestore collection whose
// documents carry "path" and "target" fields.
type FirestoreSource struct {
	client     *firestore.Client
	collection string
	timeout    config.FirestoreConfig
}

func NewFirestoreSource(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) (*FirestoreSource, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("firestore redirect source connected",
		zap.String("project", cfg.ProjectID),
		zap.String("collection", cfg.Collection),
	)

	return &FirestoreSource{
		client:     client,
		collection: cfg.Collection,
		timeout:    cfg,
	}, nil
}

func (fs *FirestoreSource) Load(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, fs.timeout.RequestTimeout)
	defer cancel()

	table := make(map[string]string)
	iter := fs.client.Collection(fs.collection).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating redirects collection: %w", err)
		}
		data := doc.Data()
		path, _ := data["path"].(string)
		target, _ := data["target"].(string)
		if path == "" || target == "" {
			continue
		}
		table[path] = target
	}

	return table, nil
}

func (fs *FirestoreSource) Close() error {
	return fs.client.Close()
}
