package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const metaSuffix = ".meta.json"

// FSStore keeps blobs under a root directory with JSON sidecars for
// metadata.
type FSStore struct {
	Root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{Root: root}
}

func (s *FSStore) abs(path string) string {
	return filepath.Join(s.Root, filepath.FromSlash(path))
}

func (s *FSStore) Upload(ctx context.Context, path string, data []byte, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		if err := os.WriteFile(target+metaSuffix, raw, 0644); err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
	}
	return nil
}

func (s *FSStore) List(ctx context.Context, prefix string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	entries, err := os.ReadDir(s.abs(prefix))
	if os.IsNotExist(err) {
		return Listing{}, nil
	}
	if err != nil {
		return Listing{}, fmt.Errorf("list %s: %w", prefix, err)
	}

	var listing Listing
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			listing.Folders = append(listing.Folders, name)
			continue
		}
		if strings.HasSuffix(name, metaSuffix) {
			continue
		}
		meta, err := s.Metadata(ctx, prefix+"/"+name)
		if err != nil {
			meta = nil
		}
		listing.Items = append(listing.Items, Item{Name: name, Meta: meta})
	}
	sort.Strings(listing.Folders)
	sort.Slice(listing.Items, func(i, j int) bool {
		return listing.Items[i].Name < listing.Items[j].Name
	})
	return listing, nil
}

func (s *FSStore) Metadata(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.abs(path) + metaSuffix)
	if os.IsNotExist(err) {
		return Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	return meta, nil
}

func (s *FSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.abs(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
