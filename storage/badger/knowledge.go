package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// Counter updates are retried this many times on write conflicts.
const maxConflictRetries = 5

// KnowledgeRepository implements storage.KnowledgeRepository for BadgerDB.
// Each source kind has its own key partition and ID sequence.
type KnowledgeRepository struct {
	backend *Backend
	seqs    map[core.SourceKind]*badger.Sequence
}

var _ storage.KnowledgeRepository = (*KnowledgeRepository)(nil)

// NewKnowledgeRepository creates a new KnowledgeRepository.
func NewKnowledgeRepository(backend *Backend) (*KnowledgeRepository, error) {
	r := &KnowledgeRepository{
		backend: backend,
		seqs:    make(map[core.SourceKind]*badger.Sequence),
	}
	for _, kind := range core.AllSourceKinds() {
		p, _ := partitionFor(kind)
		seq, err := backend.GetSequence(p.sequenceName())
		if err != nil {
			r.Close()
			return nil, err
		}
		r.seqs[kind] = seq
	}
	return r, nil
}

// Close releases the ID sequences.
func (r *KnowledgeRepository) Close() error {
	var errs []error
	for _, seq := range r.seqs {
		errs = append(errs, seq.Release())
	}
	return errors.Join(errs...)
}

// WithTransaction delegates to the backend.
func (r *KnowledgeRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// FindSimilar delegates to the backend.
func (r *KnowledgeRepository) FindSimilar(ctx context.Context, kind core.SourceKind, vector []float32, minSimilarity float32, limit int, filter core.Filter) ([]*core.ScoredItem, error) {
	return r.backend.FindSimilar(ctx, kind, vector, minSimilarity, limit, filter)
}

// AddItems adds knowledge items to their kind's partition.
func (r *KnowledgeRepository) AddItems(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, item := range items {
			p, err := partitionFor(item.Kind)
			if err != nil {
				return err
			}
			nextID, err := r.nextID(item.Kind)
			if err != nil {
				return err
			}
			item.Id = nextID
			item.Active = true
			item.InsertedAt = time.Now().UTC().Truncate(time.Microsecond)
			item.UpdatedAt = item.InsertedAt

			if err := tx.Set(p.itemKey(item.Id), storage.MarshalKnowledgeItem(item)); err != nil {
				return err
			}
			if item.ContentId != 0 {
				if err := tx.Set(p.contentKey(item.ContentId), storage.MarshalID(item.Id)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)

	return items, err
}

// UpdateItems replaces existing items.
func (r *KnowledgeRepository) UpdateItems(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, item := range items {
			p, err := partitionFor(item.Kind)
			if err != nil {
				return err
			}
			key := p.itemKey(item.Id)

			old, err := readItem(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			item.InsertedAt = old.InsertedAt
			item.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
			if err := tx.Set(key, storage.MarshalKnowledgeItem(item)); err != nil {
				return err
			}

			// Move the content index if the content changed
			if old.ContentId != item.ContentId {
				if old.ContentId != 0 {
					if err := tx.Delete(p.contentKey(old.ContentId)); err != nil {
						return err
					}
				}
				if item.ContentId != 0 {
					if err := tx.Set(p.contentKey(item.ContentId), storage.MarshalID(item.Id)); err != nil {
						return err
					}
				}
			}
		}
		return tx.Commit()
	}, true)

	return items, err
}

// DeleteItems deactivates items. Records are kept so answers that cite them
// stay resolvable.
func (r *KnowledgeRepository) DeleteItems(ctx context.Context, kind core.SourceKind, ids ...core.ID) error {
	p, err := partitionFor(kind)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := p.itemKey(id)
			item, err := readItem(tx, key)
			if err != nil {
				return err
			}
			if item == nil {
				return storage.ErrNotFound
			}
			item.Active = false
			item.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
			if err := tx.Set(key, storage.MarshalKnowledgeItem(item)); err != nil {
				return err
			}
			// Deleted content may be ingested again
			if item.ContentId != 0 {
				if err := tx.Delete(p.contentKey(item.ContentId)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
}

// GetItem retrieves a single item by ID.
func (r *KnowledgeRepository) GetItem(ctx context.Context, kind core.SourceKind, id core.ID) (*core.KnowledgeItem, error) {
	p, err := partitionFor(kind)
	if err != nil {
		return nil, err
	}
	var result *core.KnowledgeItem
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readItem(tx, p.itemKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetItems retrieves the items that exist among ids.
func (r *KnowledgeRepository) GetItems(ctx context.Context, kind core.SourceKind, ids ...core.ID) ([]*core.KnowledgeItem, error) {
	p, err := partitionFor(kind)
	if err != nil {
		return nil, err
	}
	var result []*core.KnowledgeItem
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := readItem(tx, p.itemKey(id))
			if err != nil {
				return err
			}
			if item != nil {
				result = append(result, item)
			}
		}
		return nil
	}, false)
	return result, err
}

// FindByContentId finds an item by its content hash.
func (r *KnowledgeRepository) FindByContentId(ctx context.Context, kind core.SourceKind, contentId core.ID) (*core.KnowledgeItem, error) {
	p, err := partitionFor(kind)
	if err != nil {
		return nil, err
	}
	var result *core.KnowledgeItem
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := tx.Get(p.contentKey(contentId))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var id core.ID
		if err := entry.Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}
		result, err = readItem(tx, p.itemKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListItems returns active items matching filter in ID order.
func (r *KnowledgeRepository) ListItems(ctx context.Context, kind core.SourceKind, filter core.Filter) ([]*core.KnowledgeItem, error) {
	var results []*core.KnowledgeItem
	err := r.scan(ctx, kind, 0, func(item *core.KnowledgeItem) bool {
		if filter.Matches(item) {
			results = append(results, item)
		}
		return true
	})
	return results, err
}

// IncrementViews bumps an item's view counter.
func (r *KnowledgeRepository) IncrementViews(ctx context.Context, kind core.SourceKind, id core.ID) error {
	return r.modify(kind, id, func(item *core.KnowledgeItem) { item.ViewCount++ })
}

// IncrementHelpful bumps an item's helpful counter.
func (r *KnowledgeRepository) IncrementHelpful(ctx context.Context, kind core.SourceKind, id core.ID) error {
	return r.modify(kind, id, func(item *core.KnowledgeItem) { item.HelpfulCount++ })
}

// PopularItems returns active items ordered by view count descending, then
// helpful count descending, then ID.
func (r *KnowledgeRepository) PopularItems(ctx context.Context, kind core.SourceKind, limit int) ([]*core.KnowledgeItem, error) {
	items, err := r.ListItems(ctx, kind, core.Filter{})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b *core.KnowledgeItem) int {
		if a.ViewCount != b.ViewCount {
			return b.ViewCount - a.ViewCount
		}
		return b.HelpfulCount - a.HelpfulCount
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetItemsAfter returns up to limit items with ID greater than after.
func (r *KnowledgeRepository) GetItemsAfter(ctx context.Context, kind core.SourceKind, after core.ID, limit int) ([]*core.KnowledgeItem, error) {
	var results []*core.KnowledgeItem
	if limit <= 0 {
		return results, nil
	}
	err := r.scan(ctx, kind, after+1, func(item *core.KnowledgeItem) bool {
		results = append(results, item)
		return len(results) < limit
	})
	return results, err
}

// CountItems returns the number of items in a partition.
func (r *KnowledgeRepository) CountItems(ctx context.Context, kind core.SourceKind) (int, error) {
	p, err := partitionFor(kind)
	if err != nil {
		return 0, err
	}
	count := 0
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.itemPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Helper methods

// nextID draws the next ID from the kind's sequence.
func (r *KnowledgeRepository) nextID(kind core.SourceKind) (core.ID, error) {
	seq := r.seqs[kind]
	nextID, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		if nextID, err = seq.Next(); err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// scan visits items of a partition in ID order starting at from, until fn
// returns false.
func (r *KnowledgeRepository) scan(ctx context.Context, kind core.SourceKind, from core.ID, fn func(*core.KnowledgeItem) bool) error {
	p, err := partitionFor(kind)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.itemPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(p.itemKey(from)); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var item *core.KnowledgeItem
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				item, err = storage.UnmarshalKnowledgeItem(val)
				return err
			}); err != nil {
				return err
			}
			if !fn(item) {
				break
			}
		}
		return nil
	}, false)
}

// modify applies fn to a stored item in a read-write transaction.
// UpdatedAt is left alone so counters don't look like content edits.
func (r *KnowledgeRepository) modify(kind core.SourceKind, id core.ID, fn func(*core.KnowledgeItem)) error {
	p, err := partitionFor(kind)
	if err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		err = r.modifyOnce(p, id, fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
	}
}

func (r *KnowledgeRepository) modifyOnce(p partition, id core.ID, fn func(*core.KnowledgeItem)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := p.itemKey(id)
		item, err := readItem(tx, key)
		if err != nil {
			return err
		}
		if item == nil {
			return storage.ErrNotFound
		}
		fn(item)
		if err := tx.Set(key, storage.MarshalKnowledgeItem(item)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readItem reads a knowledge item from the transaction.
// Returns nil, nil when the key doesn't exist.
func readItem(tx *badger.Txn, key []byte) (*core.KnowledgeItem, error) {
	entry, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var item *core.KnowledgeItem
	err = entry.Value(func(val []byte) error {
		var unmarshalErr error
		item, unmarshalErr = storage.UnmarshalKnowledgeItem(val)
		return unmarshalErr
	})
	return item, err
}
