package badger

import (
	"context"
	"testing"

	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupKnowledge(t *testing.T) (storage.KnowledgeRepository, func()) {
	t.Helper()
	knowledge, answers, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	return knowledge, func() {
		answers.Close()
		knowledge.Close()
		backend.Close()
	}
}

func TestAddItems(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	added := addItems(t, repo,
		&core.KnowledgeItem{Kind: core.SourceDocument, Title: "d1", Body: "b"},
		&core.KnowledgeItem{Kind: core.SourceFAQ, Title: "f1", Body: "b"},
		&core.KnowledgeItem{Kind: core.SourceDocument, Title: "d2", Body: "b"},
	)

	require.Len(t, added, 3)
	for _, item := range added {
		assert.NotZero(t, item.Id)
		assert.True(t, item.Active)
		assert.False(t, item.InsertedAt.IsZero())
		assert.Equal(t, item.InsertedAt, item.UpdatedAt)
	}
	// Sequences are per partition
	assert.Greater(t, added[2].Id, added[0].Id)

	got, err := repo.GetItem(ctx, core.SourceFAQ, added[1].Id)
	require.NoError(t, err)
	assert.Equal(t, "f1", got.Title)

	count, err := repo.CountItems(ctx, core.SourceDocument)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddItems_UnknownKind(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()

	_, err := repo.AddItems(context.Background(), &core.KnowledgeItem{Kind: core.SourceKind(7), Title: "x", Body: "y"})
	assert.ErrorIs(t, err, storage.ErrUnknownKind)
}

func TestGetItem_NotFound(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()

	_, err := repo.GetItem(context.Background(), core.SourceTicket, core.ID(99))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetItems(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()

	added := addItems(t, repo,
		&core.KnowledgeItem{Kind: core.SourceFAQ, Title: "a", Body: "b"},
		&core.KnowledgeItem{Kind: core.SourceFAQ, Title: "c", Body: "d"},
	)

	items, err := repo.GetItems(context.Background(), core.SourceFAQ, added[0].Id, core.ID(999), added[1].Id)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestUpdateItems(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	added := addItems(t, repo, &core.KnowledgeItem{
		Kind:      core.SourceDocument,
		ContentId: core.IDFromContent("old"),
		Title:     "Old title",
		Body:      "b",
	})
	item := added[0]
	inserted := item.InsertedAt

	item.Title = "New title"
	item.ContentId = core.IDFromContent("new")
	_, err := repo.UpdateItems(ctx, item)
	require.NoError(t, err)

	got, err := repo.GetItem(ctx, core.SourceDocument, item.Id)
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Title)
	assert.Equal(t, inserted, got.InsertedAt)
	assert.False(t, got.UpdatedAt.Before(inserted))

	_, err = repo.FindByContentId(ctx, core.SourceDocument, core.IDFromContent("old"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	byContent, err := repo.FindByContentId(ctx, core.SourceDocument, core.IDFromContent("new"))
	require.NoError(t, err)
	assert.Equal(t, item.Id, byContent.Id)

	t.Run("missing item", func(t *testing.T) {
		_, err := repo.UpdateItems(ctx, &core.KnowledgeItem{Id: 999, Kind: core.SourceDocument, Title: "x", Body: "y"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestDeleteItems(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	added := addItems(t, repo, &core.KnowledgeItem{
		Kind:      core.SourceFAQ,
		ContentId: core.IDFromContent("faq"),
		Title:     "q",
		Body:      "a",
	})
	id := added[0].Id

	require.NoError(t, repo.DeleteItems(ctx, core.SourceFAQ, id))

	// Soft delete keeps the record for answers that cite it
	got, err := repo.GetItem(ctx, core.SourceFAQ, id)
	require.NoError(t, err)
	assert.False(t, got.Active)

	listed, err := repo.ListItems(ctx, core.SourceFAQ, core.Filter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = repo.FindByContentId(ctx, core.SourceFAQ, core.IDFromContent("faq"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.DeleteItems(ctx, core.SourceFAQ, core.ID(12345))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListItems(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()

	addItems(t, repo,
		&core.KnowledgeItem{Kind: core.SourceTicket, Title: "a", Body: "b", Category: "billing", Status: core.TicketStatusOpen},
		&core.KnowledgeItem{Kind: core.SourceTicket, Title: "c", Body: "d", Category: "billing", Status: core.TicketStatusClosed},
		&core.KnowledgeItem{Kind: core.SourceTicket, Title: "e", Body: "f", Category: "account", Status: core.TicketStatusOpen},
	)

	items, err := repo.ListItems(context.Background(), core.SourceTicket, core.Filter{
		Category: "billing",
		Statuses: []string{core.TicketStatusOpen},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Title)
}

func TestCountersAndPopular(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	added := addItems(t, repo,
		&core.KnowledgeItem{Kind: core.SourceFAQ, Title: "rare", Body: "b"},
		&core.KnowledgeItem{Kind: core.SourceFAQ, Title: "common", Body: "b"},
		&core.KnowledgeItem{Kind: core.SourceFAQ, Title: "medium", Body: "b"},
	)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementViews(ctx, core.SourceFAQ, added[1].Id))
	}
	require.NoError(t, repo.IncrementViews(ctx, core.SourceFAQ, added[2].Id))
	require.NoError(t, repo.IncrementHelpful(ctx, core.SourceFAQ, added[1].Id))

	got, err := repo.GetItem(ctx, core.SourceFAQ, added[1].Id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ViewCount)
	assert.Equal(t, 1, got.HelpfulCount)

	popular, err := repo.PopularItems(ctx, core.SourceFAQ, 2)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, "common", popular[0].Title)
	assert.Equal(t, "medium", popular[1].Title)

	err = repo.IncrementViews(ctx, core.SourceFAQ, core.ID(4242))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetItemsAfter(t *testing.T) {
	repo, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	var items []*core.KnowledgeItem
	for i := 0; i < 5; i++ {
		items = append(items, &core.KnowledgeItem{Kind: core.SourceDocument, Title: "t", Body: "b"})
	}
	added := addItems(t, repo, items...)

	first, err := repo.GetItemsAfter(ctx, core.SourceDocument, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, added[0].Id, first[0].Id)
	assert.Equal(t, added[1].Id, first[1].Id)

	rest, err := repo.GetItemsAfter(ctx, core.SourceDocument, first[1].Id, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, added[4].Id, rest[2].Id)

	none, err := repo.GetItemsAfter(ctx, core.SourceDocument, added[4].Id, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
