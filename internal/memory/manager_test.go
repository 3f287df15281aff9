package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, withIndex bool) (*Manager, *Index) {
	t.Helper()
	s, _ := newTestStore(t)
	var idx *Index
	if withIndex {
		var err error
		idx, err = NewInMemoryIndex(mockEmbedFunc)
		require.NoError(t, err)
	}
	return NewManager(s, idx, "alice"), idx
}

func TestManagerDefaultsUser(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, "anonymous", NewManager(s, nil, "").UserID())
}

func TestManagerStoreIndexesAndDelete(t *testing.T) {
	m, idx := newTestManager(t, true)
	ctx := context.Background()

	saved, err := m.StoreMemory(ctx, Memory{Key: "  city  ", Value: "Tunis"})
	require.NoError(t, err)
	assert.Equal(t, "city", saved.Key)
	assert.Equal(t, "alice", saved.UserID)
	assert.Equal(t, 1, idx.Count())

	got, err := m.GetMemory(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, "Tunis", got.Value)

	require.NoError(t, m.Delete(ctx, "city"))
	assert.Equal(t, 0, idx.Count())
	assert.ErrorIs(t, m.Delete(ctx, "city"), ErrNotFound)
}

func TestManagerSearchSubstringOnly(t *testing.T) {
	m, _ := newTestManager(t, false)
	ctx := context.Background()

	_, err := m.StoreMemory(ctx, Memory{Key: "food", Value: "pizza margherita"})
	require.NoError(t, err)
	_, err = m.StoreMemory(ctx, Memory{Key: "drink", Value: "mint tea"})
	require.NoError(t, err)

	got, err := m.Search(ctx, MemoryQuery{Text: "pizza"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "food", got[0].Key)

	none, err := m.Search(ctx, MemoryQuery{Text: "sushi"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestManagerSearchMergesSemantic(t *testing.T) {
	m, _ := newTestManager(t, true)
	ctx := context.Background()

	_, err := m.StoreMemory(ctx, Memory{Key: "food", Value: "pizza margherita"})
	require.NoError(t, err)
	_, err = m.StoreMemory(ctx, Memory{Key: "drink", Value: "mint tea", Type: TypePreference})
	require.NoError(t, err)

	got, err := m.Search(ctx, MemoryQuery{Text: "pizza margherita"})
	require.NoError(t, err)
	require.Len(t, got, 2, "semantic hits include related memories")
	assert.Equal(t, "food", got[0].Key)

	typed, err := m.Search(ctx, MemoryQuery{Text: "pizza", Type: TypePreference})
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, "drink", typed[0].Key)
}

func TestManagerExtractAndStore(t *testing.T) {
	fixNow(t)
	m, _ := newTestManager(t, false)
	ctx := context.Background()

	stored, err := m.ExtractAndStore(ctx, "My name is Hazem")
	require.NoError(t, err)
	keys := byKey(stored)
	require.Contains(t, keys, "user_name")
	assert.Equal(t, "Hazem", keys["user_name"].Value)

	again, err := m.ExtractAndStore(ctx, "My name is Hazem")
	require.NoError(t, err)
	assert.Empty(t, again, "existing keys are skipped")

	none, err := m.ExtractAndStore(ctx, "How are you?")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManagerBuildContext(t *testing.T) {
	m, _ := newTestManager(t, false)
	ctx := context.Background()

	_, err := m.StoreMemory(ctx, Memory{Key: "user_name", Value: "Hazem", Importance: 9})
	require.NoError(t, err)
	_, err = m.StoreMemory(ctx, Memory{Key: "trivia", Value: "likes trains", Importance: 3})
	require.NoError(t, err)
	_, err = m.Store().AddMessage(ctx, "alice", "s1", "user", "hello there", nil)
	require.NoError(t, err)

	out, err := m.BuildContext(ctx, "s1", DefaultContextOptions)
	require.NoError(t, err)
	assert.Contains(t, out, "User preference: detailed responses")
	assert.Contains(t, out, "=== IMPORTANT MEMORIES ===")
	assert.Contains(t, out, "• user_name: Hazem")
	assert.NotContains(t, out, "trivia")
	assert.NotContains(t, out, "RECENT CONVERSATION")

	full, err := m.BuildContext(ctx, "s1", ContextOptions{Memories: true, History: true, Knowledge: true})
	require.NoError(t, err)
	assert.Contains(t, full, "=== RECENT CONVERSATION ===")
	assert.Contains(t, full, "user: hello there...")
	assert.Contains(t, full, "=== AVAILABLE KNOWLEDGE ===")
}

func TestManagerSummaryAndStats(t *testing.T) {
	m, _ := newTestManager(t, false)
	ctx := context.Background()

	summary, err := m.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No memories stored yet.", summary)

	_, err = m.StoreMemory(ctx, Memory{Key: "k", Value: "v"})
	require.NoError(t, err)

	summary, err = m.Summary(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "• k: v")

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalMemories)

	updated, err := m.UpdateImportance(ctx, "k", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Importance)
}
