package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/session"
	"storefront/pkg/logger"
)

type mockStore struct {
	mu sync.Mutex

	selectData []byte
	selectErr  error
	insertErr  error
	patchErr   error
	deleteErr  error

	calls   map[string]int
	inserts []any
	patches []any
	deletes [][]gateway.Filter
}

func newMockStore() *mockStore {
	return &mockStore{calls: map[string]int{}}
}

func (m *mockStore) Select(_ context.Context, collection string, _ gateway.Query) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["select "+collection]++
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	if m.selectData == nil {
		return []byte("[]"), nil
	}
	return m.selectData, nil
}

func (m *mockStore) Insert(_ context.Context, collection string, body any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["insert "+collection]++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserts = append(m.inserts, body)
	return nil
}

func (m *mockStore) Patch(_ context.Context, collection string, _ []gateway.Filter, body any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["patch "+collection]++
	if m.patchErr != nil {
		return m.patchErr
	}
	m.patches = append(m.patches, body)
	return nil
}

func (m *mockStore) Delete(_ context.Context, collection string, filters []gateway.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete "+collection]++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, filters)
	return nil
}

func (m *mockStore) callCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func linesJSON(t *testing.T, lines []domain.CartLine) []byte {
	t.Helper()
	data, err := json.Marshal(lines)
	require.NoError(t, err)
	return data
}

func testLines() []domain.CartLine {
	return []domain.CartLine{
		{RemoteID: "row-1", UserID: "u1", ProductID: "p1", Title: "Keyboard", UnitCost: decimal.RequireFromString("10.00"), Quantity: 2},
		{RemoteID: "row-2", UserID: "u1", ProductID: "p2", Title: "Mouse", UnitCost: decimal.RequireFromString("25.00"), Quantity: 1},
	}
}

func newAggregate(store gateway.Store) *Aggregate {
	return New(store, session.New(session.Static("u1")), logger.Nop())
}

func TestLoad_ReplacesSnapshot(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)

	require.NoError(t, agg.Load(context.Background()))

	lines := agg.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "row-1", lines[0].RemoteID)
	assert.True(t, agg.Contains("p1"))
	assert.True(t, agg.Contains("p2"))
	assert.False(t, agg.Contains("p3"))
}

func TestLoad_Unauthenticated(t *testing.T) {
	store := newMockStore()
	agg := New(store, session.New(session.Static("")), logger.Nop())

	err := agg.Load(context.Background())

	assert.ErrorIs(t, err, session.ErrUnauthenticated)
	assert.Zero(t, store.callCount("select cart"))
}

func TestLoad_RemoteFailureKeepsState(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	store.selectErr = errors.New("boom")
	err := agg.Load(context.Background())

	assert.Error(t, err)
	assert.Len(t, agg.Lines(), 2)
}

func TestAdd_DuplicateIsNoOp(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	err := agg.Add(context.Background(), domain.Product{ID: "p1", Title: "Keyboard"})

	require.NoError(t, err)
	assert.Zero(t, store.callCount("insert cart"))
	assert.Len(t, agg.Lines(), 2)
}

func TestAdd_InsertsWithQuantityOne(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, []domain.CartLine{
		{RemoteID: "row-9", UserID: "u1", ProductID: "p9", Title: "Cable", UnitCost: decimal.RequireFromString("5.50"), Quantity: 1},
	})
	agg := newAggregate(store)

	err := agg.Add(context.Background(), domain.Product{
		ID: "p9", Title: "Cable", UnitCost: decimal.RequireFromString("5.50"),
	})

	require.NoError(t, err)
	require.Equal(t, 1, store.callCount("insert cart"))
	inserted, ok := store.inserts[0].(domain.CartLine)
	require.True(t, ok)
	assert.Equal(t, 1, inserted.Quantity)
	assert.Equal(t, "u1", inserted.UserID)
	assert.Empty(t, inserted.RemoteID)

	// membership updated and the server-assigned id picked up by the reload
	assert.True(t, agg.Contains("p9"))
	require.Len(t, agg.Lines(), 1)
	assert.Equal(t, "row-9", agg.Lines()[0].RemoteID)
}

func TestAdd_RemoteFailureIsRetryable(t *testing.T) {
	store := newMockStore()
	store.insertErr = errors.New("insert failed")
	agg := newAggregate(store)

	err := agg.Add(context.Background(), domain.Product{ID: "p9"})
	require.Error(t, err)
	assert.False(t, agg.Contains("p9"))
	assert.Empty(t, agg.Lines())

	// a retry issues the insert again
	_ = agg.Add(context.Background(), domain.Product{ID: "p9"})
	assert.Equal(t, 2, store.callCount("insert cart"))
}

func TestIncrease_OptimisticThenPatches(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	require.NoError(t, agg.Increase("row-1"))

	assert.Equal(t, 3, agg.Lines()[0].Quantity) // local change is immediate
	agg.Wait()
	require.Equal(t, 1, store.callCount("patch cart"))
	assert.Equal(t, map[string]int{"quantity": 3}, store.patches[0])
}

func TestIncrease_UnknownLine(t *testing.T) {
	store := newMockStore()
	agg := newAggregate(store)

	err := agg.Increase("missing")

	assert.ErrorIs(t, err, ErrLineNotFound)
	agg.Wait()
	assert.Zero(t, store.callCount("patch cart"))
}

func TestDecrease_ClampsAtOne(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	// row-2 has quantity 1: decreasing is a no-op with no remote call
	require.NoError(t, agg.Decrease("row-2"))
	agg.Wait()

	assert.Equal(t, 1, agg.Lines()[1].Quantity)
	assert.Zero(t, store.callCount("patch cart"))
}

func TestDecrease_AboveOnePatches(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	require.NoError(t, agg.Decrease("row-1"))
	agg.Wait()

	assert.Equal(t, 1, agg.Lines()[0].Quantity)
	assert.Equal(t, 1, store.callCount("patch cart"))
}

func TestIncrease_PatchFailureKeepsLocalChange(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	store.patchErr = errors.New("patch failed")
	require.NoError(t, agg.Increase("row-1"))
	agg.Wait()

	assert.Equal(t, 3, agg.Lines()[0].Quantity) // no rollback
	assert.Error(t, agg.LastReconcileError())
}

func TestRemove_LocalFirstThenDeletes(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	agg.Remove("row-1")

	assert.False(t, agg.Contains("p1"))
	assert.Len(t, agg.Lines(), 1)
	agg.Wait()
	require.Equal(t, 1, store.callCount("delete cart"))
	assert.Equal(t, []gateway.Filter{gateway.Eq("id", "row-1")}, store.deletes[0])
}

func TestRemove_UnknownIsNoOp(t *testing.T) {
	store := newMockStore()
	agg := newAggregate(store)

	agg.Remove("missing")
	agg.Wait()

	assert.Zero(t, store.callCount("delete cart"))
}

func TestRemove_DeleteFailureIsNotReverted(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	store.deleteErr = errors.New("delete failed")
	agg.Remove("row-1")
	agg.Wait()

	assert.False(t, agg.Contains("p1"))
	assert.Len(t, agg.Lines(), 1)
	assert.Error(t, agg.LastReconcileError())
}

func TestSnapshotForCheckout(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	snapshot := agg.SnapshotForCheckout()

	require.Len(t, snapshot, 2)
	assert.Empty(t, snapshot[0].OrderID)
	assert.Equal(t, "p1", snapshot[0].ProductID)
	assert.Equal(t, 2, snapshot[0].Quantity)
	assert.True(t, snapshot[0].UnitCost.Equal(decimal.RequireFromString("10.00")))

	// mutating the snapshot must not leak into the aggregate
	snapshot[0].Quantity = 99
	assert.Equal(t, 2, agg.Lines()[0].Quantity)
}

func TestClearRemote_SuccessResetsLocalState(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	require.NoError(t, agg.ClearRemote(context.Background()))

	assert.Empty(t, agg.Lines())
	assert.False(t, agg.Contains("p1"))
	assert.Equal(t, 1, store.callCount("delete cart"))
}

func TestClearRemote_FailureKeepsLocalState(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	store.deleteErr = errors.New("delete failed")
	err := agg.ClearRemote(context.Background())

	assert.Error(t, err)
	assert.Len(t, agg.Lines(), 2)
	assert.True(t, agg.Contains("p1"))
}

func TestMembershipSetTracksLines(t *testing.T) {
	store := newMockStore()
	store.selectData = linesJSON(t, testLines())
	agg := newAggregate(store)
	require.NoError(t, agg.Load(context.Background()))

	agg.Remove("row-1")
	assert.False(t, agg.Contains("p1"))
	assert.True(t, agg.Contains("p2"))

	agg.Remove("row-2")
	assert.False(t, agg.Contains("p2"))
	assert.Empty(t, agg.Lines())
	agg.Wait()
}
