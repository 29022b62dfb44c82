package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/domain"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

var (
	turmaA = domain.Destination{ID: "a@g.us", Name: "Turma A"}
	turmaB = domain.Destination{ID: "b@g.us", Name: "Turma B"}
	turmaC = domain.Destination{ID: "c@g.us", Name: "Turma C"}
)

func assertDisjoint(t *testing.T, r *Registry) {
	t.Helper()
	ctx := context.Background()
	seen := map[string]bool{}
	for _, d := range r.Synchronized(ctx) {
		seen[d.ID] = true
	}
	for _, d := range r.NotSynchronized(ctx) {
		assert.False(t, seen[d.ID], "id %s present in both partitions", d.ID)
	}
}

func ids(list []domain.Destination) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.ID)
	}
	return out
}

func TestReconcileNeverPrunesSynchronized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := New(storage.NewMemory(), logx.Nop())

	require.NoError(t, r.Promote(ctx, turmaA))
	synced, err := r.Reconcile(ctx, []domain.Destination{turmaB, turmaC}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a@g.us"}, ids(synced))
	assert.Equal(t, []string{"b@g.us", "c@g.us"}, ids(r.NotSynchronized(ctx)))
	assertDisjoint(t, r)
}

func TestReconcileExcludesSynchronizedFromPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := New(storage.NewMemory(), logx.Nop())

	require.NoError(t, r.Promote(ctx, turmaB))
	_, err := r.Reconcile(ctx, []domain.Destination{turmaA, turmaB, turmaA}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a@g.us"}, ids(r.NotSynchronized(ctx)))
	assertDisjoint(t, r)
}

func TestReconcileFetchFailureOnlyDedups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	_, err := storage.SaveJSON(ctx, mem, storage.KeySynchronized, []domain.Destination{turmaA, turmaA, turmaB})
	require.NoError(t, err)
	_, err = storage.SaveJSON(ctx, mem, storage.KeyNotSynchronized, []domain.Destination{turmaC})
	require.NoError(t, err)

	r := New(mem, logx.Nop())
	synced, err := r.Reconcile(ctx, nil, errors.New("listing timed out"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a@g.us", "b@g.us"}, ids(synced))
	assert.Equal(t, 2, mem.Writes(storage.KeySynchronized), "dedup must be written back")
	assert.Equal(t, []string{"c@g.us"}, ids(r.NotSynchronized(ctx)))
	assert.Equal(t, 1, mem.Writes(storage.KeyNotSynchronized))
}

func TestPromoteDemoteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	initial := map[string]func(r *Registry){
		"absent":          func(r *Registry) {},
		"pending":         func(r *Registry) { _, _ = r.Reconcile(ctx, []domain.Destination{turmaA}, nil) },
		"synchronized":    func(r *Registry) { _ = r.Promote(ctx, turmaA) },
		"double promoted": func(r *Registry) { _ = r.Promote(ctx, turmaA); _ = r.Promote(ctx, turmaA) },
	}
	for name, setup := range initial {
		t.Run(name, func(t *testing.T) {
			r := New(storage.NewMemory(), logx.Nop())
			setup(r)

			require.NoError(t, r.Promote(ctx, turmaA))
			assertDisjoint(t, r)
			require.NoError(t, r.Demote(ctx, turmaA))
			assertDisjoint(t, r)

			assert.NotContains(t, ids(r.Synchronized(ctx)), turmaA.ID)
			assert.Equal(t, []string{turmaA.ID}, ids(r.NotSynchronized(ctx)))
		})
	}
}

func TestPromoteIsIdempotentAndSkipsUnchangedWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	r := New(mem, logx.Nop())

	require.NoError(t, r.Promote(ctx, turmaA))
	require.NoError(t, r.Promote(ctx, turmaA))

	assert.Equal(t, []domain.Destination{turmaA}, r.Synchronized(ctx))
	assert.Equal(t, 1, mem.Writes(storage.KeySynchronized))
	assert.Equal(t, 1, mem.Writes(storage.KeyNotSynchronized))
}

func TestPromoteValidatesInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	r := New(mem, logx.Nop())

	err := r.Promote(ctx, domain.Destination{ID: "x@g.us"})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	err = r.Demote(ctx, domain.Destination{Name: "Sem id"})
	assert.True(t, domain.IsValidation(err))

	assert.Zero(t, mem.Writes(storage.KeySynchronized))
	assert.Zero(t, mem.Writes(storage.KeyNotSynchronized))
}

func TestCorruptDocumentReadsAsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	_, err := mem.Save(ctx, storage.KeySynchronized, []byte("[{oops"))
	require.NoError(t, err)

	r := New(mem, logx.Nop())
	assert.Empty(t, r.Synchronized(ctx))
	require.NoError(t, r.Promote(ctx, turmaB))
	assert.Equal(t, []domain.Destination{turmaB}, r.Synchronized(ctx))
}
