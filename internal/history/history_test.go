package history

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func newTestStore(mem *storage.Memory) *Store {
	s := NewStore(mem, logx.Nop())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return s
}

func TestAppendTruncatesToNewest50(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(storage.NewMemory())

	for i := 1; i <= 60; i++ {
		require.NoError(t, s.Append(ctx, "a@g.us", "Turma A", fmt.Sprintf("msg %d", i)))
	}

	entries := s.Snapshot(ctx)["a@g.us"]
	require.Len(t, entries, MaxPerDestination)
	assert.Equal(t, "msg 11", entries[0].Message)
	assert.Equal(t, "msg 60", entries[len(entries)-1].Message)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].SentAt.After(entries[i-1].SentAt))
	}
}

func TestRecentWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(storage.NewMemory())

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.Append(ctx, "a@g.us", "Turma A", fmt.Sprintf("  msg %d \n", i)))
	}
	recent := s.Recent(ctx, "a@g.us", DefaultWindow)
	require.Len(t, recent, 10)
	assert.Equal(t, "msg 3", recent[0])
	assert.Equal(t, "msg 12", recent[9])

	assert.Empty(t, s.Recent(ctx, "other@g.us", DefaultWindow))
}

func TestPaginateNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(storage.NewMemory())

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Append(ctx, "a@g.us", "Turma A", fmt.Sprintf("a%d", i)))
		require.NoError(t, s.Append(ctx, "b@g.us", "Turma B", fmt.Sprintf("b%d", i)))
	}

	p := s.Paginate(ctx, 1, 4)
	assert.Equal(t, 6, p.Total)
	assert.Equal(t, 2, p.TotalPages)
	require.Len(t, p.Items, 4)
	assert.Equal(t, "b3", p.Items[0].Message)
	assert.Equal(t, "a3", p.Items[1].Message)

	p = s.Paginate(ctx, 2, 4)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "a1", p.Items[1].Message)

	p = s.Paginate(ctx, 9, 4)
	assert.Empty(t, p.Items)
	assert.Equal(t, 9, p.Page)

	p = s.Paginate(ctx, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Items, 6)
}

func TestPaginateOutOfRangeInputs(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{}
	for i := range 6 {
		snap["a@g.us"] = append(snap["a@g.us"], Entry{DestinationName: "Turma A", Message: fmt.Sprintf("a%d", i), SentAt: base.Add(time.Duration(i) * time.Minute)})
	}

	cases := []struct {
		name       string
		page, size int
		items      int
		totalPages int
	}{
		{"huge page", 1 << 62, 4, 0, 2},
		{"max page", math.MaxInt, 4, 0, 2},
		{"huge size", 1, math.MaxInt, 6, 1},
		{"size above cap", 1, MaxPageSize + 1, 6, 1},
		{"negative", -5, -5, 6, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p Page
			require.NotPanics(t, func() { p = Paginate(snap, tc.page, tc.size) })
			assert.Len(t, p.Items, tc.items)
			assert.Equal(t, tc.totalPages, p.TotalPages)
			assert.Equal(t, 6, p.Total)
		})
	}

	p := Paginate(Snapshot{}, 1, 10)
	assert.Empty(t, p.Items)
	assert.Zero(t, p.TotalPages)
}

func TestCorruptHistoryReadsAsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	_, err := mem.Save(ctx, storage.KeyHistory, []byte("garbage"))
	require.NoError(t, err)

	s := newTestStore(mem)
	assert.Empty(t, s.Snapshot(ctx))
	require.NoError(t, s.Append(ctx, "a@g.us", "Turma A", "oi"))
	assert.Equal(t, []string{"oi"}, s.Recent(ctx, "a@g.us", 10))
}
