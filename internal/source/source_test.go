package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/eventagg/internal/cache"
	apperrors "github.com/arkilian/eventagg/internal/errors"
	"github.com/arkilian/eventagg/internal/storage"
	"github.com/arkilian/eventagg/pkg/types"
)

func sampleEvents() []types.Event {
	return []types.Event{
		{
			EventName: "page_view", EventTimestamp: 1704067200000000, EventDate: "20240101", UserPseudoID: "u1",
			Params: []types.Param{
				{Key: "page_location", Value: types.StringValue("/home")},
				{Key: "ga_session_id", Value: types.IntValue(7)},
				{Key: "page_location", Value: types.StringValue("/shadowed")},
			},
		},
		{
			EventName: "purchase", EventTimestamp: 1704067260000000, EventDate: "20240101", UserPseudoID: "u2",
			Params: []types.Param{{Key: "transaction_id", Value: types.StringValue("T1")}},
			Items: []types.Item{
				{ItemID: "sku-1", ItemName: "apple", Quantity: 2, Price: decimal.RequireFromString("1.25")},
				{ItemID: "sku-2", ItemName: "pear", Quantity: 1, Price: decimal.RequireFromString("3.10")},
			},
		},
		{EventName: "page_view", EventTimestamp: 1704153600000000, EventDate: "20240102", UserPseudoID: "u1"},
	}
}

func collect(t *testing.T, p Provider, req ScanRequest) []types.Event {
	t.Helper()
	var out []types.Event
	require.NoError(t, p.Scan(context.Background(), req, func(ev *types.Event) error {
		out = append(out, *ev)
		return nil
	}))
	return out
}

func TestMemoryProvider_Scan(t *testing.T) {
	p := NewMemoryProvider(sampleEvents()...)

	all := collect(t, p, ScanRequest{Range: types.DateRange{Start: "20240101", End: "20240102"}})
	require.Len(t, all, 3)
	assert.Equal(t, "20240102", all[2].EventDate)

	views := collect(t, p, ScanRequest{
		Range:      types.DateRange{Start: "20240101", End: "20240102"},
		EventNames: []string{"page_view"},
	})
	assert.Len(t, views, 2)

	err := p.Scan(context.Background(), ScanRequest{Range: types.DateRange{Start: "20240103", End: "20240103"}},
		func(*types.Event) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePartitionNotFound, apperrors.GetCode(err))
	assert.ErrorIs(t, err, ErrPartitionNotFound)
	assert.False(t, apperrors.IsRetryable(err))

	p.AddPartition("20240103")
	assert.Empty(t, collect(t, p, ScanRequest{Range: types.DateRange{Start: "20240103", End: "20240103"}}))
}

func TestMemoryProvider_CallbackErrorStopsScan(t *testing.T) {
	p := NewMemoryProvider(sampleEvents()...)
	stop := errors.New("stop")
	calls := 0
	err := p.Scan(context.Background(), ScanRequest{Range: types.DateRange{Start: "20240101", End: "20240102"}},
		func(*types.Event) error {
			calls++
			return stop
		})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestPartitionWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	groups, dates := GroupByDate(sampleEvents())
	require.Equal(t, []string{"20240101", "20240102"}, dates)

	w := NewPartitionWriter(dir)
	info, err := w.Write(context.Background(), "20240101", groups["20240101"])
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.RowCount)
	assert.Equal(t, filepath.Join(dir, "20240101.sqlite"), info.Path)
	assert.True(t, strings.HasPrefix(info.PartitionID, "events:20240101:"))
	assert.Greater(t, info.SizeBytes, int64(0))

	p := NewSQLiteProvider(dir)
	got := collect(t, p, ScanRequest{Range: types.DateRange{Start: "20240101", End: "20240101"}})
	require.Len(t, got, 2)

	// record order and param order survive storage
	assert.Equal(t, "page_view", got[0].EventName)
	loc, ok := got[0].Param("page_location")
	require.True(t, ok)
	assert.True(t, loc.Equal(types.StringValue("/home")))
	require.Len(t, got[1].Items, 2)
	assert.True(t, got[1].Items[0].Price.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, int64(2), got[1].Items[0].Quantity)

	purchases := collect(t, p, ScanRequest{
		Range:      types.DateRange{Start: "20240101", End: "20240101"},
		EventNames: []string{"purchase"},
	})
	require.Len(t, purchases, 1)
	assert.Equal(t, "u2", purchases[0].UserPseudoID)

	err = p.Scan(context.Background(), ScanRequest{Range: types.DateRange{Start: "20240102", End: "20240102"}},
		func(*types.Event) error { return nil })
	assert.Equal(t, apperrors.CodePartitionNotFound, apperrors.GetCode(err))
}

func TestPartitionWriter_RejectsForeignDate(t *testing.T) {
	w := NewPartitionWriter(t.TempDir())
	_, err := w.Write(context.Background(), "20240102", sampleEvents()[:1])
	assert.Error(t, err)

	_, err = w.Write(context.Background(), "2024-01-02", nil)
	assert.ErrorIs(t, err, types.ErrInvalidDate)
}

func TestSQLiteProvider_CorruptFileIsReadFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20240101.sqlite"), []byte("not a database"), 0644))

	err := NewSQLiteProvider(dir).Scan(context.Background(),
		ScanRequest{Range: types.DateRange{Start: "20240101", End: "20240101"}},
		func(*types.Event) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePartitionReadFailed, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestObjectStoreProvider(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	groups, dates := GroupByDate(sampleEvents())
	w := NewPartitionWriter(t.TempDir())
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), 0)
	require.NoError(t, err)
	p := NewObjectStoreProvider(store, c)
	for _, d := range dates {
		info, err := w.Write(ctx, d, groups[d])
		require.NoError(t, err)
		require.NoError(t, p.Publish(ctx, info))
	}

	listed, err := p.Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, dates, listed)

	got := collect(t, p, ScanRequest{Range: types.DateRange{Start: "20240101", End: "20240102"}})
	assert.Len(t, got, 3)

	// second scan is served from the cache
	require.NoError(t, store.Delete(ctx, p.ObjectPath("20240102")))
	assert.Len(t, collect(t, p, ScanRequest{Range: types.DateRange{Start: "20240102", End: "20240102"}}), 1)
	hits, misses, _ := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)

	// republishing drops the cached copy
	info, err := w.Write(ctx, "20240102", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, info))
	assert.Empty(t, collect(t, p, ScanRequest{Range: types.DateRange{Start: "20240102", End: "20240102"}}))

	err = p.Scan(ctx, ScanRequest{Range: types.DateRange{Start: "20240105", End: "20240105"}},
		func(*types.Event) error { return nil })
	assert.Equal(t, apperrors.CodePartitionNotFound, apperrors.GetCode(err))
}

func TestReadNDJSON(t *testing.T) {
	input := `{"event_name":"page_view","event_timestamp":1704164645000000,"user_pseudo_id":"u1","event_params":[{"key":"ga_session_id","value":{"int_value":3}}]}

{"event_name":"purchase","event_timestamp":1704164646000000,"event_date":"20240102","user_pseudo_id":"u2","items":[{"item_id":"a","item_name":"apple","quantity":1,"price":"0.99"}]}
`
	events, err := ReadNDJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "20240102", events[0].EventDate)
	sid, ok := events[0].Param("ga_session_id")
	require.True(t, ok)
	assert.True(t, sid.Equal(types.IntValue(3)))
	assert.True(t, events[1].Items[0].Price.Equal(decimal.RequireFromString("0.99")))

	_, err = ReadNDJSON(strings.NewReader("{broken\n"))
	assert.Error(t, err)
}

func TestDates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dates, err := NewSQLiteProvider(filepath.Join(dir, "absent")).Dates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)

	groups, _ := GroupByDate(sampleEvents())
	w := NewPartitionWriter(dir)
	for _, d := range []string{"20240102", "20240101"} {
		_, err := w.Write(ctx, d, groups[d])
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest.sqlite"), nil, 0644))

	dates, err = NewSQLiteProvider(dir).Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101", "20240102"}, dates)

	mem := NewMemoryProvider(sampleEvents()...)
	mem.AddPartition("20231231")
	dates, err = mem.Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20231231", "20240101", "20240102"}, dates)
}
