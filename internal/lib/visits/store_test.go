package visits

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverymap/server/internal/kv"
	"github.com/deliverymap/server/internal/lib/geo"
)

func TestGridKey_RoundsToFourDecimals(t *testing.T) {
	a := geo.Point{Latitude: 35.00004, Longitude: 135.00004}
	b := geo.Point{Latitude: 35.00001, Longitude: 134.99996}

	assert.Equal(t, "35.0000,135.0000", GridKey(a))
	assert.Equal(t, "35.0000,135.0000", GridKey(b))
}

func TestStore_RecordDwellAggregates(t *testing.T) {
	store := NewStore(kv.NewMemStore(), nil)

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)

	// Two dwells within the same ~11m grid cell collapse into one record.
	store.RecordDwell(geo.Point{Latitude: 35.00001, Longitude: 135.00001}, first)
	store.RecordDwell(geo.Point{Latitude: 35.00003, Longitude: 135.00002}, second)

	require.Equal(t, 1, store.Len())
	loc := store.List(0)[0]
	assert.Equal(t, 2, loc.VisitCount)
	assert.Equal(t, first, loc.FirstVisit)
	assert.Equal(t, second, loc.LastVisit)
}

func TestStore_ListSortedByVisitCount(t *testing.T) {
	store := NewStore(kv.NewMemStore(), nil)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	busy := geo.Point{Latitude: 35.0100, Longitude: 135.0100}
	quiet := geo.Point{Latitude: 35.0200, Longitude: 135.0200}

	store.RecordDwell(quiet, at)
	for i := 0; i < 3; i++ {
		store.RecordDwell(busy, at.Add(time.Duration(i)*time.Hour))
	}

	list := store.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].VisitCount)
	assert.Equal(t, GridKey(busy), list[0].Key)

	limited := store.List(1)
	require.Len(t, limited, 1)
	assert.Equal(t, GridKey(busy), limited[0].Key)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	kvStore := kv.NewMemStore()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	store := NewStore(kvStore, nil)
	store.RecordDwell(geo.Point{Latitude: 35.0116, Longitude: 135.7681}, at)
	store.RecordDwell(geo.Point{Latitude: 35.0116, Longitude: 135.7681}, at.Add(time.Hour))
	require.NoError(t, store.Save())

	restored := NewStore(kvStore, nil)
	require.NoError(t, restored.Load())

	require.Equal(t, 1, restored.Len())
	loc := restored.List(0)[0]
	assert.Equal(t, 2, loc.VisitCount)
	assert.True(t, loc.FirstVisit.Equal(at))
}

func TestStore_LoadMissingKeyIsEmpty(t *testing.T) {
	store := NewStore(kv.NewMemStore(), nil)
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
}

func TestStore_WriteKML(t *testing.T) {
	store := NewStore(kv.NewMemStore(), nil)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store.RecordDwell(geo.Point{Latitude: 35.0116, Longitude: 135.7681}, at)

	var buf bytes.Buffer
	require.NoError(t, store.WriteKML(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "<Placemark>"))
	assert.True(t, strings.Contains(out, "1 visits"))
	assert.True(t, strings.Contains(out, "135.7681"))
}
