package reconcile

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/simmirror/snapshot"
)

type tileIndices struct {
	terrain *Histogram[uint64, snapshot.Tile, int64]
	tags    *BitmaskHistogram[uint64, snapshot.Tile]
	byTerr  *ReverseIndex[uint64, snapshot.Tile, int64]
	tiles   *Collection[uint64, snapshot.Tile]
}

func newTileIndices() *tileIndices {
	ti := &tileIndices{
		terrain: NewHistogram[uint64](func(t snapshot.Tile) int64 { return t.Terrain }),
		tags:    NewBitmaskHistogram[uint64](func(t snapshot.Tile) uint64 { return t.TerrainTags }),
		byTerr:  NewReverseIndex[uint64](func(t snapshot.Tile) int64 { return t.Terrain }),
	}
	ti.tiles = NewCollection(tileKey,
		Index[uint64, snapshot.Tile](ti.terrain),
		Index[uint64, snapshot.Tile](ti.tags),
		Index[uint64, snapshot.Tile](ti.byTerr))
	return ti
}

// scratch recomputes every index from the collection contents.
func (ti *tileIndices) scratch() (map[int64]int, map[int]int, map[int64][]uint64) {
	terrain := map[int64]int{}
	tags := map[int]int{}
	byTerr := map[int64][]uint64{}
	ti.tiles.Each(func(k uint64, t snapshot.Tile) bool {
		terrain[t.Terrain]++
		for b := 0; b < 64; b++ {
			if t.TerrainTags&(1<<b) != 0 {
				tags[b]++
			}
		}
		byTerr[t.Terrain] = append(byTerr[t.Terrain], k)
		return true
	})
	return terrain, tags, byTerr
}

func (ti *tileIndices) assertConsistent(t *testing.T) {
	t.Helper()
	terrain, tags, byTerr := ti.scratch()
	assert.Equal(t, terrain, ti.terrain.Counts())
	assert.Equal(t, tags, ti.tags.Counts())

	require.Equal(t, len(byTerr), ti.byTerr.Len())
	for terr, want := range byTerr {
		got := ti.byTerr.Keys(terr)
		slices.Sort(got)
		slices.Sort(want)
		assert.Equal(t, want, got, "terrain %d", terr)
		for _, k := range got {
			tile, ok := ti.tiles.Get(k)
			require.True(t, ok)
			assert.Equal(t, terr, tile.Terrain)
		}
	}
}

func TestHistogram_InsertRemoveDeletesZeroBuckets(t *testing.T) {
	ti := newTileIndices()
	ti.tiles.Upsert([]snapshot.Tile{
		{Entity: 1, Terrain: 2, TerrainTags: 0b101},
		{Entity: 2, Terrain: 2, TerrainTags: 0b100},
		{Entity: 3, Terrain: 5},
	})

	assert.Equal(t, map[int64]int{2: 2, 5: 1}, ti.terrain.Counts())
	assert.Equal(t, map[int]int{0: 1, 2: 2}, ti.tags.Counts())

	ti.tiles.Remove([]uint64{3, 1})
	assert.Equal(t, map[int64]int{2: 1}, ti.terrain.Counts())
	assert.Equal(t, map[int]int{2: 1}, ti.tags.Counts())
	assert.Zero(t, ti.terrain.Count(5))
	assert.Equal(t, 1, ti.terrain.Len())
	ti.assertConsistent(t)
}

func TestBitmaskHistogram_HighBits(t *testing.T) {
	ti := newTileIndices()
	ti.tiles.Upsert([]snapshot.Tile{{Entity: 1, TerrainTags: 1<<63 | 1<<31 | 1}})
	assert.Equal(t, map[int]int{0: 1, 31: 1, 63: 1}, ti.tags.Counts())
	assert.Equal(t, 1, ti.tags.Count(63))
}

func TestUpsert_OverwriteMovesBuckets(t *testing.T) {
	ti := newTileIndices()
	ti.tiles.Upsert([]snapshot.Tile{{Entity: 1, Terrain: 1, TerrainTags: 1}})
	ti.tiles.Upsert([]snapshot.Tile{{Entity: 1, Terrain: 4, TerrainTags: 2}})

	assert.Equal(t, map[int64]int{4: 1}, ti.terrain.Counts())
	assert.Equal(t, map[int]int{1: 1}, ti.tags.Counts())
	assert.Empty(t, ti.byTerr.Keys(1))
	assert.Equal(t, []uint64{1}, ti.byTerr.Keys(4))
}

func TestUpsert_Idempotent(t *testing.T) {
	batch := []snapshot.Tile{
		{Entity: 1, Terrain: 1, TerrainTags: 3},
		{Entity: 2, Terrain: 1, TerrainTags: 1},
		{Entity: 3, Terrain: 2},
	}
	ti := newTileIndices()
	ti.tiles.Upsert(batch)
	terrain, tags := ti.terrain.Counts(), ti.tags.Counts()
	keys := ti.byTerr.Keys(1)

	ti.tiles.Upsert(batch)
	assert.Equal(t, terrain, ti.terrain.Counts())
	assert.Equal(t, tags, ti.tags.Counts())
	assert.Equal(t, keys, ti.byTerr.Keys(1))
	assert.Equal(t, 3, ti.tiles.Len())
}

func TestUpsert_LastDuplicateWins(t *testing.T) {
	ti := newTileIndices()
	applied, skipped := ti.tiles.Upsert([]snapshot.Tile{
		{Entity: 1, Terrain: 1},
		{Entity: 1, Terrain: 9},
	})
	assert.Equal(t, 2, applied)
	assert.Zero(t, skipped)

	tile, ok := ti.tiles.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(9), tile.Terrain)
	assert.Equal(t, map[int64]int{9: 1}, ti.terrain.Counts())
}

func TestRemove_IdempotentAndSkipsUnknown(t *testing.T) {
	ti := newTileIndices()
	ti.tiles.Upsert([]snapshot.Tile{{Entity: 1, Terrain: 1}})

	assert.Equal(t, 1, ti.tiles.Remove([]uint64{1, 99}))
	assert.Zero(t, ti.tiles.Remove([]uint64{1}))
	assert.Zero(t, ti.tiles.Len())
	assert.Empty(t, ti.terrain.Counts())
	assert.Zero(t, ti.byTerr.Len())
}

func TestRebuild_ReplacesContents(t *testing.T) {
	ti := newTileIndices()
	ti.tiles.Upsert([]snapshot.Tile{{Entity: 1, Terrain: 1}, {Entity: 2, Terrain: 1}})

	applied, skipped := ti.tiles.Rebuild([]snapshot.Tile{{Entity: 3, Terrain: 7}, {Entity: -1}})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, skipped)
	assert.False(t, ti.tiles.Has(1))
	assert.Equal(t, map[int64]int{7: 1}, ti.terrain.Counts())
	ti.assertConsistent(t)

	ti.tiles.Rebuild([]snapshot.Tile{})
	assert.Zero(t, ti.tiles.Len())
	assert.Empty(t, ti.terrain.Counts())
}

func TestIndices_IncrementalMatchesScratchUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ti := newTileIndices()

	randomTile := func() snapshot.Tile {
		return snapshot.Tile{
			Entity:      rng.Int63n(40),
			Terrain:     rng.Int63n(6),
			TerrainTags: rng.Uint64() & 0xF00F,
		}
	}

	for step := 0; step < 500; step++ {
		switch rng.Intn(10) {
		case 0:
			batch := make([]snapshot.Tile, rng.Intn(30))
			for i := range batch {
				batch[i] = randomTile()
			}
			ti.tiles.Rebuild(batch)
		case 1, 2, 3:
			var keys []uint64
			for i := 0; i < rng.Intn(5); i++ {
				keys = append(keys, uint64(rng.Int63n(40)))
			}
			ti.tiles.Remove(keys)
		default:
			batch := make([]snapshot.Tile, 1+rng.Intn(5))
			for i := range batch {
				batch[i] = randomTile()
			}
			ti.tiles.Upsert(batch)
		}
		if step%25 == 0 {
			ti.assertConsistent(t)
		}
	}
	ti.assertConsistent(t)
}

func TestReverseIndex_SwapRemoveKeepsPositions(t *testing.T) {
	idx := NewReverseIndex[uint64](func(t snapshot.Tile) int64 { return t.Terrain })
	tiles := []snapshot.Tile{{Entity: 1}, {Entity: 2}, {Entity: 3}, {Entity: 4}}
	for _, tile := range tiles {
		idx.Insert(uint64(tile.Entity), tile)
	}

	idx.Remove(1, tiles[0])
	idx.Remove(3, tiles[2])
	// removing an absent key is a no-op
	idx.Remove(1, tiles[0])

	got := idx.Keys(0)
	slices.Sort(got)
	assert.Equal(t, []uint64{2, 4}, got)

	idx.Remove(4, tiles[3])
	idx.Remove(2, tiles[1])
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.Values())
}
