// Package reconcile mirrors the simulation collections from decoded
// snapshots and keeps derived indices in step with every mutation.
//
// Each category is a Collection keyed by record identity. A full snapshot
// rebuilds the categories it carries; a delta upserts and removes records.
// Records without a valid key (negative ids) are skipped and counted.
//
// The tile collection carries three indices updated in the same operation:
// a terrain histogram, a per-bit terrain tag histogram and a terrain to tile
// reverse index. Rebuilding never diverges from applying the equivalent
// sequence of upserts and removes.
//
//	r := reconcile.New(reconcile.Deps{Logger: logger})
//	cs := r.ApplySnapshot(s)
//	if cs.Changed(reconcile.Tiles) {
//		counts := r.TerrainHistogram.Counts()
//		_ = counts
//	}
package reconcile
