package reconcile

import (
	"log/slog"
	"time"

	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/snapshot"
)

// Batch kinds reported in a ChangeSet.
const (
	KindSnapshot = "snapshot"
	KindDelta    = "delta"
)

// CategoryChange summarises what one batch did to one collection.
type CategoryChange struct {
	Category Category
	Rebuilt  bool
	Upserted int
	Removed  int
	Skipped  int
}

// ChangeSet lists the collections and scalar payloads touched by one batch.
// Categories whose keys were absent are not listed.
type ChangeSet struct {
	Kind    string
	Changes []CategoryChange
	Scalars []string
}

// Empty reports whether the batch touched nothing.
func (cs ChangeSet) Empty() bool {
	return len(cs.Changes) == 0 && len(cs.Scalars) == 0
}

// Change returns the entry for cat.
func (cs ChangeSet) Change(cat Category) (CategoryChange, bool) {
	for _, c := range cs.Changes {
		if c.Category == cat {
			return c, true
		}
	}
	return CategoryChange{}, false
}

// Changed reports whether cat appears in the change set.
func (cs ChangeSet) Changed(cat Category) bool {
	_, ok := cs.Change(cat)
	return ok
}

// Deps holds runtime dependencies for a Reconciler
type Deps struct {
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Reconciler mirrors the simulation collections and the latest scalar
// payloads. It is driven from the tick goroutine and is not safe for
// concurrent use.
type Reconciler struct {
	Influencers            *Collection[uint64, snapshot.Influencer]
	TradeLinks             *Collection[uint64, snapshot.TradeLink]
	PowerNodes             *Collection[uint64, snapshot.PowerNode]
	GreatDiscoveries       *Collection[uint64, snapshot.GreatDiscovery]
	GreatDiscoveryProgress *Collection[DiscoveryKey, snapshot.GreatDiscoveryProgress]
	DiscoveryProgress      *Collection[DiscoveryKey, snapshot.DiscoveryProgress]
	Tiles                  *Collection[uint64, snapshot.Tile]
	CultureLayers          *Collection[uint64, snapshot.CultureLayer]

	// Tile indices, updated in the same operation as Tiles.
	TerrainHistogram *Histogram[uint64, snapshot.Tile, int64]
	TagHistogram     *BitmaskHistogram[uint64, snapshot.Tile]
	TerrainIndex     *ReverseIndex[uint64, snapshot.Tile, int64]

	// Discovery progress grouped by faction.
	ProgressByFaction *ReverseIndex[DiscoveryKey, snapshot.DiscoveryProgress, uint32]

	turn         *int64
	grid         *snapshot.Grid
	axisBias     *snapshot.AxisBias
	sentiment    snapshot.Sentiment
	powerMetrics *snapshot.PowerMetrics
	telemetry    *snapshot.GreatDiscoveryTelemetry
	overlays     snapshot.Overlays
	tensions     []snapshot.CultureTension
	catalog      map[uint64]snapshot.GreatDiscoveryDefinition

	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates an empty reconciler.
func New(deps Deps) *Reconciler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	r := &Reconciler{
		TerrainHistogram: NewHistogram[uint64](func(t snapshot.Tile) int64 { return t.Terrain }),
		TagHistogram:     NewBitmaskHistogram[uint64](func(t snapshot.Tile) uint64 { return t.TerrainTags }),
		TerrainIndex:     NewReverseIndex[uint64](func(t snapshot.Tile) int64 { return t.Terrain }),
		ProgressByFaction: NewReverseIndex[DiscoveryKey](func(p snapshot.DiscoveryProgress) uint32 {
			return uint32(p.Faction)
		}),
		catalog: make(map[uint64]snapshot.GreatDiscoveryDefinition),
		logger:  logger.With("component", "reconciler"),
		metrics: metrics,
	}

	r.Influencers = NewCollection(influencerKey)
	r.TradeLinks = NewCollection(tradeLinkKey)
	r.PowerNodes = NewCollection(powerNodeKey)
	r.GreatDiscoveries = NewCollection(greatDiscoveryKey)
	r.GreatDiscoveryProgress = NewCollection(greatDiscoveryProgressKey)
	r.DiscoveryProgress = NewCollection(discoveryProgressKey,
		Index[DiscoveryKey, snapshot.DiscoveryProgress](r.ProgressByFaction))
	r.Tiles = NewCollection(tileKey,
		Index[uint64, snapshot.Tile](r.TerrainHistogram),
		Index[uint64, snapshot.Tile](r.TagHistogram),
		Index[uint64, snapshot.Tile](r.TerrainIndex))
	r.CultureLayers = NewCollection(cultureLayerKey)
	return r
}

// Apply dispatches s to ApplyDelta or ApplySnapshot.
func (r *Reconciler) Apply(s *snapshot.Snapshot) ChangeSet {
	if s.IsDelta() {
		return r.ApplyDelta(s)
	}
	return r.ApplySnapshot(s)
}

// ApplySnapshot rebuilds every collection whose full key is present and
// stores the scalar payloads present in s.
func (r *Reconciler) ApplySnapshot(s *snapshot.Snapshot) ChangeSet {
	start := time.Now()
	cs := ChangeSet{Kind: KindSnapshot}
	if s == nil {
		return cs
	}

	rebuild(&cs, Influencers, r.Influencers, s.Influencers)
	rebuild(&cs, TradeLinks, r.TradeLinks, s.TradeLinks)
	rebuild(&cs, PowerNodes, r.PowerNodes, s.PowerNodes)
	rebuild(&cs, GreatDiscoveries, r.GreatDiscoveries, s.GreatDiscoveries)
	rebuild(&cs, GreatDiscoveryProgress, r.GreatDiscoveryProgress, s.GreatDiscoveryProgress)
	rebuild(&cs, DiscoveryProgress, r.DiscoveryProgress, s.DiscoveryProgress)
	rebuild(&cs, Tiles, r.Tiles, s.Tiles)
	rebuild(&cs, CultureLayers, r.CultureLayers, s.CultureLayers)

	r.applyScalars(&cs, s)
	r.finish(cs, start)
	return cs
}

// ApplyDelta applies the *_updates and *_removed keys present in s. Within a
// category updates are applied before removals. Full collection keys are
// ignored.
func (r *Reconciler) ApplyDelta(s *snapshot.Snapshot) ChangeSet {
	start := time.Now()
	cs := ChangeSet{Kind: KindDelta}
	if s == nil {
		return cs
	}

	patch(&cs, Influencers, r.Influencers, s.InfluencerUpdates, s.InfluencerRemoved != nil,
		idKeys(s.InfluencerRemoved), skippedIDs(s.InfluencerRemoved))
	patch(&cs, TradeLinks, r.TradeLinks, s.TradeLinkUpdates, s.TradeLinkRemoved != nil,
		idKeys(s.TradeLinkRemoved), skippedIDs(s.TradeLinkRemoved))
	patch(&cs, PowerNodes, r.PowerNodes, s.PowerUpdates, s.PowerRemoved != nil,
		idKeys(s.PowerRemoved), skippedIDs(s.PowerRemoved))
	patch(&cs, GreatDiscoveries, r.GreatDiscoveries, s.GreatDiscoveryUpdates, s.GreatDiscoveryRemoved != nil,
		idKeys(s.GreatDiscoveryRemoved), skippedIDs(s.GreatDiscoveryRemoved))
	gdpRemoved := refKeys(s.GreatDiscoveryProgressRemoved)
	patch(&cs, GreatDiscoveryProgress, r.GreatDiscoveryProgress, s.GreatDiscoveryProgressUpdates,
		s.GreatDiscoveryProgressRemoved != nil, gdpRemoved,
		len(s.GreatDiscoveryProgressRemoved)-len(gdpRemoved))
	dpRemoved := refKeys(s.DiscoveryProgressRemoved)
	patch(&cs, DiscoveryProgress, r.DiscoveryProgress, s.DiscoveryProgressUpdates,
		s.DiscoveryProgressRemoved != nil, dpRemoved,
		len(s.DiscoveryProgressRemoved)-len(dpRemoved))
	patch(&cs, Tiles, r.Tiles, s.TileUpdates, s.TileRemoved != nil,
		idKeys(s.TileRemoved), skippedIDs(s.TileRemoved))
	patch(&cs, CultureLayers, r.CultureLayers, s.CultureLayerUpdates, s.CultureLayerRemoved != nil,
		idKeys(s.CultureLayerRemoved), skippedIDs(s.CultureLayerRemoved))

	r.applyScalars(&cs, s)
	r.finish(cs, start)
	return cs
}

func rebuild[K comparable, V any](cs *ChangeSet, cat Category, c *Collection[K, V], records []V) {
	if records == nil {
		return
	}
	applied, skipped := c.Rebuild(records)
	cs.Changes = append(cs.Changes, CategoryChange{
		Category: cat,
		Rebuilt:  true,
		Upserted: applied,
		Skipped:  skipped,
	})
}

func patch[K comparable, V any](cs *ChangeSet, cat Category, c *Collection[K, V],
	updates []V, hasRemovals bool, removals []K, badRemovals int) {
	if updates == nil && !hasRemovals {
		return
	}
	applied, skipped := c.Upsert(updates)
	removed := c.Remove(removals)
	cs.Changes = append(cs.Changes, CategoryChange{
		Category: cat,
		Upserted: applied,
		Removed:  removed,
		Skipped:  skipped + badRemovals,
	})
}

func skippedIDs(ids []int64) int {
	n := 0
	for _, id := range ids {
		if id < 0 {
			n++
		}
	}
	return n
}

func (r *Reconciler) applyScalars(cs *ChangeSet, s *snapshot.Snapshot) {
	if s.Turn != nil {
		turn := *s.Turn
		r.turn = &turn
		cs.Scalars = append(cs.Scalars, "turn")
	}
	if s.Grid != nil {
		grid := *s.Grid
		r.grid = &grid
		cs.Scalars = append(cs.Scalars, "grid")
	}
	if s.AxisBias != nil {
		bias := *s.AxisBias
		r.axisBias = &bias
		cs.Scalars = append(cs.Scalars, "axis_bias")
	}
	if s.Sentiment != nil {
		r.sentiment = s.Sentiment
		cs.Scalars = append(cs.Scalars, "sentiment")
	}
	if s.PowerMetrics != nil {
		pm := *s.PowerMetrics
		r.powerMetrics = &pm
		cs.Scalars = append(cs.Scalars, "power_metrics")
	}
	if s.GreatDiscoveryTelemetry != nil {
		tel := *s.GreatDiscoveryTelemetry
		r.telemetry = &tel
		cs.Scalars = append(cs.Scalars, "great_discovery_telemetry")
	}
	if s.Overlays != nil {
		r.overlays = s.Overlays
		cs.Scalars = append(cs.Scalars, "overlays")
	}
	if s.CultureTensions != nil {
		r.tensions = s.CultureTensions
		cs.Scalars = append(cs.Scalars, "culture_tensions")
	}
	if s.GreatDiscoveryCatalog != nil {
		for _, def := range s.GreatDiscoveryCatalog {
			if id, ok := idKey(def.ID); ok {
				r.catalog[id] = def
			}
		}
		cs.Scalars = append(cs.Scalars, "great_discovery_definitions")
	}
}

func (r *Reconciler) finish(cs ChangeSet, start time.Time) {
	skipped := 0
	for _, c := range cs.Changes {
		skipped += c.Skipped
		if r.metrics == nil {
			continue
		}
		op := "upsert"
		if c.Rebuilt {
			op = "rebuild"
		}
		r.metrics.RecordApplied(string(c.Category), op, c.Upserted)
		r.metrics.RecordApplied(string(c.Category), "remove", c.Removed)
		r.metrics.RecordSkipped(string(c.Category), c.Skipped)
	}
	if r.metrics != nil {
		r.metrics.RecordBatch(cs.Kind, time.Since(start))
	}
	if skipped > 0 {
		r.logger.Debug("Skipped records without a valid key", "kind", cs.Kind, "skipped", skipped)
	}
}

// Reset clears every collection, index and scalar. Call it at a session
// boundary.
func (r *Reconciler) Reset() {
	r.Influencers.Clear()
	r.TradeLinks.Clear()
	r.PowerNodes.Clear()
	r.GreatDiscoveries.Clear()
	r.GreatDiscoveryProgress.Clear()
	r.DiscoveryProgress.Clear()
	r.Tiles.Clear()
	r.CultureLayers.Clear()

	r.turn = nil
	r.grid = nil
	r.axisBias = nil
	r.sentiment = nil
	r.powerMetrics = nil
	r.telemetry = nil
	r.overlays = nil
	r.tensions = nil
	clear(r.catalog)
}

// Len returns the record count of cat.
func (r *Reconciler) Len(cat Category) int {
	switch cat {
	case Influencers:
		return r.Influencers.Len()
	case TradeLinks:
		return r.TradeLinks.Len()
	case PowerNodes:
		return r.PowerNodes.Len()
	case GreatDiscoveries:
		return r.GreatDiscoveries.Len()
	case GreatDiscoveryProgress:
		return r.GreatDiscoveryProgress.Len()
	case DiscoveryProgress:
		return r.DiscoveryProgress.Len()
	case Tiles:
		return r.Tiles.Len()
	case CultureLayers:
		return r.CultureLayers.Len()
	}
	return 0
}

// Turn returns the latest turn.
func (r *Reconciler) Turn() (int64, bool) {
	if r.turn == nil {
		return 0, false
	}
	return *r.turn, true
}

// Grid returns the latest grid size.
func (r *Reconciler) Grid() (snapshot.Grid, bool) {
	if r.grid == nil {
		return snapshot.Grid{}, false
	}
	return *r.grid, true
}

// AxisBias returns the latest axis bias.
func (r *Reconciler) AxisBias() (snapshot.AxisBias, bool) {
	if r.axisBias == nil {
		return snapshot.AxisBias{}, false
	}
	return *r.axisBias, true
}

// Sentiment returns the latest sentiment breakdown, or nil.
func (r *Reconciler) Sentiment() snapshot.Sentiment {
	return r.sentiment
}

// PowerMetrics returns the latest grid summary.
func (r *Reconciler) PowerMetrics() (snapshot.PowerMetrics, bool) {
	if r.powerMetrics == nil {
		return snapshot.PowerMetrics{}, false
	}
	return *r.powerMetrics, true
}

// GreatDiscoveryTelemetry returns the latest great-discovery counters.
func (r *Reconciler) GreatDiscoveryTelemetry() (snapshot.GreatDiscoveryTelemetry, bool) {
	if r.telemetry == nil {
		return snapshot.GreatDiscoveryTelemetry{}, false
	}
	return *r.telemetry, true
}

// Overlays returns the latest overlays, or nil.
func (r *Reconciler) Overlays() snapshot.Overlays {
	return r.overlays
}

// CultureTensions returns the latest culture tensions, or nil.
func (r *Reconciler) CultureTensions() []snapshot.CultureTension {
	return r.tensions
}

// GreatDiscoveryDefinition returns catalogue data for id.
func (r *Reconciler) GreatDiscoveryDefinition(id uint64) (snapshot.GreatDiscoveryDefinition, bool) {
	def, ok := r.catalog[id]
	return def, ok
}

// DiscoveryProgressFor returns discovery id → progress for one faction.
func (r *Reconciler) DiscoveryProgressFor(faction uint32) map[uint32]float64 {
	keys := r.ProgressByFaction.Keys(faction)
	out := make(map[uint32]float64, len(keys))
	for _, k := range keys {
		if p, ok := r.DiscoveryProgress.Get(k); ok {
			out[k.Discovery] = p.Progress
		}
	}
	return out
}

// GreatDiscoveryProgressFor returns the great-discovery progress records of
// one faction ordered by discovery id.
func (r *Reconciler) GreatDiscoveryProgressFor(faction uint32) []snapshot.GreatDiscoveryProgress {
	var out []snapshot.GreatDiscoveryProgress
	for _, k := range r.GreatDiscoveryProgress.Keys(CompareDiscoveryKeys) {
		if k.Faction != faction {
			continue
		}
		p, _ := r.GreatDiscoveryProgress.Get(k)
		out = append(out, p)
	}
	return out
}
