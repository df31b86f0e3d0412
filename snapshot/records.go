package snapshot

// Influencer is one tracked public figure.
type Influencer struct {
	ID                  int64    `json:"id"`
	Name                string   `json:"name"`
	Influence           float64  `json:"influence"`
	GrowthRate          float64  `json:"growth_rate"`
	Notoriety           float64  `json:"notoriety"`
	SentimentKnowledge  float64  `json:"sentiment_knowledge"`
	SentimentTrust      float64  `json:"sentiment_trust"`
	SentimentEquity     float64  `json:"sentiment_equity"`
	SentimentAgency     float64  `json:"sentiment_agency"`
	Domains             []string `json:"domains,omitempty"`
	Scope               string   `json:"scope,omitempty"`
	Lifecycle           string   `json:"lifecycle,omitempty"`
	Coherence           float64  `json:"coherence"`
	Ticks               int64    `json:"ticks_in_status"`
	AudienceGenerations int64    `json:"audience_generations"`
	Supported           bool     `json:"supported"`
	Suppressed          bool     `json:"suppressed"`
}

// TradeKnowledge is the knowledge-diffusion state carried by a trade link.
type TradeKnowledge struct {
	Openness      float64 `json:"openness"`
	LeakTimer     int64   `json:"leak_timer"`
	LastDiscovery int64   `json:"last_discovery"`
	Decay         float64 `json:"decay"`
}

// PendingFragment is partial discovery progress travelling along a link.
type PendingFragment struct {
	Discovery int64   `json:"discovery"`
	Progress  float64 `json:"progress"`
	Fidelity  float64 `json:"fidelity"`
}

// TradeLink connects two factions through a pair of tiles.
type TradeLink struct {
	Entity           int64             `json:"entity"`
	FromFaction      int64             `json:"from_faction"`
	ToFaction        int64             `json:"to_faction"`
	Throughput       float64           `json:"throughput"`
	Tariff           float64           `json:"tariff"`
	FromTile         int64             `json:"from_tile"`
	ToTile           int64             `json:"to_tile"`
	Knowledge        *TradeKnowledge   `json:"knowledge,omitempty"`
	PendingFragments []PendingFragment `json:"pending_fragments,omitempty"`
}

// PowerNode is one node of the power grid.
type PowerNode struct {
	Entity          int64   `json:"entity"`
	NodeID          int64   `json:"node_id"`
	Generation      float64 `json:"generation"`
	Demand          float64 `json:"demand"`
	Efficiency      float64 `json:"efficiency"`
	StorageLevel    float64 `json:"storage_level"`
	StorageCapacity float64 `json:"storage_capacity"`
	Stability       float64 `json:"stability"`
	Surplus         float64 `json:"surplus"`
	Deficit         float64 `json:"deficit"`
	IncidentCount   int64   `json:"incident_count"`
}

// GreatDiscovery is a resolved great discovery.
type GreatDiscovery struct {
	ID               int64  `json:"id"`
	Faction          int64  `json:"faction"`
	Field            string `json:"field"`
	Tick             int64  `json:"tick"`
	PubliclyDeployed bool   `json:"publicly_deployed"`
	EffectFlags      uint32 `json:"effect_flags"`
}

// GreatDiscoveryProgress is one faction's progress toward a great discovery.
type GreatDiscoveryProgress struct {
	Faction            int64   `json:"faction"`
	Discovery          int64   `json:"discovery"`
	Progress           float64 `json:"progress"`
	ObservationDeficit int64   `json:"observation_deficit"`
	EtaTicks           int64   `json:"eta_ticks"`
	Covert             bool    `json:"covert"`
}

// DiscoveryProgress is one faction's progress toward an ordinary discovery.
type DiscoveryProgress struct {
	Faction   int64   `json:"faction"`
	Discovery int64   `json:"discovery"`
	Progress  float64 `json:"progress"`
}

// DiscoveryRef names a faction/discovery pair in a removal list.
type DiscoveryRef struct {
	Faction   int64 `json:"faction"`
	Discovery int64 `json:"discovery"`
}

// Tile is one grid cell.
type Tile struct {
	Entity         int64   `json:"entity"`
	X              int64   `json:"x"`
	Y              int64   `json:"y"`
	Element        int64   `json:"element"`
	Mass           float64 `json:"mass"`
	Temperature    float64 `json:"temperature"`
	Terrain        int64   `json:"terrain"`
	TerrainTags    uint64  `json:"terrain_tags"`
	CultureLayer   int64   `json:"culture_layer"`
	MountainKind   int64   `json:"mountain_kind"`
	MountainRelief float64 `json:"mountain_relief"`
}

// CultureTrait is one axis of a culture layer.
type CultureTrait struct {
	Axis     string  `json:"axis"`
	Baseline float64 `json:"baseline"`
	Modifier float64 `json:"modifier"`
	Value    float64 `json:"value"`
}

// CultureLayer is a node of the culture hierarchy. Owner is absent for the
// global layer.
type CultureLayer struct {
	ID              int64          `json:"id"`
	Owner           OptionalID     `json:"owner"`
	Parent          int64          `json:"parent"`
	Scope           string         `json:"scope"`
	Traits          []CultureTrait `json:"traits,omitempty"`
	Divergence      float64        `json:"divergence"`
	SoftThreshold   float64        `json:"soft_threshold"`
	HardThreshold   float64        `json:"hard_threshold"`
	TicksAboveSoft  int64          `json:"ticks_above_soft"`
	TicksAboveHard  int64          `json:"ticks_above_hard"`
	LastUpdatedTick int64          `json:"last_updated_tick"`
}

// CultureTension is an active divergence alert on a culture layer.
type CultureTension struct {
	LayerID  int64      `json:"layer_id"`
	Scope    string     `json:"scope"`
	Owner    OptionalID `json:"owner"`
	Severity float64    `json:"severity"`
	Timer    int64      `json:"timer"`
	Kind     string     `json:"kind"`
}

// Grid is the map size.
type Grid struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// AxisBias holds the global sentiment bias per axis.
type AxisBias struct {
	Knowledge float64 `json:"knowledge"`
	Trust     float64 `json:"trust"`
	Equity    float64 `json:"equity"`
	Agency    float64 `json:"agency"`
}

// SentimentDriver is one contributor to a sentiment axis.
type SentimentDriver struct {
	Category string  `json:"category"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Weight   float64 `json:"weight"`
}

// SentimentAxis breaks a sentiment axis total into its sources.
type SentimentAxis struct {
	Policy      float64           `json:"policy"`
	Incidents   float64           `json:"incidents"`
	Influencers float64           `json:"influencers"`
	Total       float64           `json:"total"`
	Drivers     []SentimentDriver `json:"drivers,omitempty"`
}

// Sentiment maps axis name (knowledge, trust, equity, agency) to its breakdown.
type Sentiment map[string]SentimentAxis

// PowerIncident is a grid instability event.
type PowerIncident struct {
	NodeID   int64   `json:"node_id"`
	Kind     string  `json:"kind"`
	Severity float64 `json:"severity"`
}

// PowerMetrics summarises the grid.
type PowerMetrics struct {
	TotalSupply       float64         `json:"total_supply"`
	TotalDemand       float64         `json:"total_demand"`
	TotalStorage      float64         `json:"total_storage"`
	TotalCapacity     float64         `json:"total_capacity"`
	GridStressAvg     float64         `json:"grid_stress_avg"`
	SurplusMargin     float64         `json:"surplus_margin"`
	InstabilityAlerts int64           `json:"instability_alerts"`
	Incidents         []PowerIncident `json:"incidents,omitempty"`
}

// GreatDiscoveryTelemetry counts great-discovery pipeline stages.
type GreatDiscoveryTelemetry struct {
	TotalResolved        int64 `json:"total_resolved"`
	PendingCandidates    int64 `json:"pending_candidates"`
	ActiveConstellations int64 `json:"active_constellations"`
}

// GreatDiscoveryDefinition is static catalogue data for a great discovery.
type GreatDiscoveryDefinition struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Field       string `json:"field"`
	Tier        int64  `json:"tier"`
	Summary     string `json:"summary,omitempty"`
	EffectFlags uint32 `json:"effect_flags"`
}

// Overlays holds raster overlays keyed by name. Values are passed through
// untouched.
type Overlays map[string]any
