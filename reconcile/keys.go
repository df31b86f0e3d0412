package reconcile

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/snapshot"
)

// Category names one reconciled collection.
type Category string

const (
	Influencers            Category = "influencers"
	TradeLinks             Category = "trade_links"
	PowerNodes             Category = "power_nodes"
	GreatDiscoveries       Category = "great_discoveries"
	GreatDiscoveryProgress Category = "great_discovery_progress"
	DiscoveryProgress      Category = "discovery_progress"
	Tiles                  Category = "tiles"
	CultureLayers          Category = "culture_layers"
)

// Categories lists every collection in application order.
var Categories = []Category{
	Influencers, TradeLinks, PowerNodes, GreatDiscoveries,
	GreatDiscoveryProgress, DiscoveryProgress, Tiles, CultureLayers,
}

// DiscoveryKey identifies per-faction discovery progress.
type DiscoveryKey struct {
	Faction   uint32
	Discovery uint32
}

// NewDiscoveryKey validates both components. Negative or out-of-range values
// are rejected.
func NewDiscoveryKey(faction, discovery int64) (DiscoveryKey, bool) {
	if faction < 0 || discovery < 0 || faction > math.MaxUint32 || discovery > math.MaxUint32 {
		return DiscoveryKey{}, false
	}
	return DiscoveryKey{Faction: uint32(faction), Discovery: uint32(discovery)}, true
}

// String renders the key as "faction:discovery".
func (k DiscoveryKey) String() string {
	return strconv.FormatUint(uint64(k.Faction), 10) + ":" + strconv.FormatUint(uint64(k.Discovery), 10)
}

// ParseDiscoveryKey parses the "faction:discovery" form.
func ParseDiscoveryKey(s string) (DiscoveryKey, error) {
	f, d, ok := strings.Cut(s, ":")
	if !ok {
		return DiscoveryKey{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrInvalidData, s), "DiscoveryKey", "Parse", "split key")
	}
	faction, err := strconv.ParseUint(f, 10, 32)
	if err != nil {
		return DiscoveryKey{}, errors.WrapInvalid(err, "DiscoveryKey", "Parse", "parse faction")
	}
	discovery, err := strconv.ParseUint(d, 10, 32)
	if err != nil {
		return DiscoveryKey{}, errors.WrapInvalid(err, "DiscoveryKey", "Parse", "parse discovery")
	}
	return DiscoveryKey{Faction: uint32(faction), Discovery: uint32(discovery)}, nil
}

// CompareDiscoveryKeys orders by faction, then discovery.
func CompareDiscoveryKeys(a, b DiscoveryKey) int {
	if c := cmp.Compare(a.Faction, b.Faction); c != 0 {
		return c
	}
	return cmp.Compare(a.Discovery, b.Discovery)
}

func idKey(id int64) (uint64, bool) {
	if id < 0 {
		return 0, false
	}
	return uint64(id), true
}

func idKeys(ids []int64) []uint64 {
	keys := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if k, ok := idKey(id); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func refKeys(refs []snapshot.DiscoveryRef) []DiscoveryKey {
	keys := make([]DiscoveryKey, 0, len(refs))
	for _, r := range refs {
		if k, ok := NewDiscoveryKey(r.Faction, r.Discovery); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func influencerKey(v snapshot.Influencer) (uint64, bool)         { return idKey(v.ID) }
func tradeLinkKey(v snapshot.TradeLink) (uint64, bool)           { return idKey(v.Entity) }
func powerNodeKey(v snapshot.PowerNode) (uint64, bool)           { return idKey(v.Entity) }
func greatDiscoveryKey(v snapshot.GreatDiscovery) (uint64, bool) { return idKey(v.ID) }
func tileKey(v snapshot.Tile) (uint64, bool)                     { return idKey(v.Entity) }
func cultureLayerKey(v snapshot.CultureLayer) (uint64, bool)     { return idKey(v.ID) }

func greatDiscoveryProgressKey(v snapshot.GreatDiscoveryProgress) (DiscoveryKey, bool) {
	return NewDiscoveryKey(v.Faction, v.Discovery)
}

func discoveryProgressKey(v snapshot.DiscoveryProgress) (DiscoveryKey, bool) {
	return NewDiscoveryKey(v.Faction, v.Discovery)
}
