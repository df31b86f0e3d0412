package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/c360/simmirror/errors"
)

// Snapshot is one decoded state payload. Every field is optional. A nil
// slice, map or pointer means the key was absent; an empty non-nil slice is a
// present but empty list, which for a full key clears the collection.
//
// A full snapshot uses the plain collection keys (Influencers, Tiles, ...).
// A delta uses the *Updates and *Removed keys. Collection keys carry no
// omitempty so that Encode keeps an empty list distinct from an absent one;
// null decodes back to absent.
type Snapshot struct {
	Kind PayloadKind `json:"kind,omitempty"`

	Turn      *int64    `json:"turn,omitempty"`
	Grid      *Grid     `json:"grid,omitempty"`
	AxisBias  *AxisBias `json:"axis_bias,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`

	Influencers       []Influencer `json:"influencers"`
	InfluencerUpdates []Influencer `json:"influencer_updates"`
	InfluencerRemoved []int64      `json:"influencer_removed"`

	TradeLinks       []TradeLink `json:"trade_links"`
	TradeLinkUpdates []TradeLink `json:"trade_link_updates"`
	TradeLinkRemoved []int64     `json:"trade_link_removed"`

	PowerNodes   []PowerNode `json:"power_nodes"`
	PowerUpdates []PowerNode `json:"power_updates"`
	PowerRemoved []int64     `json:"power_removed"`

	GreatDiscoveries      []GreatDiscovery           `json:"great_discoveries"`
	GreatDiscoveryUpdates []GreatDiscovery           `json:"great_discovery_updates"`
	GreatDiscoveryRemoved []int64                    `json:"great_discovery_removed"`
	GreatDiscoveryCatalog []GreatDiscoveryDefinition `json:"great_discovery_definitions,omitempty"`

	GreatDiscoveryProgress        []GreatDiscoveryProgress `json:"great_discovery_progress"`
	GreatDiscoveryProgressUpdates []GreatDiscoveryProgress `json:"great_discovery_progress_updates"`
	GreatDiscoveryProgressRemoved []DiscoveryRef           `json:"great_discovery_progress_removed"`

	DiscoveryProgress        []DiscoveryProgress `json:"discovery_progress"`
	DiscoveryProgressUpdates []DiscoveryProgress `json:"discovery_progress_updates"`
	DiscoveryProgressRemoved []DiscoveryRef      `json:"discovery_progress_removed"`

	Tiles       []Tile  `json:"tiles"`
	TileUpdates []Tile  `json:"tile_updates"`
	TileRemoved []int64 `json:"tile_removed"`

	CultureLayers       []CultureLayer `json:"culture_layers"`
	CultureLayerUpdates []CultureLayer `json:"culture_layer_updates"`
	CultureLayerRemoved []int64        `json:"culture_layer_removed"`

	CultureTensions         []CultureTension         `json:"culture_tensions,omitempty"`
	PowerMetrics            *PowerMetrics            `json:"power_metrics,omitempty"`
	GreatDiscoveryTelemetry *GreatDiscoveryTelemetry `json:"great_discovery_telemetry,omitempty"`
	Overlays                Overlays                 `json:"overlays,omitempty"`

	// Skipped counts collection records the decoder could not read. They are
	// left out of their lists; the rest of the payload is kept.
	Skipped int `json:"-"`
}

// PayloadKind tags a payload as a full snapshot or a delta.
type PayloadKind string

// Payload kinds.
const (
	KindSnapshot PayloadKind = "snapshot"
	KindDelta    PayloadKind = "delta"
)

// IsDelta reports whether s is applied incrementally. An untagged payload is
// a delta when it carries incremental keys and no full keys.
func (s *Snapshot) IsDelta() bool {
	switch s.Kind {
	case KindDelta:
		return true
	case KindSnapshot:
		return false
	}
	return !s.HasFullKeys() && s.HasDeltaKeys()
}

// HasFullKeys reports whether any full collection key is present.
func (s *Snapshot) HasFullKeys() bool {
	return s.Influencers != nil || s.TradeLinks != nil || s.PowerNodes != nil ||
		s.GreatDiscoveries != nil || s.GreatDiscoveryProgress != nil ||
		s.DiscoveryProgress != nil || s.Tiles != nil || s.CultureLayers != nil
}

// HasDeltaKeys reports whether any incremental key is present.
func (s *Snapshot) HasDeltaKeys() bool {
	return s.InfluencerUpdates != nil || s.InfluencerRemoved != nil ||
		s.TradeLinkUpdates != nil || s.TradeLinkRemoved != nil ||
		s.PowerUpdates != nil || s.PowerRemoved != nil ||
		s.GreatDiscoveryUpdates != nil || s.GreatDiscoveryRemoved != nil ||
		s.GreatDiscoveryProgressUpdates != nil || s.GreatDiscoveryProgressRemoved != nil ||
		s.DiscoveryProgressUpdates != nil || s.DiscoveryProgressRemoved != nil ||
		s.TileUpdates != nil || s.TileRemoved != nil ||
		s.CultureLayerUpdates != nil || s.CultureLayerRemoved != nil
}

// Decoder turns one snapshot frame payload into a Snapshot.
type Decoder interface {
	Decode(payload []byte) (*Snapshot, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(payload []byte) (*Snapshot, error)

// Decode calls f.
func (f DecoderFunc) Decode(payload []byte) (*Snapshot, error) {
	return f(payload)
}

// JSONDecoder decodes JSON snapshot payloads. Unknown keys are ignored.
type JSONDecoder struct{}

// Decode parses payload. A record inside a collection list that does not
// decode is skipped and counted in Skipped. Anything else malformed returns
// an invalid-class error wrapping ErrParsingFailed.
func (JSONDecoder) Decode(payload []byte) (*Snapshot, error) {
	if len(payload) == 0 {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "JSONDecoder", "Decode", "empty payload")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, parseError(err, "unmarshal snapshot")
	}

	var s Snapshot
	for key, decode := range s.lists() {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		delete(fields, key)

		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, parseError(err, "unmarshal "+key)
		}
		if elems == nil {
			continue
		}
		s.Skipped += decode(elems)
	}

	if len(fields) > 0 {
		rest, err := json.Marshal(fields)
		if err != nil {
			return nil, parseError(err, "collect scalars")
		}
		if err := json.Unmarshal(rest, &s); err != nil {
			return nil, parseError(err, "unmarshal scalars")
		}
	}
	return &s, nil
}

func parseError(err error, action string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
		"JSONDecoder", "Decode", action)
}

// lists maps every collection key to a decoder filling the matching field.
func (s *Snapshot) lists() map[string]func([]json.RawMessage) int {
	return map[string]func([]json.RawMessage) int{
		"influencers":                      records(&s.Influencers),
		"influencer_updates":               records(&s.InfluencerUpdates),
		"influencer_removed":               records(&s.InfluencerRemoved),
		"trade_links":                      records(&s.TradeLinks),
		"trade_link_updates":               records(&s.TradeLinkUpdates),
		"trade_link_removed":               records(&s.TradeLinkRemoved),
		"power_nodes":                      records(&s.PowerNodes),
		"power_updates":                    records(&s.PowerUpdates),
		"power_removed":                    records(&s.PowerRemoved),
		"great_discoveries":                records(&s.GreatDiscoveries),
		"great_discovery_updates":          records(&s.GreatDiscoveryUpdates),
		"great_discovery_removed":          records(&s.GreatDiscoveryRemoved),
		"great_discovery_progress":         records(&s.GreatDiscoveryProgress),
		"great_discovery_progress_updates": records(&s.GreatDiscoveryProgressUpdates),
		"great_discovery_progress_removed": records(&s.GreatDiscoveryProgressRemoved),
		"discovery_progress":               records(&s.DiscoveryProgress),
		"discovery_progress_updates":       records(&s.DiscoveryProgressUpdates),
		"discovery_progress_removed":       records(&s.DiscoveryProgressRemoved),
		"tiles":                            records(&s.Tiles),
		"tile_updates":                     records(&s.TileUpdates),
		"tile_removed":                     records(&s.TileRemoved),
		"culture_layers":                   records(&s.CultureLayers),
		"culture_layer_updates":            records(&s.CultureLayerUpdates),
		"culture_layer_removed":            records(&s.CultureLayerRemoved),
	}
}

// records decodes each element into dst, skipping the ones that fail. dst
// ends up non-nil so a present empty list stays distinct from an absent one.
func records[T any](dst *[]T) func([]json.RawMessage) int {
	return func(elems []json.RawMessage) int {
		out := make([]T, 0, len(elems))
		skipped := 0
		for _, raw := range elems {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				skipped++
				continue
			}
			out = append(out, v)
		}
		*dst = out
		return skipped
	}
}

// Encode renders s as JSON. Absent scalar keys are omitted and absent
// collection keys encode as null.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WrapInvalid(err, "snapshot", "Encode", "marshal snapshot")
	}
	return data, nil
}
