// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

import "context"

// DefaultRequiredScore is the confidence threshold applied to assets that do
// not carry their own required_score.
const DefaultRequiredScore = 0.95

// AssetSource lists asset records from the asset catalog (document store).
// The matcher only ever reads from it; writes belong to the catalog owner.
type AssetSource interface {
	// ListAssets returns every asset matching filter. Exactly one of the
	// filter flags is set by callers: Monitored for the asset index,
	// ThreatActor for the threat-actor index.
	ListAssets(ctx context.Context, filter AssetFilter) ([]Asset, error)
}

// AssetFilter selects which assets feed an index build.
type AssetFilter struct {
	Monitored   bool
	ThreatActor bool
}

// Asset is one monitored entity (person, organization, domain) or threat actor.
// Structured fields are projected into flat keyword strings at index build time.
type Asset struct {
	ID            string            `json:"id" bson:"-"`
	CaseID        string            `json:"case_id" bson:"-"`
	AssetType     string            `json:"asset_type,omitempty" bson:"asset_type,omitempty"`
	RequiredScore *float64          `json:"required_score,omitempty" bson:"required_score,omitempty"`
	Monitored     bool              `json:"monitored" bson:"monitored"`
	IsThreatActor bool              `json:"is_threat_actor" bson:"is_threat_actor"`
	Name          map[string]string `json:"name,omitempty" bson:"name,omitempty"`                 // common, first, middle, last
	Emails        []LabeledValue    `json:"emails,omitempty" bson:"emails,omitempty"`             // label: work, personal
	Phones        []LabeledValue    `json:"phones,omitempty" bson:"phones,omitempty"`             // label: mobile, office
	URLs          []LabeledValue    `json:"urls,omitempty" bson:"urls,omitempty"`                 // label: homepage, domain
	SocialMedia   []LabeledValue    `json:"social_media,omitempty" bson:"social_media,omitempty"` // label: site name
	Organization  map[string]string `json:"organization,omitempty" bson:"organization,omitempty"` // name, title, role
	Location      map[string]string `json:"location,omitempty" bson:"location,omitempty"`         // country, country_short, postal_town, ...
	Aliases       []string          `json:"aliases,omitempty" bson:"aliases,omitempty"`
}

// LabeledValue is a single value of a multi-valued asset field, tagged with
// what kind of value it is (e.g. a "work" email or a "twitter" handle).
type LabeledValue struct {
	Label string `json:"label,omitempty" bson:"label,omitempty"`
	Value string `json:"value" bson:"value"`
}

// Threshold returns the asset's required score, or DefaultRequiredScore when unset.
func (a *Asset) Threshold() float64 {
	if a.RequiredScore == nil {
		return DefaultRequiredScore
	}
	return *a.RequiredScore
}
