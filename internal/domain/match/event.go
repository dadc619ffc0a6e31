package match

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// Network classifies where a document was found.
type Network string

const (
	NetworkClear  Network = "clear-net"
	NetworkDark   Network = "dark-net"
	NetworkSocial Network = "social-media"
)

// MatchEvent is the evidence that one asset was mentioned in one document.
type MatchEvent struct {
	ID                 string                 `json:"id"`
	Hash               string                 `json:"hash"`
	CaseID             string                 `json:"case_id"`
	AssetID            string                 `json:"asset_id"`
	URL                string                 `json:"url"`
	Site               string                 `json:"site"`
	SourceNetwork      Network                `json:"source_network"`
	ContentHash        string                 `json:"content_hash"`
	Probability        float64                `json:"probability"`
	Cuts               []Snippet              `json:"cuts"`
	ThreatActorMatches []Snippet              `json:"threat_actor_matches"`
	Title              string                 `json:"title,omitempty"`
	ContentType        string                 `json:"content_type,omitempty"`
	Metadata           ports.DocumentMetadata `json:"document_metadata"`
	Timestamp          time.Time              `json:"timestamp"`
}

// Stored encodes the event for an EventSink.
func (e *MatchEvent) Stored() (ports.StoredEvent, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return ports.StoredEvent{}, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return ports.StoredEvent{
		Hash:        e.Hash,
		ContentHash: e.ContentHash,
		AssetID:     e.AssetID,
		CaseID:      e.CaseID,
		URL:         e.URL,
		Body:        body,
	}, nil
}

// ThreatActorIDs lists the distinct threat actors referenced by the event.
func (e *MatchEvent) ThreatActorIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, s := range e.ThreatActorMatches {
		for _, m := range s.Matches {
			if _, ok := seen[m.AssetID]; ok {
				continue
			}
			seen[m.AssetID] = struct{}{}
			ids = append(ids, m.AssetID)
		}
	}
	return ids
}

// ContentHash is the hex MD5 of the document text.
func ContentHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EventHash identifies an event for idempotent writes: the same asset matched
// in the same content at the same URL always hashes the same.
func EventHash(caseID, assetID, rawURL, contentHash string) string {
	h := sha256.New()
	for _, part := range []string{caseID, assetID, rawURL, contentHash} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SiteOf returns the lowercased host of rawURL without port, or "" when it
// does not parse.
func SiteOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// classify maps a site to its network. socialSites holds hosts without "www.".
func classify(site string, socialSites map[string]struct{}) Network {
	if site == "" {
		return NetworkClear
	}
	if strings.HasSuffix(site, ".onion") {
		return NetworkDark
	}
	if _, ok := socialSites[strings.TrimPrefix(site, "www.")]; ok {
		return NetworkSocial
	}
	return NetworkClear
}
