package keyword

import (
	"sort"
	"strings"

	"github.com/fyeo/eventmatcher/internal/ports"
)

// Pair is one (keyword_name, keyword_text) projection of an asset field.
type Pair struct {
	Name string
	Text string
}

// Pairs flattens an asset's structured fields into searchable keyword strings.
// Text is trimmed and lowercased; blank values are dropped. Map-valued fields
// are emitted in key order so the projection is deterministic.
//
//	name.common, name.first, ...      from Name
//	email, email.work, ...            from Emails (label appended when set)
//	phone, url, social_media.<site>   likewise
//	organization.<field>              from Organization
//	location.<field>                  from Location
//	alias                             from Aliases
func Pairs(a *ports.Asset) []Pair {
	var out []Pair
	add := func(name, text string) {
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			return
		}
		out = append(out, Pair{Name: name, Text: text})
	}

	addMap := func(prefix string, m map[string]string) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(prefix+"."+k, m[k])
		}
	}

	addLabeled := func(prefix string, vals []ports.LabeledValue) {
		for _, v := range vals {
			name := prefix
			if v.Label != "" {
				name = prefix + "." + strings.ToLower(v.Label)
			}
			add(name, v.Value)
		}
	}

	addMap("name", a.Name)
	addLabeled("email", a.Emails)
	addLabeled("phone", a.Phones)
	addLabeled("url", a.URLs)
	for _, sm := range a.SocialMedia {
		site := strings.ToLower(sm.Label)
		if site == "" {
			site = "other"
		}
		add("social_media."+site, sm.Value)
	}
	addMap("organization", a.Organization)
	addMap("location", a.Location)
	for _, alias := range a.Aliases {
		add("alias", alias)
	}
	return out
}

// Project turns an asset into KeywordRecords sharing its id, case and threshold.
func Project(a *ports.Asset) []ports.KeywordRecord {
	pairs := Pairs(a)
	records := make([]ports.KeywordRecord, 0, len(pairs))
	score := a.Threshold()
	for _, p := range pairs {
		records = append(records, ports.KeywordRecord{
			AssetID:       a.ID,
			CaseID:        a.CaseID,
			RequiredScore: score,
			KeywordName:   p.Name,
			KeywordText:   p.Text,
		})
	}
	return records
}

// ProjectAll projects every asset in order.
func ProjectAll(assets []ports.Asset) []ports.KeywordRecord {
	var records []ports.KeywordRecord
	for i := range assets {
		records = append(records, Project(&assets[i])...)
	}
	return records
}
