package match

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyeo/eventmatcher/internal/domain/keyword"
	"github.com/fyeo/eventmatcher/internal/ports"
)

// ErrNoIndex is returned when matching is attempted before an asset index
// has been published.
var ErrNoIndex = errors.New("asset index not loaded")

// DefaultCacheSize bounds the threat-actor memo cache.
const DefaultCacheSize = 32

// Options configures a Builder. Zero values select defaults.
type Options struct {
	Radius           int
	Scorer           *Scorer
	CacheSize        int
	SocialMediaSites []string
	Logger           *zap.Logger
	Now              func() time.Time

	// OnThreatActorError is called after a failed secondary pass, once the
	// failure has been logged.
	OnThreatActorError func(error)
}

type indexPair struct {
	assets       *keyword.Index
	threatActors *keyword.Index
	generation   uint64 // keys the threat-actor cache
}

// Builder produces MatchEvents for documents. It is safe for concurrent use;
// the only state shared between documents is the published index pair and
// the bounded threat-actor cache.
type Builder struct {
	indexes   atomic.Pointer[indexPair]
	gen       atomic.Uint64
	scorer    *Scorer
	clusterer *Clusterer
	taCache   *lru.Cache[uint64, []Snippet]
	social    map[string]struct{}
	logger    *zap.Logger
	now       func() time.Time
	onTAError func(error)
}

// NewBuilder creates a Builder with no indexes published.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Scorer == nil {
		opts.Scorer = NewScorer(nil, DefaultMultiplier)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := lru.New[uint64, []Snippet](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("threat actor cache: %w", err)
	}
	social := make(map[string]struct{}, len(opts.SocialMediaSites))
	for _, s := range opts.SocialMediaSites {
		social[strings.TrimPrefix(strings.ToLower(s), "www.")] = struct{}{}
	}
	return &Builder{
		scorer:    opts.Scorer,
		clusterer: NewClusterer(opts.Radius),
		taCache:   cache,
		social:    social,
		logger:    opts.Logger,
		now:       opts.Now,
		onTAError: opts.OnThreatActorError,
	}, nil
}

// SetIndexes publishes a new index pair. Matches already running keep the
// pair they started with. Cached threat-actor results are dropped, and results
// those matches add later are keyed to the old generation.
func (b *Builder) SetIndexes(assets, threatActors *keyword.Index) {
	b.indexes.Store(&indexPair{
		assets:       assets,
		threatActors: threatActors,
		generation:   b.gen.Add(1),
	})
	b.taCache.Purge()
}

// Indexes returns the currently published indexes (nil when unset).
func (b *Builder) Indexes() (assets, threatActors *keyword.Index) {
	p := b.indexes.Load()
	if p == nil {
		return nil, nil
	}
	return p.assets, p.threatActors
}

// Ready reports whether an asset index has been published.
func (b *Builder) Ready() bool {
	assets, _ := b.Indexes()
	return assets != nil
}

// Match yields one event per asset whose evidence in text passes both the
// document-level and the snippet-level threshold, in asset discovery order.
// It yields nothing when no index is published. Iteration stops early when
// ctx is done.
func (b *Builder) Match(ctx context.Context, rawURL, text string, meta ports.DocumentMetadata) iter.Seq[MatchEvent] {
	return func(yield func(MatchEvent) bool) {
		pair := b.indexes.Load()
		if pair == nil || pair.assets == nil || text == "" {
			return
		}

		order, groups := b.scan(pair.assets, text, SourceText, nil, nil)
		var contentHash string
		site := SiteOf(rawURL)

		for _, assetID := range order {
			if ctx.Err() != nil {
				return
			}
			cands := groups[assetID]
			prob := Fuse(cands)
			cuts := b.evaluate(cands, prob, text, "")
			if len(cuts) == 0 {
				continue
			}

			if contentHash == "" {
				contentHash = ContentHash(text)
			}
			ta, err := b.threatActorMatches(pair, rawURL, text)
			if err != nil {
				b.logger.Error("threat actor matching failed",
					zap.String("url", rawURL),
					zap.String("asset_id", assetID),
					zap.Error(err))
				if b.onTAError != nil {
					b.onTAError(err)
				}
				ta = []Snippet{}
			}

			first := cands[0]
			ev := MatchEvent{
				ID:                 uuid.NewString(),
				Hash:               EventHash(first.CaseID, assetID, rawURL, contentHash),
				CaseID:             first.CaseID,
				AssetID:            assetID,
				URL:                rawURL,
				Site:               site,
				SourceNetwork:      classify(site, b.social),
				ContentHash:        contentHash,
				Probability:        prob,
				Cuts:               cuts,
				ThreatActorMatches: ta,
				Title:              meta.Title,
				ContentType:        meta.ContentType,
				Metadata:           meta,
				Timestamp:          b.now().UTC(),
			}
			b.logger.Debug("asset matched",
				zap.String("asset_id", assetID),
				zap.String("url", rawURL),
				zap.Float64("probability", prob),
				zap.Int("cuts", len(cuts)),
				zap.Int("threat_actor_matches", len(ta)))
			if !yield(ev) {
				return
			}
		}
	}
}

// MatchAll collects Match into a slice.
func (b *Builder) MatchAll(ctx context.Context, doc ports.Document) ([]MatchEvent, error) {
	if !b.Ready() {
		return nil, ErrNoIndex
	}
	var events []MatchEvent
	for ev := range b.Match(ctx, doc.URL, doc.Text, doc.Metadata) {
		events = append(events, ev)
	}
	if err := ctx.Err(); err != nil {
		return events, err
	}
	return events, nil
}

// scan runs Find over buf, scores every candidate and groups them by asset in
// discovery order, appending to order and groups when given.
func (b *Builder) scan(idx *keyword.Index, buf string, src Source, order []string, groups map[string][]Candidate) ([]string, map[string][]Candidate) {
	if groups == nil {
		groups = make(map[string][]Candidate)
	}
	for c := range Find(buf, idx) {
		c.Source = src
		c.Score = b.scorer.Score(c)
		if _, ok := groups[c.AssetID]; !ok {
			order = append(order, c.AssetID)
		}
		groups[c.AssetID] = append(groups[c.AssetID], c)
	}
	return order, groups
}

// evaluate applies both threshold tiers to one asset's candidates and returns
// the surviving snippets. prob is the already fused document-level score.
// Text candidates cluster against text and URL candidates against rawURL,
// sharing one seen set.
func (b *Builder) evaluate(cands []Candidate, prob float64, text, rawURL string) []Snippet {
	required := cands[0].RequiredScore
	if prob <= required {
		return nil
	}

	var inText, inURL []Candidate
	for _, c := range cands {
		if c.Source == SourceURL {
			inURL = append(inURL, c)
		} else {
			inText = append(inText, c)
		}
	}
	seen := make(map[string]struct{})
	snippets := b.clusterer.cluster(inText, text, seen)
	snippets = append(snippets, b.clusterer.cluster(inURL, rawURL, seen)...)

	kept := snippets[:0]
	for _, s := range snippets {
		if s.Score() > required {
			kept = append(kept, s)
		}
	}
	return kept
}

// threatActorMatches runs the secondary pass over text and rawURL, memoized
// per (index generation, text, url). A panic inside the pass is returned as
// an error.
func (b *Builder) threatActorMatches(pair *indexPair, rawURL, text string) (snips []Snippet, err error) {
	idx := pair.threatActors
	if idx == nil {
		return []Snippet{}, nil
	}
	key := cacheKey(pair.generation, text, rawURL)
	if cached, ok := b.taCache.Get(key); ok {
		return slices.Clone(cached), nil
	}

	defer func() {
		if r := recover(); r != nil {
			snips, err = nil, fmt.Errorf("threat actor pass: %v", r)
		}
	}()

	order, groups := b.scan(idx, text, SourceText, nil, nil)
	order, groups = b.scan(idx, rawURL, SourceURL, order, groups)

	snips = []Snippet{}
	for _, actorID := range order {
		cands := groups[actorID]
		snips = append(snips, b.evaluate(cands, Fuse(cands), text, rawURL)...)
	}
	b.taCache.Add(key, snips)
	return slices.Clone(snips), nil
}

func cacheKey(generation uint64, text, rawURL string) uint64 {
	var gen [8]byte
	binary.LittleEndian.PutUint64(gen[:], generation)
	d := xxhash.New()
	_, _ = d.Write(gen[:])
	_, _ = d.WriteString(text)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(rawURL)
	return d.Sum64()
}
