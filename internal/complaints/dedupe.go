package complaints

import (
	"sort"
	"strings"

	"github.com/sells-group/compintel/internal/model"
)

const (
	shingleSize        = 4
	jaccardThreshold   = 0.7
	minShingleableWord = shingleSize
)

// shingles returns the set of overlapping word n-grams of normalized
// text. Texts shorter than one shingle produce a single shingle of the
// whole text so very short complaints still dedupe exactly.
func shingles(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{})
	if len(words) < minShingleableWord {
		if len(words) > 0 {
			set[strings.Join(words, " ")] = struct{}{}
		}
		return set
	}
	for i := 0; i+shingleSize <= len(words); i++ {
		set[strings.Join(words[i:i+shingleSize], " ")] = struct{}{}
	}
	return set
}

// jaccard computes set similarity in [0,1].
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	var inter int
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// deduper accumulates complaints and collapses near-duplicates as they
// arrive. When an incoming complaint matches a retained one above the
// similarity threshold, the retained complaint absorbs the new source
// URLs and keeps the earliest FirstSeen.
type deduper struct {
	kept     []model.Complaint
	shingled []map[string]struct{}
}

func newDeduper() *deduper {
	return &deduper{}
}

// Add inserts or merges a complaint. Returns true when the complaint
// was merged into an existing one.
func (d *deduper) Add(c model.Complaint) bool {
	sh := shingles(normalizeText(c.Text))
	for i, existing := range d.shingled {
		if jaccard(sh, existing) >= jaccardThreshold {
			d.merge(i, c)
			return true
		}
	}
	d.kept = append(d.kept, c)
	d.shingled = append(d.shingled, sh)
	return false
}

func (d *deduper) merge(i int, c model.Complaint) {
	target := &d.kept[i]
	seen := make(map[string]struct{}, len(target.SourceURLs))
	for _, u := range target.SourceURLs {
		seen[u] = struct{}{}
	}
	for _, u := range c.SourceURLs {
		if _, ok := seen[u]; !ok {
			target.SourceURLs = append(target.SourceURLs, u)
			seen[u] = struct{}{}
		}
	}
	if c.FirstSeen.Before(target.FirstSeen) {
		target.FirstSeen = c.FirstSeen
	}
}

// Complaints returns the retained set, ordered oldest first with URL
// order as a tiebreak for determinism.
func (d *deduper) Complaints() []model.Complaint {
	out := make([]model.Complaint, len(d.kept))
	copy(out, d.kept)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return strings.Join(out[i].SourceURLs, ",") < strings.Join(out[j].SourceURLs, ",")
	})
	return out
}
