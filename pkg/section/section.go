package section

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/types"
)

// Sections splits a result list into resources near the user and
// nationwide ones. National entries always land in Nationwide, state and
// local entries in Near, so the total count is preserved.
type Sections struct {
	Near       []types.Resource `json:"near"`
	Nationwide []types.Resource `json:"nationwide"`
}

func (s Sections) Total() int {
	return len(s.Near) + len(s.Nationwide)
}

// Options carries the inputs some sort orders need: distances for the
// distance sort and the session seed for shuffle.
type Options struct {
	Distances map[string]float64
	Seed      uint64
}

// Partition splits by resource scope without reordering.
func Partition(resources []types.Resource) Sections {
	out := Sections{
		Near:       make([]types.Resource, 0, len(resources)),
		Nationwide: make([]types.Resource, 0),
	}
	for _, r := range resources {
		if r.Scope == types.ScopeNational {
			out.Nationwide = append(out.Nationwide, r)
		} else {
			out.Near = append(out.Near, r)
		}
	}
	return out
}

// Build partitions the list and orders each section by the active sort.
// Pure and synchronous; it never triggers network activity.
func Build(resources []types.Resource, by filter.Sort, opt Options) Sections {
	s := Partition(resources)
	Order(s.Near, by, opt)
	Order(s.Nationwide, by, opt)
	return s
}

// Order sorts one section in place. Distance sort puts resources without
// a computable distance last, keeping their original relative order.
func Order(items []types.Resource, by filter.Sort, opt Options) {
	switch by {
	case filter.SortOfficial:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Rank != items[j].Rank {
				return items[i].Rank < items[j].Rank
			}
			return items[i].Id < items[j].Id
		})
	case filter.SortRelevance:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Score > items[j].Score
		})
	case filter.SortDistance:
		sort.SliceStable(items, func(i, j int) bool {
			di, iOk := opt.Distances[items[i].Id]
			dj, jOk := opt.Distances[items[j].Id]
			if iOk != jOk {
				return iOk
			}
			if !iOk {
				return false
			}
			return di < dj
		})
	case filter.SortNewest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
	case filter.SortAlpha:
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
		})
	case filter.SortShuffle:
		shuffle(items, opt.Seed)
	}
}

// ShuffleSeed derives the per-session shuffle seed. It is stable for a
// given session and filter signature, so pagination never reorders items
// the user has already seen, and changes as soon as the filters do.
func ShuffleSeed(sessionId int, signature string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strconv.Itoa(sessionId)))
	h.Write([]byte{0})
	h.Write([]byte(signature))
	return h.Sum64()
}

func shuffle(items []types.Resource, seed uint64) {
	// Order by id first so the permutation only depends on the seed and
	// the id set, not on upstream ordering.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Id < items[j].Id
	})
	rnd := rand.New(rand.NewSource(int64(seed)))
	rnd.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
