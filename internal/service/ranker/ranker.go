package ranker

import (
	"math"
	"sort"

	"github.com/loadmatch/dispatcher/internal/domain"
)

// Strategy scores a vendor for a booking; higher is better. Implementations
// must be pure so that ranking the same snapshot twice gives the same order.
type Strategy interface {
	Score(booking *domain.Booking, vendor *domain.Vendor) float64
}

// Sequence is the ranked candidate wave for one booking. The sequencer pulls
// one vendor at a time; the remainder can be stashed and resumed later.
type Sequence struct {
	ids []int64
	pos int
}

func (s *Sequence) Next() (int64, bool) {
	if s.pos >= len(s.ids) {
		return 0, false
	}
	id := s.ids[s.pos]
	s.pos++
	return id, true
}

func (s *Sequence) Remaining() []int64 {
	out := make([]int64, len(s.ids)-s.pos)
	copy(out, s.ids[s.pos:])
	return out
}

func (s *Sequence) Len() int {
	return len(s.ids) - s.pos
}

// Resume rebuilds a sequence from a previously stashed remainder.
func Resume(ids []int64) *Sequence {
	return &Sequence{ids: ids}
}

// Rank orders the vendor pool by descending score. Ties break on vendor id
// so a fixed snapshot always ranks the same way.
func Rank(booking *domain.Booking, pool []domain.Vendor, strategy Strategy) *Sequence {
	type scored struct {
		id    int64
		score float64
	}
	candidates := make([]scored, 0, len(pool))
	for i := range pool {
		candidates = append(candidates, scored{id: pool[i].ID, score: strategy.Score(booking, &pool[i])})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return &Sequence{ids: ids}
}

// ProximityRating is the default strategy: closeness to the pickup point
// weighted against the vendor's rating.
type ProximityRating struct {
	DistanceWeight float64
	RatingWeight   float64
}

func DefaultStrategy() ProximityRating {
	return ProximityRating{DistanceWeight: 1.0, RatingWeight: 0.5}
}

func (p ProximityRating) Score(booking *domain.Booking, vendor *domain.Vendor) float64 {
	dist := haversineKm(booking.PickupLat, booking.PickupLng, vendor.Lat, vendor.Lng)
	// 1/(1+d) keeps the proximity term in (0,1]; rating is on a 0..5 scale.
	return p.DistanceWeight/(1+dist) + p.RatingWeight*(vendor.Rating/5)
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

var _ Strategy = ProximityRating{}
