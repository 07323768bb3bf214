package retrieval

import (
	"sort"
	"strings"

	"github.com/autoaid/backend/internal/vector"
)

// rerankByVehicle reorders vector matches so chunks tagged for the case's
// vehicle rise above generic material. A model match outweighs a make match,
// and distance acts as a penalty so relevance still breaks ties. Matches are
// compared case-insensitively and an empty tag on either side never scores.
func rerankByVehicle(matches []vector.Match, vehicleMake, vehicleModel string) []vector.Match {
	vMake := strings.ToLower(strings.TrimSpace(vehicleMake))
	vModel := strings.ToLower(strings.TrimSpace(vehicleModel))

	type scored struct {
		match vector.Match
		score float64
	}

	ranked := make([]scored, 0, len(matches))
	for _, m := range matches {
		score := 0.0
		mMake := strings.ToLower(m.VehicleMake)
		mModel := strings.ToLower(m.VehicleModel)

		if mMake != "" && vMake != "" && mMake == vMake {
			score += 2
		}
		if mModel != "" && vModel != "" && mModel == vModel {
			score += 3
		}
		score -= m.Distance

		ranked = append(ranked, scored{match: m, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]vector.Match, len(ranked))
	for i, r := range ranked {
		out[i] = r.match
	}
	return out
}
