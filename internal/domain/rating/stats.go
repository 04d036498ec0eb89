package rating

import "math"

// Stats backs the dashboard summary for one user.
type Stats struct {
	TotalRatings     int     `json:"totalRatings"`
	AverageRating    float64 `json:"averageRating"`
	TotalLocations   int     `json:"totalLocations"`
	FavoriteLocation string  `json:"favoriteLocation"`
}

// ComputeStats averages the per-rating averages (one decimal) and picks the
// most frequent location name, the earliest seen winning ties.
func ComputeStats(ratings []Rating) Stats {
	if len(ratings) == 0 {
		return Stats{}
	}

	var (
		sum    float64
		scored int
		order  []string
		counts = make(map[string]int)
	)

	for _, r := range ratings {
		if len(r.Ratings) > 0 {
			sum += r.Average()
			scored++
		}

		name := r.Location.Name
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}

	favorite := ""
	best := 0
	for _, name := range order {
		if counts[name] > best {
			favorite = name
			best = counts[name]
		}
	}

	avg := 0.0
	if scored > 0 {
		avg = math.Round(sum/float64(scored)*10) / 10
	}

	return Stats{
		TotalRatings:     len(ratings),
		AverageRating:    avg,
		TotalLocations:   len(order),
		FavoriteLocation: favorite,
	}
}
