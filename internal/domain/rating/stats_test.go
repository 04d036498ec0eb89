package rating

import "testing"

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name    string
		ratings []Rating
		want    Stats
	}{
		{
			name: "empty",
			want: Stats{},
		},
		{
			name: "averages_per_rating_then_overall",
			ratings: []Rating{
				{Location: Location{Name: "Cafe A"}, Ratings: map[string]int{"sweetness": 5, "texture": 4}},
				{Location: Location{Name: "Cafe B"}, Ratings: map[string]int{"sweetness": 2}},
				{Location: Location{Name: "Cafe A"}, Ratings: map[string]int{"sweetness": 3, "texture": 3}},
			},
			// (4.5 + 2 + 3) / 3 = 3.1666..
			want: Stats{TotalRatings: 3, AverageRating: 3.2, TotalLocations: 2, FavoriteLocation: "Cafe A"},
		},
		{
			name: "tie_keeps_first_seen",
			ratings: []Rating{
				{Location: Location{Name: "B"}, Ratings: map[string]int{"x": 1}},
				{Location: Location{Name: "A"}, Ratings: map[string]int{"x": 1}},
			},
			want: Stats{TotalRatings: 2, AverageRating: 1, TotalLocations: 2, FavoriteLocation: "B"},
		},
		{
			name: "ratings_without_scores_do_not_skew_average",
			ratings: []Rating{
				{Location: Location{Name: "A"}},
				{Location: Location{Name: "A"}, Ratings: map[string]int{"x": 4}},
			},
			want: Stats{TotalRatings: 2, AverageRating: 4, TotalLocations: 1, FavoriteLocation: "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStats(tt.ratings)
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
