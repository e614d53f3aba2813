package catalog

import (
	"strconv"

	"github.com/hazyhaar/cinefetch/engine"
)

// offerCategories are the watch-offer groups TMDB nests per country.
// Providers are deduplicated across categories: one output row per
// (country, provider).
var offerCategories = []string{"flatrate", "buy", "rent", "ads", "free"}

// providerRows expands a watch-providers payload into one row per
// (country_code, provider), keyed back to the fetched title through
// idField ("id_movie" or "id_series").
func providerRows(idField string) func(t engine.Target, v any) []map[string]any {
	return func(t engine.Target, v any) []map[string]any {
		d := asDoc(v)
		if d == nil {
			return nil
		}
		titleID, err := strconv.ParseInt(string(t.Key), 10, 64)
		if err != nil {
			return nil
		}

		rows := []map[string]any{}
		results := asDoc(d["results"])
		for country, ov := range results {
			offer := asDoc(ov)
			if offer == nil {
				continue
			}
			seen := make(map[int64]struct{})
			for _, cat := range offerCategories {
				for _, it := range listOr(offer[cat]) {
					obj, ok := it.(map[string]any)
					if !ok {
						continue
					}
					pid, ok := jsonInt(obj["provider_id"])
					if !ok {
						continue
					}
					pname, ok := obj["provider_name"].(string)
					if !ok {
						continue
					}
					if _, dup := seen[pid]; dup {
						continue
					}
					seen[pid] = struct{}{}
					rows = append(rows, map[string]any{
						idField:         titleID,
						"provider_id":   pid,
						"provider_name": pname,
						"country_code":  country,
					})
				}
			}
		}
		return rows
	}
}
