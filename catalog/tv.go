package catalog

import (
	"time"

	"github.com/hazyhaar/cinefetch/engine"
)

// TV series entities source their candidates from tv_series_dumps.json.
// Seasons derive from the series details store, episodes from the
// seasons store: the three runs form a pipeline and must execute in
// that order.

const tvWindowDays = 30

func tvWindow() engine.RefreshPolicy {
	return engine.Window{Days: tvWindowDays, DateField: "first_air_date"}
}

// seasonRefresh is shared by seasons (store-side, on their own
// air_date) and episodes (candidate-side, on their season's air_date).
func seasonRefresh() engine.SeasonWindow {
	return engine.SeasonWindow{DateField: "air_date", Recent: 60, Old: 180, OldAfter: 365}
}

func tvSeriesDetails() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_series_details",
		Output:     "tv_series_details.ndjson",
		Log:        "tv_series_details.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/tv/%d"),
		// Airing series refresh on every run; finished ones on
		// widening windows over last_air_date.
		Policy: engine.StatusWindows{
			StatusField: "status",
			DateField:   "last_air_date",
			Windows: map[string]int{
				"Returning Series": engine.AlwaysDays,
				"In Production":    30,
				"Pilot":            90,
				"Planned":          90,
				"Canceled":         365,
				"Ended":            180,
			},
			Default: 60,
		},
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			// seasons_index keeps just enough of the seasons list to
			// drive the season details run.
			seasonsIdx := []map[string]any{}
			for _, it := range listOr(d["seasons"]) {
				s, ok := it.(map[string]any)
				if !ok {
					continue
				}
				sn, okSN := jsonInt(s["season_number"])
				sid, okID := jsonInt(s["id"])
				if !okSN || !okID {
					continue
				}
				seasonsIdx = append(seasonsIdx, map[string]any{
					"season_number": sn,
					"id":            sid,
				})
			}
			return []map[string]any{{
				"id":                 d["id"],
				"name":               d["name"],
				"original_name":      d["original_name"],
				"original_language":  d["original_language"],
				"languages":          listOr(d["languages"]),
				"overview":           d["overview"],
				"tagline":            d["tagline"],
				"type":               d["type"],
				"status":             d["status"],
				"in_production":      d["in_production"],
				"first_air_date":     d["first_air_date"],
				"last_air_date":      d["last_air_date"],
				"number_of_seasons":  d["number_of_seasons"],
				"number_of_episodes": d["number_of_episodes"],
				"episode_run_time":   listOr(d["episode_run_time"]),
				"origin_country":     listOr(d["origin_country"]),
				"popularity":         d["popularity"],
				"vote_average":       d["vote_average"],
				"vote_count":         d["vote_count"],
				"genres":             selectList(d["genres"], "id", "name"),
				"spoken_languages": selectList(d["spoken_languages"],
					"english_name", "iso_639_1", "name"),
				"networks": selectList(d["networks"],
					"id", "name", "origin_country"),
				"production_companies": selectList(d["production_companies"],
					"id", "name", "origin_country"),
				"production_countries": selectList(d["production_countries"],
					"iso_3166_1", "name"),
				"created_by": selectList(d["created_by"],
					"id", "name", "original_name", "gender", "credit_id"),
				"seasons_index": seasonsIdx,
			}}
		},
	}
}

func tvSeriesExternalIDs() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_series_external_ids",
		Output:     "tv_series_external_ids.ndjson",
		Log:        "tv_series_external_ids.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d/external_ids"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/tv/%d/external_ids"),
		Policy:     tvWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":      d["id"],
				"imdb_id": d["imdb_id"],
			}}
		},
	}
}

func tvSeriesAlternativeTitles() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_series_alternative_titles",
		Output:     "tv_series_alternative_titles.ndjson",
		Log:        "tv_series_alternative_titles.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d/alternative_titles"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/tv/%d/alternative_titles"),
		Policy:     tvWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":                 d["id"],
				"alternative_titles": selectList(d["results"], "iso_3166_1", "title"),
			}}
		},
	}
}

func tvSeriesContentRatings() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_series_content_ratings",
		Output:     "tv_series_content_ratings.ndjson",
		Log:        "tv_series_content_ratings.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d/content_ratings"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/tv/%d/content_ratings"),
		Policy:     tvWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":              d["id"],
				"content_ratings": selectList(d["results"], "iso_3166_1", "rating"),
			}}
		},
	}
}

func tvSeriesReviews() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_series_reviews",
		Output:     "tv_series_reviews.ndjson",
		Log:        "tv_series_reviews.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d/reviews"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/tv/%d/reviews"),
		Policy:     tvWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id": d["id"],
				"reviews": selectList(d["results"],
					"id", "author", "content", "created_at", "url"),
			}}
		},
	}
}

func tvSeriesTranslations() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_series_translations",
		Output:     "tv_series_translations.ndjson",
		Log:        "tv_series_translations.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d/translations"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/tv/%d/translations"),
		Policy:     tvWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			translations := []map[string]any{}
			for _, it := range listOr(d["translations"]) {
				entry, ok := it.(map[string]any)
				if !ok {
					continue
				}
				data := asDoc(entry["data"])
				translations = append(translations, map[string]any{
					"iso_639_1":  entry["iso_639_1"],
					"iso_3166_1": entry["iso_3166_1"],
					"name":       data["name"],
					"overview":   data["overview"],
					"tagline":    data["tagline"],
				})
			}
			return []map[string]any{{
				"id":           d["id"],
				"translations": translations,
			}}
		},
	}
}

func tvWatchProviders() engine.Descriptor {
	return engine.Descriptor{
		Name:       "watch_providers_series",
		Output:     "watch_providers_series.ndjson",
		Log:        "watch_providers_series.log",
		Candidates: idCandidates("tv_series_dumps.json", "/tv/%d/watch/providers"),
		KeyOf:      intKey("id_series"),
		Project:    providerRows("id_series"),
	}
}

func tvSeasonDetails() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_seasons_details",
		Output:     "tv_seasons_details.ndjson",
		Log:        "tv_seasons_details.log",
		Candidates: seasonCandidates,
		KeyOf:      intsKey("series_id", "season_number"),
		TargetOf:   seasonTargetOf,
		Policy:     seasonRefresh(),
		Project: func(t engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			// The payload does not echo the series id; recover it from
			// the key.
			var seriesID any
			if parts := t.Key.Parts(); len(parts) == 2 {
				seriesID = parts[0]
				if n, ok := parseInt(parts[0]); ok {
					seriesID = n
				}
			}
			episodeCount := d["episode_count"]
			if eps, ok := d["episodes"].([]any); ok {
				episodeCount = int64(len(eps))
			}
			return []map[string]any{{
				"season_id":     d["id"],
				"series_id":     seriesID,
				"season_number": d["season_number"],
				"name":          d["name"],
				"overview":      d["overview"],
				"air_date":      d["air_date"],
				"vote_average":  d["vote_average"],
				"episode_count": episodeCount,
				"_id":           d["_id"],
			}}
		},
	}
}

func tvEpisodeDetails() engine.Descriptor {
	refresh := seasonRefresh()
	return engine.Descriptor{
		Name:       "tv_episodes_details",
		Output:     "tv_episodes_details.ndjson",
		Log:        "tv_episodes_details.log",
		Candidates: episodeCandidates,
		KeyOf:      intsKey("series_id", "season_number", "episode_number"),
		// An episode's freshness follows its season's air date, carried
		// on the candidate; there is no store-side policy.
		ParentDue: func(t engine.Target, today time.Time) bool {
			return refresh.DueForDateString(t.ParentDate, today)
		},
		Project: func(t engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			var seriesID any
			if parts := t.Key.Parts(); len(parts) == 3 {
				seriesID = parts[0]
				if n, ok := parseInt(parts[0]); ok {
					seriesID = n
				}
			}
			return []map[string]any{{
				"episode_id":      d["id"],
				"series_id":       seriesID,
				"season_number":   d["season_number"],
				"episode_number":  d["episode_number"],
				"episode_type":    d["episode_type"],
				"name":            d["name"],
				"overview":        d["overview"],
				"air_date":        d["air_date"],
				"runtime":         d["runtime"],
				"production_code": d["production_code"],
				"vote_average":    d["vote_average"],
				"vote_count":      d["vote_count"],
				"crew": selectList(d["crew"],
					"job", "department", "credit_id", "id", "name", "original_name", "gender"),
				"guest_stars": selectList(d["guest_stars"],
					"character", "credit_id", "order", "id", "name", "original_name", "gender"),
			}}
		},
	}
}

func tvNetworkDetails() engine.Descriptor {
	return engine.Descriptor{
		Name:       "tv_networks_details",
		Output:     "tv_networks_details.ndjson",
		Log:        "tv_networks_details.log",
		Candidates: idCandidates("tv_networks_dumps.json", "/network/%d"),
		KeyOf:      intKey("id"),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"headquarters":   d["headquarters"],
				"id":             d["id"],
				"name":           d["name"],
				"origin_country": d["origin_country"],
			}}
		},
	}
}
