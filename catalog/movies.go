package catalog

import (
	"github.com/hazyhaar/cinefetch/engine"
)

// Movie entities all share the same candidate source (the ids of
// movie_dumps.json) and, except watch providers, the same 30-day
// refresh window on release_date.

const movieWindowDays = 30

func movieWindow() engine.RefreshPolicy {
	return engine.Window{Days: movieWindowDays, DateField: "release_date"}
}

func movieDetails() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_details",
		Output:     "movie_details.ndjson",
		Log:        "movie_details.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d"),
		Policy:     movieWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"budget":            d["budget"],
				"genres":            selectList(d["genres"], "id", "name"),
				"id":                d["id"],
				"imdb_id":           d["imdb_id"],
				"original_language": d["original_language"],
				"original_title":    d["original_title"],
				"overview":          d["overview"],
				"popularity":        d["popularity"],
				"production_companies": selectList(d["production_companies"],
					"id", "name", "origin_country"),
				"production_countries": selectList(d["production_countries"],
					"iso_3166_1", "name"),
				"release_date": d["release_date"],
				"revenue":      d["revenue"],
				"runtime":      d["runtime"],
				"spoken_languages": selectList(d["spoken_languages"],
					"english_name", "iso_639_1", "name"),
				"status":       d["status"],
				"tagline":      d["tagline"],
				"title":        d["title"],
				"vote_average": d["vote_average"],
				"vote_count":   d["vote_count"],
			}}
		},
	}
}

func movieExternalIDs() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_external_ids",
		Output:     "movie_external_ids.ndjson",
		Log:        "movie_external_ids.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/external_ids"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/external_ids"),
		Policy:     movieWindow(),
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

func movieKeywords() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_keywords",
		Output:     "movie_keywords.ndjson",
		Log:        "movie_keywords.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/keywords"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/keywords"),
		Policy:     movieWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":       d["id"],
				"keywords": selectList(d["keywords"], "id", "name"),
			}}
		},
	}
}

func movieAlternativeTitles() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_alternative_titles",
		Output:     "movie_alternative_titles.ndjson",
		Log:        "movie_alternative_titles.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/alternative_titles"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/alternative_titles"),
		Policy:     movieWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":     d["id"],
				"titles": selectList(d["titles"], "iso_3166_1", "title"),
			}}
		},
	}
}

func movieTranslations() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_translations",
		Output:     "movie_translations.ndjson",
		Log:        "movie_translations.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/translations"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/translations"),
		Policy:     movieWindow(),
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
					"title":      data["title"],
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

func movieCredits() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_credits",
		Output:     "movie_credits.ndjson",
		Log:        "movie_credits.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/credits"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/credits"),
		Policy:     movieWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":   d["id"],
				"cast": selectList(d["cast"], "credit_id", "id", "character", "order"),
				"crew": selectList(d["crew"], "credit_id", "id", "department", "job"),
			}}
		},
	}
}

func movieReleaseDates() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_release_dates",
		Output:     "movie_release_dates.ndjson",
		Log:        "movie_release_dates.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/release_dates"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/release_dates"),
		Policy:     movieWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			// Flatten country groups to one list of
			// {iso_3166_1, release_date, type, certification}.
			flattened := []map[string]any{}
			for _, it := range listOr(d["results"]) {
				entry, ok := it.(map[string]any)
				if !ok {
					continue
				}
				country := entry["iso_3166_1"]
				for _, rit := range listOr(entry["release_dates"]) {
					release, ok := rit.(map[string]any)
					if !ok {
						continue
					}
					flattened = append(flattened, map[string]any{
						"iso_3166_1":    country,
						"release_date":  release["release_date"],
						"type":          release["type"],
						"certification": release["certification"],
					})
				}
			}
			return []map[string]any{{
				"id":            d["id"],
				"release_dates": flattened,
			}}
		},
	}
}

func movieReviews() engine.Descriptor {
	return engine.Descriptor{
		Name:       "movie_reviews",
		Output:     "movie_reviews.ndjson",
		Log:        "movie_reviews.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/reviews"),
		KeyOf:      intKey("id"),
		TargetOf:   idTargetOf("/movie/%d/reviews"),
		Policy:     movieWindow(),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			reviews := []map[string]any{}
			for _, it := range listOr(d["results"]) {
				entry, ok := it.(map[string]any)
				if !ok {
					continue
				}
				reviews = append(reviews, map[string]any{
					"review_id":  entry["id"],
					"author":     entry["author"],
					"content":    entry["content"],
					"created_at": entry["created_at"],
					"url":        entry["url"],
				})
			}
			return []map[string]any{{
				"id":      d["id"],
				"reviews": reviews,
			}}
		},
	}
}

func movieWatchProviders() engine.Descriptor {
	return engine.Descriptor{
		Name:       "watch_providers_movies",
		Output:     "watch_providers_movies.ndjson",
		Log:        "watch_providers_movies.log",
		Candidates: idCandidates("movie_dumps.json", "/movie/%d/watch/providers"),
		KeyOf:      intKey("id_movie"),
		// No refresh: providers are fetched once per movie.
		Project: providerRows("id_movie"),
	}
}
