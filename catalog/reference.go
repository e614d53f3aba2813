package catalog

import (
	"github.com/hazyhaar/cinefetch/engine"
)

// Reference entities are small and cheap to refetch, so they rebuild
// their whole store on every run instead of reconciling.

func peopleDetails() engine.Descriptor {
	return engine.Descriptor{
		Name:       "people_details",
		Output:     "people_details.ndjson",
		Log:        "people_details.log",
		Candidates: idCandidates("people_dumps.json", "/person/%d"),
		KeyOf:      intKey("id"),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			return []map[string]any{{
				"id":                   d["id"],
				"name":                 d["name"],
				"also_known_as":        listOr(d["also_known_as"]),
				"biography":            d["biography"],
				"birthday":             d["birthday"],
				"deathday":             d["deathday"],
				"place_of_birth":       d["place_of_birth"],
				"popularity":           d["popularity"],
				"gender":               d["gender"],
				"known_for_department": d["known_for_department"],
			}}
		},
	}
}

func companyDetails() engine.Descriptor {
	return engine.Descriptor{
		Name:       "company_details",
		Output:     "company_details.ndjson",
		Log:        "company_details.log",
		Candidates: idCandidates("production_companies_dumps.json", "/company/%d"),
		KeyOf:      intKey("id"),
		Project: func(_ engine.Target, v any) []map[string]any {
			d := asDoc(v)
			if d == nil {
				return nil
			}
			parent := asDoc(d["parent_company"])
			return []map[string]any{{
				"id":             d["id"],
				"name":           d["name"],
				"description":    d["description"],
				"origin_country": d["origin_country"],
				"headquarters":   d["headquarters"],
				"parent_company": map[string]any{
					"id":   parent["id"],
					"name": parent["name"],
				},
			}}
		},
	}
}

func refLanguages() engine.Descriptor {
	return engine.Descriptor{
		Name:       "ref_languages",
		Output:     "ref_languages.ndjson",
		Log:        "ref_languages.log",
		Candidates: singleCall("ref_languages", "/configuration/languages"),
		KeyOf:      stringKey("iso_639_1"),
		Rebuild:    true,
		Project: func(_ engine.Target, v any) []map[string]any {
			rows := []map[string]any{}
			for _, it := range listOr(v) {
				obj, ok := it.(map[string]any)
				if !ok {
					continue
				}
				iso, okISO := obj["iso_639_1"].(string)
				en, okEN := obj["english_name"].(string)
				name, okName := obj["name"].(string)
				if !okISO || !okEN || !okName {
					continue
				}
				rows = append(rows, map[string]any{
					"iso_639_1":    iso,
					"english_name": en,
					"name":         name,
				})
			}
			return rows
		},
	}
}

func refCountries() engine.Descriptor {
	return engine.Descriptor{
		Name:       "ref_countries",
		Output:     "ref_countries.ndjson",
		Log:        "ref_countries.log",
		Candidates: singleCall("ref_countries", "/configuration/countries"),
		KeyOf:      stringKey("iso_3166_1"),
		Rebuild:    true,
		Project: func(_ engine.Target, v any) []map[string]any {
			rows := []map[string]any{}
			for _, it := range listOr(v) {
				obj, ok := it.(map[string]any)
				if !ok {
					continue
				}
				iso, okISO := obj["iso_3166_1"].(string)
				en, okEN := obj["english_name"].(string)
				native, okNat := obj["native_name"].(string)
				if !okISO || !okEN || !okNat {
					continue
				}
				rows = append(rows, map[string]any{
					"iso_3166_1":   iso,
					"english_name": en,
					"native_name":  native,
				})
			}
			return rows
		},
	}
}

// genreRows projects one /genre/.../list call into one row per genre,
// tagged with the language the call was made for.
func genreRows(t engine.Target, v any) []map[string]any {
	d := asDoc(v)
	if d == nil {
		return nil
	}
	lang := t.Query.Get("language")
	rows := []map[string]any{}
	for _, it := range listOr(d["genres"]) {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id, okID := jsonInt(obj["id"])
		name, okName := obj["name"].(string)
		if !okID || !okName {
			continue
		}
		rows = append(rows, map[string]any{
			"iso_639_1": lang,
			"id":        id,
			"name":      name,
		})
	}
	return rows
}

func refGenreMovies() engine.Descriptor {
	return engine.Descriptor{
		Name:       "ref_genre_movies",
		Output:     "ref_genre_movies.ndjson",
		Log:        "ref_genre_movies.log",
		Candidates: languageCandidates("/genre/movie/list"),
		KeyOf:      stringsKey("iso_639_1"),
		Rebuild:    true,
		Project:    genreRows,
	}
}

func refGenreSeries() engine.Descriptor {
	return engine.Descriptor{
		Name:       "ref_genre_series",
		Output:     "ref_genre_series.ndjson",
		Log:        "ref_genre_series.log",
		Candidates: languageCandidates("/genre/tv/list"),
		KeyOf:      stringsKey("iso_639_1"),
		Rebuild:    true,
		Project:    genreRows,
	}
}

// certificationRows expands the certifications map into one row per
// (country, certification).
func certificationRows(_ engine.Target, v any) []map[string]any {
	d := asDoc(v)
	if d == nil {
		return nil
	}
	rows := []map[string]any{}
	for country, items := range asDoc(d["certifications"]) {
		for _, it := range listOr(items) {
			obj, ok := it.(map[string]any)
			if !ok {
				continue
			}
			cert, okCert := obj["certification"].(string)
			meaning, okMean := obj["meaning"].(string)
			if !okCert || !okMean {
				continue
			}
			rows = append(rows, map[string]any{
				"country_code":  country,
				"certification": cert,
				"meaning":       meaning,
			})
		}
	}
	return rows
}

func certificationMovies() engine.Descriptor {
	return engine.Descriptor{
		Name:       "certification_movies",
		Output:     "certification_movies.ndjson",
		Log:        "certification_movies.log",
		Candidates: singleCall("certification_movies", "/certification/movie/list"),
		KeyOf:      stringsKey("country_code", "certification"),
		Rebuild:    true,
		Project:    certificationRows,
	}
}

func certificationSeries() engine.Descriptor {
	return engine.Descriptor{
		Name:       "certification_series",
		Output:     "certification_series.ndjson",
		Log:        "certification_series.log",
		Candidates: singleCall("certification_series", "/certification/tv/list"),
		KeyOf:      stringsKey("country_code", "certification"),
		Rebuild:    true,
		Project:    certificationRows,
	}
}
