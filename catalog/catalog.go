// Package catalog declares one descriptor per ingested entity type:
// its endpoint, identity key, candidate source, refresh policy and
// payload projection. The engine stays generic; everything
// TMDB-specific about an entity lives here.
package catalog

import (
	"fmt"
	"sort"

	"github.com/hazyhaar/cinefetch/engine"
)

// Registry returns every known descriptor, sorted by name.
func Registry() []engine.Descriptor {
	ds := []engine.Descriptor{
		movieDetails(),
		movieExternalIDs(),
		movieKeywords(),
		movieAlternativeTitles(),
		movieTranslations(),
		movieCredits(),
		movieReleaseDates(),
		movieReviews(),
		movieWatchProviders(),
		tvSeriesDetails(),
		tvSeriesExternalIDs(),
		tvSeriesAlternativeTitles(),
		tvSeriesContentRatings(),
		tvSeriesReviews(),
		tvSeriesTranslations(),
		tvWatchProviders(),
		tvSeasonDetails(),
		tvEpisodeDetails(),
		tvNetworkDetails(),
		companyDetails(),
		peopleDetails(),
		refLanguages(),
		refCountries(),
		refGenreMovies(),
		refGenreSeries(),
		certificationMovies(),
		certificationSeries(),
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
	return ds
}

// Lookup resolves a descriptor by name.
func Lookup(name string) (engine.Descriptor, error) {
	for _, d := range Registry() {
		if d.Name == name {
			return d, nil
		}
	}
	return engine.Descriptor{}, fmt.Errorf("catalog: unknown entity %q", name)
}

// Names lists the registered entity names.
func Names() []string {
	ds := Registry()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}
