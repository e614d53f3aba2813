package engine

import (
	"net/url"
	"time"

	"github.com/hazyhaar/cinefetch/store"
)

// Target is one key selected (or considered) for fetching: the
// identity key plus everything needed to issue and interpret the call.
type Target struct {
	Key   store.Key
	Path  string     // API endpoint path, e.g. "/movie/603"
	Query url.Values // optional extra parameters

	// ParentDate carries a parent record's date (a season's air date
	// for its episodes) for candidate-side refresh decisions.
	ParentDate string
}

// Descriptor is everything entity-specific the engine needs: where
// candidates come from, how to call the API, how to key and project
// records, and when existing records go stale. One descriptor per
// entity type replaces the per-entity fetcher scripts.
type Descriptor struct {
	// Name is the entity slug as it appears in logs ("movie_details").
	Name string

	// Output and Log are file names under the data and logs dirs.
	Output string
	Log    string

	// Candidates lists this run's candidate targets, deduplicated.
	Candidates func(dataDir string) ([]Target, error)

	// KeyOf extracts the retention key from a stored record.
	KeyOf store.KeyFunc

	// TargetOf rebuilds a fetchable target from a bare key, for
	// refresh-due keys that are absent from today's candidate list.
	TargetOf func(k store.Key) (Target, bool)

	// Project maps a decoded payload to the persisted records. Pure
	// and total: it never fails, it only drops what it cannot use.
	// Most entities emit one record; expanded entities emit several.
	Project func(t Target, doc any) []map[string]any

	// Policy flags stored records due for refresh. Nil means existing
	// records are never refetched (new keys only).
	Policy RefreshPolicy

	// ParentDue, when set, decides refresh from the candidate side
	// using Target.ParentDate instead of the stored record.
	ParentDue func(t Target, today time.Time) bool

	// Rebuild regenerates the whole store from the candidate calls on
	// every run, skipping scan and reconciliation entirely. Used for
	// small reference entities.
	Rebuild bool
}
