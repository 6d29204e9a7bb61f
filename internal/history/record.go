package history

import (
	"encoding/json"

	"git.home.luguber.info/inful/pagetree/internal/site"
)

// FromReport converts a finished build report into a storable record.
func FromReport(r *site.BuildReport) (Record, error) {
	payload, err := json.Marshal(r.Serializable())
	if err != nil {
		return Record{}, err
	}
	return Record{
		BuildID:     r.BuildID,
		Start:       r.Start,
		End:         r.End,
		Outcome:     string(r.Outcome),
		Pages:       r.Pages,
		Rendered:    r.RenderedPages,
		Failed:      len(r.FailedPages),
		Fingerprint: r.Fingerprint,
		Revision:    r.Revision,
		Renderer:    r.Renderer,
		Report:      payload,
	}, nil
}
