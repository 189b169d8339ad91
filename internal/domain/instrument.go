package domain

// Instrument is one modeled yield-bearing token and its data sources.
type Instrument struct {
	ID              string // stable identifier used in storage keys and URLs
	Name            string
	Chain           string // chain the daily stats are requested for
	TrackedSymbol   string // yield-bearing token priced against the reference
	ReferenceSymbol string
	Projection      ProjectionConfig
}
