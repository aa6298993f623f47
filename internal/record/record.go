// Package record defines the typed rows stored by the indexer and the
// transforms that build them from loosely-typed source payloads.
package record

// Payload is a raw provider record. Source adapters return these; the
// transform layer converts them into typed records before anything else
// touches them.
type Payload = map[string]any

// Journal is one catalog entry, upserted on every crawl of that journal.
type Journal struct {
	JournalID   int64
	LibraryID   string
	Title       *string
	ISSN        *string
	EISSN       *string
	ScimagoRank *float64
	CoverURL    *string
	Available   *bool
	TocApproved *bool
	HasArticles *bool
}

// JournalMeta carries the CSV-origin metadata for a journal.
type JournalMeta struct {
	JournalID  int64
	SourceCSV  string
	Area       *string
	CSVTitle   *string
	CSVISSN    *string
	CSVLibrary *string
}

// Issue belongs to exactly one journal. The publication year is assigned
// by the crawl loop, not trusted from the payload, when the source omits
// it.
type Issue struct {
	JournalID          int64
	IssueID            int64
	PublicationYear    *int64
	Title              *string
	Volume             *string
	Number             *string
	Date               *string
	IsValidIssue       *bool
	Suppressed         *bool
	Embargoed          *bool
	WithinSubscription *bool
}

// Article belongs to one journal and optionally one issue. A nil IssueID
// marks an in-press article.
type Article struct {
	ArticleID             int64
	JournalID             int64
	IssueID               *int64
	SyncID                *int64
	Title                 *string
	Date                  *string
	Authors               *string
	StartPage             *string
	EndPage               *string
	Abstract              *string
	DOI                   *string
	PMID                  *string
	ILLURL                *string
	OpenURLLink           *string
	Permalink             *string
	Suppressed            *bool
	InPress               *bool
	OpenAccess            *bool
	PlatformID            *string
	RetractionDOI         *string
	RetractionDate        *string
	WithinLibraryHoldings *bool
	ContentLocation       *string
	FullTextFile          *string
}
