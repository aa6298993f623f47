package record

// CSVRow is one journal row from a catalog CSV file.
type CSVRow map[string]string

func csvString(row CSVRow, key string) *string {
	if row == nil {
		return nil
	}
	if value, ok := row[key]; ok && value != "" {
		return &value
	}
	return nil
}

func pickAttr(attrs Payload, keys ...string) any {
	for _, key := range keys {
		if value, ok := attrs[key]; ok {
			return value
		}
	}
	return nil
}

func attributes(payload Payload) Payload {
	if payload == nil {
		return Payload{}
	}
	if attrs, ok := payload["attributes"].(map[string]any); ok {
		return attrs
	}
	return Payload{}
}

func relationshipID(payload Payload, name string) *int64 {
	rels, ok := payload["relationships"].(map[string]any)
	if !ok {
		return nil
	}
	rel, ok := rels[name].(map[string]any)
	if !ok {
		return nil
	}
	data, ok := rel["data"].(map[string]any)
	if !ok {
		return nil
	}
	return asInt64(data["id"])
}

// JournalFromPayload builds a journal record from the provider payload,
// falling back to the CSV row for title and ISSN when the source omits
// them.
func JournalFromPayload(journalID int64, libraryID string, row CSVRow, payload Payload) Journal {
	attrs := attributes(payload)
	journal := Journal{
		JournalID:   journalID,
		LibraryID:   libraryID,
		Title:       asString(pickAttr(attrs, "title")),
		ISSN:        asString(pickAttr(attrs, "issn")),
		EISSN:       asString(pickAttr(attrs, "eissn")),
		ScimagoRank: asFloat(pickAttr(attrs, "scimagoRank", "scimago_rank")),
		CoverURL:    asString(pickAttr(attrs, "coverURL", "coverUrl")),
		Available:   asBool(pickAttr(attrs, "available")),
		TocApproved: asBool(pickAttr(attrs, "tocDataApprovedAndLive", "toc_data_approved_and_live")),
		HasArticles: asBool(pickAttr(attrs, "hasArticles", "has_articles")),
	}
	if journal.Title == nil {
		journal.Title = csvString(row, "title")
	}
	if journal.ISSN == nil {
		journal.ISSN = csvString(row, "issn")
	}
	return journal
}

// MetaFromRow builds the CSV-origin metadata record for a journal.
func MetaFromRow(journalID int64, sourceCSV string, row CSVRow) JournalMeta {
	return JournalMeta{
		JournalID:  journalID,
		SourceCSV:  sourceCSV,
		Area:       csvString(row, "area"),
		CSVTitle:   csvString(row, "title"),
		CSVISSN:    csvString(row, "issn"),
		CSVLibrary: csvString(row, "library"),
	}
}

// IssueFromPayload builds an issue record. The year comes from the crawl
// loop; the payload's own year is never trusted. Returns false when the
// payload has no usable issue id.
func IssueFromPayload(payload Payload, journalID int64, year int) (Issue, bool) {
	issueID := asInt64(payload["id"])
	if issueID == nil || *issueID == 0 {
		return Issue{}, false
	}
	attrs := attributes(payload)
	owner := journalID
	if rel := asInt64(attrs["journal"]); rel != nil && *rel != 0 {
		owner = *rel
	}
	yearValue := int64(year)
	return Issue{
		IssueID:            *issueID,
		JournalID:          owner,
		PublicationYear:    &yearValue,
		Title:              stringValue(attrs, "title"),
		Volume:             stringValue(attrs, "volume"),
		Number:             stringValue(attrs, "number"),
		Date:               stringValue(attrs, "date"),
		IsValidIssue:       boolValue(attrs, "isValidIssue"),
		Suppressed:         boolValue(attrs, "suppressed"),
		Embargoed:          boolValue(attrs, "embargoed"),
		WithinSubscription: boolValue(attrs, "withinSubscription"),
	}, true
}

// ArticleFromPayload builds an article record. Journal and issue ids from
// the payload's relationships win over the fallbacks from the crawl loop.
// A nil fallbackIssueID with no issue relationship yields an in-press
// article row. Returns false when the payload has no usable article id.
func ArticleFromPayload(payload Payload, fallbackJournalID int64, fallbackIssueID *int64) (Article, bool) {
	articleID := asInt64(payload["id"])
	if articleID == nil || *articleID == 0 {
		return Article{}, false
	}
	attrs := attributes(payload)

	journalID := fallbackJournalID
	if rel := relationshipID(payload, "journal"); rel != nil && *rel != 0 {
		journalID = *rel
	}
	issueID := fallbackIssueID
	if rel := relationshipID(payload, "issue"); rel != nil && *rel != 0 {
		issueID = rel
	}

	return Article{
		ArticleID:             *articleID,
		JournalID:             journalID,
		IssueID:               issueID,
		SyncID:                int64Value(attrs, "syncId"),
		Title:                 stringValue(attrs, "title"),
		Date:                  stringValue(attrs, "date"),
		Authors:               stringValue(attrs, "authors"),
		StartPage:             stringValue(attrs, "startPage"),
		EndPage:               stringValue(attrs, "endPage"),
		Abstract:              stringValue(attrs, "abstract"),
		DOI:                   stringValue(attrs, "doi"),
		PMID:                  stringValue(attrs, "pmid"),
		ILLURL:                stringValue(attrs, "ILLURL"),
		OpenURLLink:           stringValue(attrs, "linkResolverOpenurlLink"),
		Permalink:             stringValue(attrs, "permalink"),
		Suppressed:            boolValue(attrs, "suppressed"),
		InPress:               boolValue(attrs, "inPress"),
		OpenAccess:            boolValue(attrs, "openAccess"),
		PlatformID:            stringValue(attrs, "platformId"),
		RetractionDOI:         stringValue(attrs, "retractionDoi"),
		RetractionDate:        stringValue(attrs, "retractionDate"),
		WithinLibraryHoldings: boolValue(attrs, "withinLibraryHoldings"),
		ContentLocation:       stringValue(attrs, "contentLocation"),
		FullTextFile:          stringValue(attrs, "fullTextFile"),
	}, true
}
