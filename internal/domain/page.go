package domain

// Page selects a window of a most-recent-first listing. The zero value
// selects everything.
type Page struct {
	Offset int
	Limit  int
}

// All reports whether the page is unbounded.
func (p Page) All() bool {
	return p.Limit <= 0
}

// NewPage builds a page from 1-based page numbers as used by the admin UI.
func NewPage(page, perPage int) Page {
	if perPage <= 0 {
		return Page{}
	}
	if page < 1 {
		page = 1
	}
	return Page{Offset: (page - 1) * perPage, Limit: perPage}
}

// Outcome names the result of a mutation addressed by id.
type Outcome int

const (
	// OutcomeApplied means a row existed and the statement changed it.
	OutcomeApplied Outcome = iota
	// OutcomeNoSuchRecord means nothing matched the id; callers treat it as success.
	OutcomeNoSuchRecord
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoSuchRecord:
		return "no_such_record"
	default:
		return "unknown"
	}
}
