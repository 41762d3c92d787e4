package harvest

import (
	"net/http"
	"time"
)

// Target is one venue to harvest. Identity is the (City, Name) pair.
type Target struct {
	City    string
	Name    string
	SeedURL string
}

// Key returns the identity of the target as a single string.
func (t Target) Key() string {
	return t.City + "/" + t.Name
}

// Record is a single normalized review.
type Record struct {
	Date         string
	ReviewerName string
	Score        float64
	Title        string
	Content      string
	StayDate     string
}

// PageResult is what the extractor produces for one fetched page. An empty
// NextURL ends pagination.
type PageResult struct {
	Records []Record
	NextURL string
}

// HasNext reports whether the page links to a following page.
func (p PageResult) HasNext() bool {
	return p.NextURL != ""
}

// PageStat describes one fetch attempted during a walk.
type PageStat struct {
	URL        string
	StatusCode int
	Bytes      int
	Duration   time.Duration
	Records    int
}

// WalkResult is the terminal state of one page walk. Records is nil
// whenever Failed is set.
type WalkResult struct {
	Records []Record
	Failed  bool
	Err     error
	Pages   []PageStat
}

// OutcomeStatus classifies how a target's run ended.
type OutcomeStatus string

// Outcome statuses. Empty and failed are distinct: empty means the walk
// completed without finding a single record.
const (
	OutcomeDone   OutcomeStatus = "done"
	OutcomeEmpty  OutcomeStatus = "empty"
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome is a finished walk with the target identity attached.
type Outcome struct {
	Target   Target
	Records  []Record
	Failed   bool
	Err      error
	Pages    []PageStat
	Duration time.Duration
}

// NewOutcome attaches a target to a walk result.
func NewOutcome(target Target, result WalkResult, dur time.Duration) Outcome {
	return Outcome{
		Target:   target,
		Records:  result.Records,
		Failed:   result.Failed,
		Err:      result.Err,
		Pages:    result.Pages,
		Duration: dur,
	}
}

// Status derives the outcome classification.
func (o Outcome) Status() OutcomeStatus {
	switch {
	case o.Failed:
		return OutcomeFailed
	case len(o.Records) == 0:
		return OutcomeEmpty
	default:
		return OutcomeDone
	}
}

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
