package models

type PageStatus string

const (
	PageStatusOK          PageStatus = "ok"
	PageStatusEmpty       PageStatus = "empty"
	PageStatusNoContainer PageStatus = "no_container"
	PageStatusFetchFailed PageStatus = "fetch_failed"
)

// PageResult holds the listings parsed from one listing page, in page order.
type PageResult struct {
	Page           int
	Status         PageStatus
	Listings       []Listing
	Dropped        int
	UnparsedPrices int
}

func (r PageResult) IsEmpty() bool {
	return len(r.Listings) == 0
}

type StopReason string

const (
	StopReasonRange     StopReason = "range"
	StopReasonGap       StopReason = "gap"
	StopReasonCancelled StopReason = "cancelled"
)

// CrawlResult is what a range crawl hands to persistence, whatever state it
// ended in.
type CrawlResult struct {
	Start        int
	End          int
	Listings     []Listing
	SkippedPages []int
	PagesFetched int
	LastPage     int
	Stop         StopReason
}
