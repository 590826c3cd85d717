// Package traces is the read side of the request ledger: the
// append-only trace table drained by the worker, queryable for
// operational review.
package traces

import "time"

// Filters narrows a trace history query.
type Filters struct {
	From        time.Time
	To          time.Time
	ActorID     *int64
	Endpoint    string
	Disposition string
	Page        int
	PageSize    int
}

// Row is one journaled entry.
type Row struct {
	TraceID     string    `json:"trace_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Source      string    `json:"source"`
	ActorID     *int64    `json:"actor_id"`
	Endpoint    string    `json:"endpoint"`
	Disposition string    `json:"disposition"`
	ErrorCode   *string   `json:"error_code"`
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles a page of rows with its paging info.
type Result struct {
	Rows   []Row      `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
