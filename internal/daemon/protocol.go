package daemon

import "github.com/can1357/smgrep/internal/store"

// RequestKind discriminates the tagged union carried by Request (SPEC_FULL §4.8).
type RequestKind string

const (
	RequestSearch   RequestKind = "search"
	RequestHealth   RequestKind = "health"
	RequestShutdown RequestKind = "shutdown"
)

// Request is the client->daemon message. Only the field matching Kind is set.
type Request struct {
	Kind     RequestKind
	Search   *SearchRequest
	Health   *struct{}
	Shutdown *struct{}
}

// SearchRequest carries one query's arguments over the wire.
type SearchRequest struct {
	Query        string
	Limit        int
	PerFileLimit int
	Path         string
	Rerank       bool
}

// ResponseKind discriminates the tagged union carried by Response.
type ResponseKind string

const (
	ResponseSearch   ResponseKind = "search"
	ResponseHealth   ResponseKind = "health"
	ResponseShutdown ResponseKind = "shutdown"
	ResponseError    ResponseKind = "error"
)

// HealthStatus reports indexing progress for the `status`/Health surfaces.
type HealthStatus struct {
	Indexing bool
	Progress int // 0-100
	Files    int
}

// ShutdownResult acknowledges a Shutdown request before the server exits.
type ShutdownResult struct {
	Success bool
}

// Response is the daemon->client message. Only the field matching Kind is set.
type Response struct {
	Kind     ResponseKind
	Search   *store.SearchResponse
	Health   *HealthStatus
	Shutdown *ShutdownResult
	Error    string
}

// NewSearchResponse wraps a search result for transport.
func NewSearchResponse(resp *store.SearchResponse) Response {
	return Response{Kind: ResponseSearch, Search: resp}
}

// NewHealthResponse wraps a health probe for transport.
func NewHealthResponse(status HealthStatus) Response {
	return Response{Kind: ResponseHealth, Health: &status}
}

// NewShutdownResponse wraps a shutdown acknowledgement for transport.
func NewShutdownResponse(success bool) Response {
	return Response{Kind: ResponseShutdown, Shutdown: &ShutdownResult{Success: success}}
}

// NewErrorResponse wraps a daemon-surface error for transport (SPEC_FULL §7
// ProtocolError / Response::Error).
func NewErrorResponse(message string) Response {
	return Response{Kind: ResponseError, Error: message}
}
