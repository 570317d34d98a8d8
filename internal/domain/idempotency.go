package domain

import "time"

// IdempotencyRecord binds a client key to one request and its stored response.
type IdempotencyRecord struct {
	Key            string
	Endpoint       string
	RequestHash    string
	ResponseStatus int // zero while the request is in flight
	ResponseBody   []byte
	CreatedAt      time.Time
}

// Completed reports whether a response has been stored.
func (r *IdempotencyRecord) Completed() bool {
	return r.ResponseStatus != 0 && r.ResponseBody != nil
}
