package model

import "fmt"

// UpstreamError indicates the geocoder or place source was unavailable or
// answered outside 2xx. It aborts the run.
type UpstreamError struct {
	Service string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s upstream: status %d", e.Service, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
