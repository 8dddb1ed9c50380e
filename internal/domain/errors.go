package domain

import "errors"

// Error kinds of a run. Every failure wraps exactly one of these.
var (
	ErrConfig    = errors.New("config error")
	ErrQuery     = errors.New("query error")
	ErrShape     = errors.New("shape error")
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous result")
	ErrUpdate    = errors.New("update error")
)

// Checked in order. An update fault may wrap a remote not-found cause and
// must still report as UpdateError.
var kinds = []struct {
	err  error
	name string
}{
	{ErrUpdate, "UpdateError"},
	{ErrConfig, "ConfigError"},
	{ErrQuery, "QueryError"},
	{ErrShape, "ShapeError"},
	{ErrNotFound, "NotFoundError"},
	{ErrAmbiguous, "AmbiguousResultError"},
}

// Kind names the error kind wrapped by err, or "UnknownError".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "UnknownError"
}
