package internal

import "errors"

// ErrEmptyText is returned when there is nothing to translate or synthesize.
var ErrEmptyText = errors.New("text is empty")
