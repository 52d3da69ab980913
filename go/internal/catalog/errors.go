package catalog

import "errors"

// ErrSourceUnavailable is returned when the backing content store cannot be read
var ErrSourceUnavailable = errors.New("catalog source unavailable")
