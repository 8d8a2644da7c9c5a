package vocab

import "errors"

var (
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrParse         = errors.New("parse error")
	ErrMissingKey    = errors.New("missing key")
)
