package audit

import "errors"

var ErrInvalidEntry = errors.New("invalid audit entry")
