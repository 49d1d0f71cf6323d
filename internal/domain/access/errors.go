package access

import "errors"

var (
	ErrCommitInProgress = errors.New("a commit is already in progress")
	ErrNotLoaded        = errors.New("console has not been loaded")
)
