package service

import "errors"

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOriginRequired = errors.New("origin_id is required")
	ErrUnknownEntity  = errors.New("unknown sync entity")
	ErrSyncDisabled   = errors.New("sync is disabled")
)
