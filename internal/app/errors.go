package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrNotStarted = errors.New("service not started")
	ErrPredict    = errors.New("prediction unavailable")
)
