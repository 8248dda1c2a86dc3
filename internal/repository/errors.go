package repository

import "errors"

var (
	// ErrSessionNotFound indicates the scan session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrBlobSourceUnavailable indicates a blob URL was given but Azure is not configured
	ErrBlobSourceUnavailable = errors.New("blob storage not configured")
)
