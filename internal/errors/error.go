package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNoFolderSelected = errors.New("no folder selected")

	// account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountDisabled = errors.New("account is disabled")
	ErrValidation      = errors.New("validation failed")

	// run errors
	ErrRunInProgress = errors.New("backup run already in progress")
	ErrRunNotFound   = errors.New("run not found")

	// secret errors
	ErrSecretNotFound = errors.New("secret not found")
)
