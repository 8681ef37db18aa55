package service

import "errors"

// Sentinel errors callers branch on. User-facing messages are built by the
// dispatcher; these carry no account detail beyond what the caller already knows.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrChallengeOutstanding = errors.New("challenger already has a pending challenge")
	ErrNoPendingChallenge   = errors.New("no pending challenge to respond to")
)
