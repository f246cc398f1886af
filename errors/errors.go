package errors

import "fmt"

var (
	ErrFetchFailed        = fmt.Errorf("fetch failed")
	ErrSendFailed         = fmt.Errorf("send failed")
	ErrSubscriptionFailed = fmt.Errorf("live subscription failed")
	ErrMarkReadFailed     = fmt.Errorf("mark read failed")
	ErrEmptyContent       = fmt.Errorf("empty message content")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrSessionNotOpen     = fmt.Errorf("session not open")
	ErrNoPartner          = fmt.Errorf("no chat partner available")
	ErrUnknownProfileType = fmt.Errorf("unknown profile type")
	ErrInvalidIdentity    = fmt.Errorf("invalid identity token")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)
