package redemption

import (
	"errors"
	"fmt"
)

// Kind classifies a redemption failure. The transport maps kinds to status codes.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput covers missing or malformed request fields.
	KindInvalidInput
	// KindEmptySelection means no accounts were selected.
	KindEmptySelection
	// KindInvalidAccount means a selected account cannot be closed by the wallet.
	KindInvalidAccount
	// KindUpstreamUnavailable means the RPC node could not be reached or timed out.
	KindUpstreamUnavailable
	// KindSubmissionRejected means the transaction was refused before execution.
	KindSubmissionRejected
	// KindConfirmationTimeout means the transaction was broadcast but its outcome is unknown.
	KindConfirmationTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindEmptySelection:
		return "empty_selection"
	case KindInvalidAccount:
		return "invalid_account"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindSubmissionRejected:
		return "submission_rejected"
	case KindConfirmationTimeout:
		return "confirmation_timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. A sentinel matches any *Error of the same kind.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrEmptySelection      = &Error{Kind: KindEmptySelection}
	ErrInvalidAccount      = &Error{Kind: KindInvalidAccount}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrSubmissionRejected  = &Error{Kind: KindSubmissionRejected}
	ErrConfirmationTimeout = &Error{Kind: KindConfirmationTimeout}
)

// Error is the error type returned by every redemption operation.
type Error struct {
	Kind    Kind
	Msg     string
	Account string // offending account, for KindInvalidAccount
	TxID    string // broadcast signature, for KindConfirmationTimeout
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Account != "" {
		msg = fmt.Sprintf("%s: %s", e.Account, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Account == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func invalidInput(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func invalidAccount(account, reason string) error {
	return &Error{Kind: KindInvalidAccount, Msg: reason, Account: account}
}

func upstream(msg string, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Msg: msg, Err: err}
}
