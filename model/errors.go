package model

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	Remote ErrorKind = iota
	AttestationInvalid
	NoTeam
	MissingPrivateKey
	MissingCertificate
	MissingInfoPlist
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case AttestationInvalid:
		return "AttestationInvalid"
	case NoTeam:
		return "NoTeam"
	case MissingPrivateKey:
		return "MissingPrivateKey"
	case MissingCertificate:
		return "MissingCertificate"
	case MissingInfoPlist:
		return "MissingInfoPlist"
	case Cancelled:
		return "Cancelled"
	default:
		return "Remote"
	}
}

// Error is the classified failure every pipeline stage reports.
// Code and Message are only meaningful for Remote errors.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
}

func NewError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

func NewRemoteError(code int, message string) *Error {
	return &Error{Kind: Remote, Code: code, Message: message}
}

func (e *Error) Error() string {
	switch e.Kind {
	case AttestationInvalid:
		if e.Message != "" {
			return "Invalid anisette data. " + e.Message
		}
		return "Invalid anisette data. Please try again."
	case NoTeam:
		return "You are not a member of any development teams."
	case MissingPrivateKey:
		return "The developer certificate's private key could not be found."
	case MissingCertificate:
		return "The developer certificate could not be found."
	case MissingInfoPlist:
		if e.Message != "" {
			return "The app's Info.plist could not be found: " + e.Message
		}
		return "The app's Info.plist could not be found."
	case Cancelled:
		return "The operation was cancelled."
	}
	if e.Message == "" {
		return fmt.Sprintf("remote error %d", e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Remote, false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// RemoteCode returns the remote code carried by err, if any.
func RemoteCode(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == Remote {
		return e.Code, true
	}
	return 0, false
}
