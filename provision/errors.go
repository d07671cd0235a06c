package provision

import (
	"context"

	"github.com/appuploader/altserver/model"
	"github.com/pkg/errors"
)

// AttestationCodes are remote error codes that really mean the anisette data was rejected.
type AttestationCodes []int

var DefaultAttestationCodes = AttestationCodes{-22421, -29004}

func (c AttestationCodes) Contains(code int) bool {
	for _, v := range c {
		if v == code {
			return true
		}
	}
	return false
}

// Reinterpret maps remote errors whose code is listed in codes to AttestationInvalid, other errors pass through.
func Reinterpret(err error, codes AttestationCodes) error {
	if err == nil {
		return nil
	}
	if code, ok := model.RemoteCode(err); ok && codes.Contains(code) {
		return &model.Error{Kind: model.AttestationInvalid, Message: err.Error()}
	}
	return err
}

// AnisetteError reports that attestation data could not be obtained at all.
type AnisetteError struct {
	Err error
}

func (e *AnisetteError) Error() string {
	return "fetch anisette data: " + e.Err.Error()
}

func (e *AnisetteError) Unwrap() error {
	return e.Err
}

func cancellation(err error) error {
	if errors.Is(err, context.Canceled) {
		return model.NewError(model.Cancelled)
	}
	return err
}
