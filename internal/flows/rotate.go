package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/viridial/authcore/internal/autherr"
	"github.com/viridial/authcore/jwt"
)

// RotateFailure classifies refresh rotation failures for root-level mapping.
type RotateFailure int

const (
	RotateFailureNone RotateFailure = iota
	RotateFailureAbsent
	RotateFailureSignature
	RotateFailureSubjectMismatch
	RotateFailureStore
	RotateFailureIssue
)

func (f RotateFailure) String() string {
	switch f {
	case RotateFailureNone:
		return "none"
	case RotateFailureAbsent:
		return "absent"
	case RotateFailureSignature:
		return "signature"
	case RotateFailureSubjectMismatch:
		return "subject_mismatch"
	case RotateFailureStore:
		return "store"
	default:
		return "issue"
	}
}

type RotateResult struct {
	Failure      RotateFailure
	Err          error
	Subject      string
	AccessToken  string
	RefreshToken string
}

type RotateDeps struct {
	Codec     TokenCodec
	AllowList RefreshAllowList
	TTLs      TokenTTLs
}

// RunRotate exchanges a refresh token for a new pair. The allow-list entry
// is consumed before the signature is looked at, so an unknown token costs
// one store round trip and concurrent rotations of one token have a single
// winner. Claims are carried forward from the old token.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	if refreshToken == "" {
		return RotateResult{Failure: RotateFailureAbsent, Err: autherr.ErrInvalidRefreshToken}
	}

	subject, ok, err := deps.AllowList.Take(ctx, refreshToken)
	if err != nil {
		return RotateResult{
			Failure: RotateFailureStore,
			Err:     fmt.Errorf("%w: consume refresh entry: %v", autherr.ErrInternal, err),
		}
	}
	if !ok {
		return RotateResult{Failure: RotateFailureAbsent, Err: autherr.ErrInvalidRefreshToken}
	}

	claims, err := deps.Codec.Verify(jwt.KindRefresh, refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrSigning) {
			return RotateResult{Failure: RotateFailureIssue, Subject: subject, Err: fmt.Errorf("%w: %w", autherr.ErrInternal, err)}
		}
		return RotateResult{Failure: RotateFailureSignature, Subject: subject, Err: autherr.ErrInvalidRefreshToken}
	}
	if claims.Subject != subject {
		return RotateResult{Failure: RotateFailureSubjectMismatch, Subject: subject, Err: autherr.ErrInvalidRefreshToken}
	}

	access, refresh, err := issuePair(ctx, deps.Codec, deps.AllowList, deps.TTLs, subject, claims.Payload())
	if err != nil {
		failure := RotateFailureIssue
		if errors.Is(err, errAllowList) {
			failure = RotateFailureStore
		}
		return RotateResult{Failure: failure, Subject: subject, Err: fmt.Errorf("%w: %w", autherr.ErrInternal, err)}
	}

	return RotateResult{Subject: subject, AccessToken: access, RefreshToken: refresh}
}
