package btg

import (
	"context"
	"strings"
	"time"

	"github.com/dqtran/medauth/model"
	"github.com/dqtran/medauth/params"
)

// BtgService manages break-the-glass emergency access grants. Grants have no
// revocation path: they end by expiry only.
type BtgService struct {
	consentRepo ConsentRepository
}

type GrantOptions struct {
	GrantorID uint
	PatientID uint
	Minutes   int
	Reason    string
}

func (s *BtgService) Grant(ctx context.Context, opts GrantOptions) (*model.BtgConsent, error) {
	if opts.Minutes < params.BtgMinGrantMinutes || opts.Minutes > params.BtgMaxGrantMinutes {
		return nil, ErrInvalidGrantMinutes
	}
	if len(strings.TrimSpace(opts.Reason)) < params.BtgMinReasonLength {
		return nil, ErrReasonTooShort
	}

	now := time.Now()
	consent := &model.BtgConsent{
		PatientID: opts.PatientID,
		GrantorID: opts.GrantorID,
		Reason:    strings.TrimSpace(opts.Reason),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(opts.Minutes) * time.Minute),
	}
	if err := s.consentRepo.Create(ctx, consent); err != nil {
		return nil, err
	}
	return consent, nil
}

// HasActiveGrant reports whether a non-expired consent exists for the
// (grantor, patient) pair.
func (s *BtgService) HasActiveGrant(ctx context.Context, grantorID uint, patientID uint) (bool, error) {
	count, err := s.consentRepo.CountActive(ctx, grantorID, patientID, time.Now())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequireGrant is the authorization hook for protected patient records; the
// denial names the patient rather than reporting a generic not-found.
func (s *BtgService) RequireGrant(ctx context.Context, grantorID uint, patientID uint) error {
	active, err := s.HasActiveGrant(ctx, grantorID, patientID)
	if err != nil {
		return err
	}
	if !active {
		return NewAccessDeniedError(patientID, "no unexpired break-the-glass consent")
	}
	return nil
}

// ActiveGrants lists the caller's unexpired consents.
func (s *BtgService) ActiveGrants(ctx context.Context, grantorID uint) ([]*model.BtgConsent, error) {
	return s.consentRepo.FindActiveByGrantor(ctx, grantorID, time.Now())
}

func NewBtgService(consentRepo ConsentRepository) *BtgService {
	return &BtgService{
		consentRepo: consentRepo,
	}
}
