package session

import (
	"context"
	"errors"
	"time"
)

// Refresh exchanges a valid refresh secret for a new access token and refresh secret.
//
// The lookup, the revocation of the presented credential and the insertion of its
// successor run in one unit of work holding a lock on the presented row, so two
// concurrent refreshes of the same secret can never both produce a successor.
//
// Outcomes:
//   - unknown or expired secret: ErrRefreshInvalid.
//   - revoked secret: every credential of the owner is revoked and a ReuseError
//     (matching ErrTokenReuseDetected) is returned.
//   - otherwise: the new pair.
func (s *Service) Refresh(ctx context.Context, secret string) (Issued, error) {
	const op = "session.Refresh"

	hash, ok := s.creds.digest(secret)
	if !ok {
		s.metrics.refresh("invalid")
		return Issued{}, ErrRefreshInvalid
	}

	var (
		next RefreshCredential
		err  error
	)
	now := s.now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		next, err = s.rotate(ctx, hash, now)
		if !errors.Is(err, ErrConflict) {
			break
		}
		s.log.Warn("auth.refresh.secret_collision", "attempt", attempt+1)
	}

	var reuse ReuseError
	switch {
	case errors.As(err, &reuse):
		return Issued{}, s.revokeAfterReuse(ctx, op, reuse.OwnerID, now)
	case errors.Is(err, ErrRefreshInvalid):
		s.metrics.refresh("invalid")
		return Issued{}, ErrRefreshInvalid
	case err != nil:
		s.metrics.refresh("error")
		return Issued{}, internal(op, err)
	}

	u, err := s.CurrentIdentity(ctx, next.OwnerID)
	if err != nil {
		if _, rerr := s.creds.store.RevokeBySecretHash(context.WithoutCancel(ctx), next.SecretHash, now); rerr != nil {
			s.log.Error("auth.refresh.revoke_orphan.fail", "owner_id", next.OwnerID, "err", rerr)
		}
		if errors.Is(err, ErrUserNotFound) {
			s.metrics.refresh("invalid")
			s.log.Info("auth.refresh.owner_gone", "owner_id", next.OwnerID)
			return Issued{}, ErrRefreshInvalid
		}
		s.metrics.refresh("error")
		return Issued{}, err
	}

	out, err := s.signFor(op, u, next, now)
	if err != nil {
		s.metrics.refresh("error")
		return Issued{}, err
	}
	s.metrics.refresh("ok")
	s.log.Info("auth.refresh.ok", "owner_id", u.ID)
	return out, nil
}

// rotate runs the locked check-revoke-insert step and returns the committed successor.
// A revoked row aborts the unit of work with a ReuseError carrying its owner.
func (s *Service) rotate(ctx context.Context, hash string, now time.Time) (RefreshCredential, error) {
	var next RefreshCredential

	err := s.creds.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockBySecretHash(ctx, hash)
		if errors.Is(err, ErrCredentialNotFound) {
			return ErrRefreshInvalid
		}
		if err != nil {
			return err
		}

		if cur.RevokedAt != nil {
			return ReuseError{OwnerID: cur.OwnerID}
		}
		if !now.Before(cur.ExpiresAt) {
			return ErrRefreshInvalid
		}

		if err := tx.MarkRevoked(ctx, cur.ID, now); err != nil {
			return err
		}
		cand, err := s.creds.build(cur.OwnerID, now, now.Add(s.cfg.RefreshTTL))
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, cand); err != nil {
			return err
		}
		next = cand
		return nil
	})
	if err != nil {
		return RefreshCredential{}, err
	}
	return next, nil
}

// revokeAfterReuse performs the mass revocation for a reuse event outside the
// aborted unit of work. It runs detached from ctx cancellation so a client hanging
// up cannot skip it.
func (s *Service) revokeAfterReuse(ctx context.Context, op, ownerID string, now time.Time) error {
	s.metrics.reuseDetected()
	s.metrics.refresh("reuse")

	n, err := s.creds.RevokeAllForOwner(context.WithoutCancel(ctx), ownerID, now)
	if err != nil {
		s.log.Error("auth.refresh.reuse_detected", "owner_id", ownerID, "revoke_err", err)
		return errors.Join(ReuseError{OwnerID: ownerID}, OpError{Op: op, Err: err})
	}

	s.log.Warn("auth.refresh.reuse_detected", "owner_id", ownerID, "revoked", n)
	return ReuseError{OwnerID: ownerID, Revoked: n}
}
