package authstate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ChangePassword replaces the password of userID after checking the
// current one. On success every session of the user is invalidated and
// lockout state for the stored username is cleared. Failures recorded under
// a differently cased spelling are a separate identity unless
// Lockout.CaseInsensitive is set, and decay on their own.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(username string, err error) error {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, username, "", ReasonNone, func() map[string]string {
			return map[string]string{"error": err.Error()}
		})
		return err
	}

	if problems := e.policy.Check(newPassword); len(problems) > 0 {
		return fail("", fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(problems, "; ")))
	}
	if oldPassword == newPassword {
		return fail("", ErrPasswordReuse)
	}

	user, err := e.lookupUser(ctx, func() (*User, error) {
		return e.users.GetUserByID(ctx, userID)
	})
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		e.equalizeTiming(oldPassword)
		return fail("", ErrUserNotFound)
	}

	ok, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordHasher, err)
	}
	if !ok {
		return fail(user.Username, ErrInvalidCredentials)
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordHasher, err)
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		return fmt.Errorf("%w: %w", ErrUserProvider, err)
	}

	n := e.sessions.InvalidateUser(user.ID)
	if err := e.lockout.Clear(ctx, user.Username); err != nil {
		return fmt.Errorf("%w: %w", ErrLockoutBackend, err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.ID, user.Username, "", ReasonNone, nil)
	e.logger.Info("password changed",
		slog.String("user_id", user.ID),
		slog.Int("sessions_invalidated", n),
	)
	return nil
}
