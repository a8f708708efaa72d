package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
)

// NewPreviewToken returns an opaque token and the bcrypt hash to persist.
func NewPreviewToken() (token, hash string, err error) {
	token = "pv_" + uuid.NewString()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash preview token: %w", err)
	}
	return token, string(h), nil
}

// CheckPreviewToken compares a presented token against a stored hash.
func CheckPreviewToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// CanUseTemplate decides whether user may fill in tmpl. Available public
// templates are open to everyone; org templates need membership; anything
// else needs the template's preview token. Platform editors see everything.
func CanUseTemplate(ctx context.Context, r *store.Repo, user *metadata.UserContext, tmpl *metadata.Template, previewToken string) (bool, error) {
	if user.CanEditGlobal() {
		return true, nil
	}
	if tmpl.Available {
		if tmpl.IsGlobal() || user.IsMemberOf(*tmpl.OrganizationID) {
			return true, nil
		}
	}
	if previewToken == "" {
		return false, nil
	}
	hash, err := r.PreviewTokenHash(ctx, tmpl.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return CheckPreviewToken(hash, previewToken), nil
}
