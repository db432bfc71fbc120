package identity

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const maxHandleAttempts = 50

// getHandle falls back to the email local part when no explicit
// handle is provided.
func getHandle(handle, email string) string {
	if handle != "" {
		return handle
	}

	if strings.Contains(email, "@") {
		handle = strings.Split(email, "@")[0]
	}

	return handle
}

// ResolveHandle returns the desired handle, or, if taken, the first
// free candidate carrying a numeric suffix (jane, jane1, jane2...).
func ResolveHandle(ctx context.Context, repo Users, desired string) (string, error) {
	desired = strings.TrimSpace(desired)
	if desired == "" {
		return "", goerrors.New("handle must not be empty", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	candidate := desired
	for i := 0; i < maxHandleAttempts; i++ {
		taken, err := repo.HandleExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", desired, i+1)
	}

	return "", goerrors.New(
		fmt.Sprintf("could not find a free handle for %q", desired),
		goerrors.CategoryConflict,
	).WithCode(goerrors.CodeConflict)
}
