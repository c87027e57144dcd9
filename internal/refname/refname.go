// Package refname normalizes and validates branch names supplied by users
// before they are handed to git.
package refname

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmpty       = errors.New("branch cannot be empty")
	ErrWhitespace  = errors.New("branch cannot contain whitespace")
	ErrDoubleDot   = errors.New("branch cannot contain '..'")
	ErrForbidden   = errors.New("branch contains forbidden git characters")
	ErrLeadingDash = errors.New("branch cannot start with '-'")
	ErrBadSuffix   = errors.New("branch cannot end with '.' or '.lock'")
)

// Normalize trims whitespace, removes leading/trailing slashes, and strips a
// refs/heads prefix from a branch name. It returns an empty string when the
// normalized branch would otherwise be empty.
func Normalize(branch string) string {
	branch = strings.TrimSpace(branch)
	branch = strings.Trim(branch, "/")

	if len(branch) >= len("refs/heads/") && strings.EqualFold(branch[:len("refs/heads/")], "refs/heads/") {
		branch = branch[len("refs/heads/"):]
	}

	branch = strings.TrimSpace(branch)
	branch = strings.Trim(branch, "/")

	return strings.TrimSpace(branch)
}

// Validate ensures a branch name conforms to simple safety checks. A name that
// passes can never be interpreted by git as an option.
func Validate(branch string) error {
	if branch == "" {
		return ErrEmpty
	}

	if strings.HasPrefix(branch, "-") {
		return ErrLeadingDash
	}

	if strings.ContainsAny(branch, " \t\n\r") {
		return ErrWhitespace
	}

	if strings.Contains(branch, "..") {
		return ErrDoubleDot
	}

	if strings.ContainsAny(branch, "~^:?*[]@{\\") {
		return ErrForbidden
	}

	for _, r := range branch {
		if r < 0x20 || r == 0x7f {
			return ErrForbidden
		}
	}

	if strings.HasSuffix(branch, ".") || strings.HasSuffix(branch, ".lock") {
		return ErrBadSuffix
	}

	return nil
}

// Parse normalizes and validates a user supplied branch name.
func Parse(raw string) (string, error) {
	branch := Normalize(raw)
	if err := Validate(branch); err != nil {
		return "", fmt.Errorf("invalid branch %q: %w", raw, err)
	}
	return branch, nil
}
