package resolve

import (
	"context"
	"fmt"
	"strings"

	"hnas-backup/src/hnasapi"
)

// NotFoundError means a configured filesystem reference matched nothing.
type NotFoundError struct{ Ref string }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("filesystem %q not found", e.Ref)
}

// AmbiguousError means a display name matched more than one filesystem.
// Labels are supposed to be unique on the NAS, but we refuse to guess.
type AmbiguousError struct {
	Ref   string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("filesystem name %q is ambiguous: %d matches", e.Ref, e.Count)
}

// LooksLikeID reports whether ref has the shape of a canonical HNAS
// filesystem id: exactly 32 hex characters.
func LooksLikeID(ref string) bool {
	if len(ref) != 32 {
		return false
	}
	for _, c := range ref {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Filesystem maps a configured reference (display name or canonical id) to
// the filesystem it denotes. Id-shaped references are fetched directly;
// names are matched case-sensitively against the labels of all filesystems.
// No side effects.
func Filesystem(ctx context.Context, client hnasapi.Client, ref string) (hnasapi.Filesystem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return hnasapi.Filesystem{}, &NotFoundError{Ref: ref}
	}

	if LooksLikeID(ref) {
		fs, err := client.GetFilesystem(ctx, ref)
		if _, missing := err.(*hnasapi.NotFoundError); missing {
			return hnasapi.Filesystem{}, &NotFoundError{Ref: ref}
		}
		return fs, err
	}

	all, err := client.ListFilesystems(ctx)
	if err != nil {
		return hnasapi.Filesystem{}, err
	}
	var matches []hnasapi.Filesystem
	for _, fs := range all {
		if fs.Label == ref {
			matches = append(matches, fs)
		}
	}
	switch len(matches) {
	case 0:
		return hnasapi.Filesystem{}, &NotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	default:
		return hnasapi.Filesystem{}, &AmbiguousError{Ref: ref, Count: len(matches)}
	}
}
