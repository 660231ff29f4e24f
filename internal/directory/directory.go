// Package directory looks up users and universities for audience resolution.
package directory

import (
	"context"
	"errors"
)

var (
	ErrUniversityNotFound = errors.New("UNIVERSITY_NOT_FOUND")
	ErrDirectoryFailed    = errors.New("DIRECTORY_LOOKUP_FAILED")
)

// Source is implemented by the Elasticsearch directory and its cache.
type Source interface {
	UserIDsByRole(ctx context.Context, role string) ([]string, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	UniversityName(ctx context.Context, universityID string) (string, error)
}

type Config struct {
	UsersIndex        string
	UniversitiesIndex string
	PageSize          int
}
