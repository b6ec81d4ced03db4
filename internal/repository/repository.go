// Package repository maps domain records onto docstore collections.
package repository

import (
	"errors"
	"fmt"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
)

// ErrConcurrentUpdate reports that a guarded write lost to another writer.
var ErrConcurrentUpdate = errors.New("document changed concurrently")

// translate maps store sentinels to domain errors and tags the rest as
// upstream failures.
func translate(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s not found: %w", what, domain.ErrNotFound)
	case errors.Is(err, docstore.ErrConditionFailed):
		return fmt.Errorf("%s %s: %w", op, what, ErrConcurrentUpdate)
	default:
		return domain.Upstream(op+" "+what, err)
	}
}
