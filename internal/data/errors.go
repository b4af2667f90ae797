package data

import (
	"errors"
	"fmt"

	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// storeErr classifies a driver error into the store taxonomy, keeping the
// driver error in the chain for logging.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, errs.ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, errs.ErrStoreUnavailable, err)
	}
}
