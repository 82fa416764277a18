package db

import "errors"

var ErrNotFound = errors.New("not found")

// IgnoreErrNotFound turns a missing row into a nil error, for lookups where absence is expected.
func IgnoreErrNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
