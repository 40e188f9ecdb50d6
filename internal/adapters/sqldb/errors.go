package sqldb

import "errors"

// Sentinel kinds for this package.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrOpen              = errors.New("open database failed")
	ErrMigrate           = errors.New("migrate database failed")
)
