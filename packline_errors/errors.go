// Provides common packline errors definitions.
package packline_errors

import "errors"

var (
	ErrClosed        = errors.New("packline: no capture open")
	ErrNoSchema      = errors.New("packline: no column schema installed")
	ErrRecordUnknown = errors.New("packline: unknown record")
	ErrBadRecord     = errors.New("packline: bad record envelope")
	ErrBadColumnSpec = errors.New("packline: bad column spec")
)
