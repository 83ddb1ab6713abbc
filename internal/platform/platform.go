// Package platform holds the operating-system glue around the core:
// the Windows native clipboard-history toggle and global hotkey
// registration. On other systems every call returns ErrUnsupported.
package platform

import "errors"

// ErrUnsupported is returned on systems without the requested facility.
var ErrUnsupported = errors.New("platform: not supported on this system")
