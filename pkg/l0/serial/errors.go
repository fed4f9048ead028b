package serial

import "errors"

// ErrNoDevice indicates no port answered a probe.
var ErrNoDevice = errors.New("no responsive scanner found")
