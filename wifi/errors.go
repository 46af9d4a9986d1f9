package wifi

import "errors"

var (
	ErrNotSupported    = errors.New("not supported")
	ErrNetworkNotFound = errors.New("network not found")
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrConnectTimeout  = errors.New("connect timeout")
	ErrRadioFault      = errors.New("radio fault")
)
