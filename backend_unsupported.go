//go:build !linux && !mock

package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/tickerhw/wifid/wifi"
)

func newRadio(logger *slog.Logger) (wifi.Radio, error) {
	return nil, fmt.Errorf("%w: no radio backend for %s (build with -tags mock to try it out)", wifi.ErrNotSupported, runtime.GOOS)
}
