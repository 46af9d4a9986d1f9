//go:build mock

package main

import (
	"log/slog"

	"github.com/tickerhw/wifid/wifi"
	"github.com/tickerhw/wifid/wifi/mock"
)

func newRadio(logger *slog.Logger) (wifi.Radio, error) {
	return mock.New()
}
