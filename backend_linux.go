//go:build linux && !mock

package main

import (
	"log/slog"

	"github.com/tickerhw/wifid/wifi"
	"github.com/tickerhw/wifid/wifi/networkmanager"
)

func newRadio(logger *slog.Logger) (wifi.Radio, error) {
	return networkmanager.New(logger)
}
