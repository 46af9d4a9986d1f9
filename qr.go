package main

import (
	qrcode "github.com/skip2/go-qrcode"

	"github.com/tickerhw/wifid/captive"
)

// renderJoinQR returns a terminal-friendly QR code holding the network's
// WIFI: join string.
func renderJoinQR(name, secret string) (string, error) {
	q, err := qrcode.New(captive.JoinString(name, secret), qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
