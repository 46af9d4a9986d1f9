package captive

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// joinEscape escapes the characters that are special in WIFI: join strings.
func joinEscape(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		`:`, `\:`,
		`"`, `\"`,
	)
	return r.Replace(s)
}

// JoinString builds the WIFI: payload phones understand in QR codes.
func JoinString(name, secret string) string {
	if secret == "" {
		return fmt.Sprintf("WIFI:T:nopass;S:%s;;", joinEscape(name))
	}
	return fmt.Sprintf("WIFI:T:WPA;S:%s;P:%s;;", joinEscape(name), joinEscape(secret))
}

const portalPage = `<!DOCTYPE html>
<html>
<head><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title></head>
<body style="font-family:sans-serif;text-align:center;padding:2em">
<h1>%s</h1>
<p>Scan to join this access point:</p>
<img src="/qr.png" alt="join QR code" width="256" height="256">
</body>
</html>
`

// portalHandler serves the portal and redirects every foreign Host there,
// which is what turns an OS connectivity probe into the portal sheet.
func portalHandler(apAddr net.IP, name, secret string, admin http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/qr.png", func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(JoinString(name, secret), qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encoding failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	if admin != nil {
		mux.Handle("/", admin)
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, portalPage, name, name)
		})
	}

	home := apAddr.String()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host != home {
			http.Redirect(w, r, "http://"+home+"/", http.StatusFound)
			return
		}
		mux.ServeHTTP(w, r)
	})
}
