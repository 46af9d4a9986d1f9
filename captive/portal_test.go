package captive

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinString(t *testing.T) {
	tests := []struct {
		name, secret, want string
	}{
		{"plain", "hunter2", "WIFI:T:WPA;S:plain;P:hunter2;;"},
		{"open net", "", "WIFI:T:nopass;S:open net;;"},
		{"semi;colon", `pa:ss`, `WIFI:T:WPA;S:semi\;colon;P:pa\:ss;;`},
		{`quo"te`, `back\slash`, `WIFI:T:WPA;S:quo\"te;P:back\\slash;;`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinString(tt.name, tt.secret))
	}
}

func TestPortalRedirectsForeignHosts(t *testing.T) {
	h := portalHandler(net.IPv4(192, 168, 4, 1), "setup", "12345678", nil)

	r := httptest.NewRequest(http.MethodGet, "http://connectivitycheck.gstatic.com/generate_204", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://192.168.4.1/", w.Header().Get("Location"))
}

func TestPortalServesPage(t *testing.T) {
	h := portalHandler(net.IPv4(192, 168, 4, 1), "setup", "12345678", nil)

	r := httptest.NewRequest(http.MethodGet, "http://192.168.4.1/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "setup")
	assert.Contains(t, w.Body.String(), "/qr.png")
}

func TestPortalServesQRCode(t *testing.T) {
	h := portalHandler(net.IPv4(192, 168, 4, 1), "setup", "12345678", nil)

	r := httptest.NewRequest(http.MethodGet, "http://192.168.4.1/qr.png", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", w.Body.String()[:4])
}

func TestPortalMountsAdminHandler(t *testing.T) {
	admin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("admin ui"))
	})
	h := portalHandler(net.IPv4(192, 168, 4, 1), "setup", "12345678", admin)

	r := httptest.NewRequest(http.MethodGet, "http://192.168.4.1/networks", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "admin ui", w.Body.String())
}
