package transport

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second

	EditorPath       = "AnnotationEditorService"
	ChangeFeedPath   = "AnnotationChangeNotificationService"
	defaultKeepAlive = 30 * time.Second
)

// NewClient builds the shared HTTP client. Per-request deadlines come from
// contexts so long polls and edits can use different timeouts over the same
// connection pool.
func NewClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   defaultConnectTimeout,
		KeepAlive: defaultKeepAlive,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Endpoint joins the server base URL and a service path.
func Endpoint(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + path)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
