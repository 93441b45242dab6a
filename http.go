package main

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"time"
)

const githubTokenEnv = "FORMULA_GITHUB_TOKEN"

func defaultClient() *http.Client {
	return &http.Client{
		Transport: defaultTransport(),
	}
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   runtime.GOMAXPROCS(0) + 1,
	}
}

// newClient returns a client that authenticates GitHub API requests when a
// token is available in the environment.
func newClient() *http.Client {
	token := os.Getenv(githubTokenEnv)
	if token == "" {
		return defaultClient()
	}
	return newAuthedClient(token, "api.github.com")
}

func newAuthedClient(token string, hosts ...string) *http.Client {
	return &http.Client{
		Transport: &authedTransport{
			Transport: defaultTransport(),
			token:     token,
			hosts:     hosts,
		},
	}
}

type authedTransport struct {
	*http.Transport
	token string
	hosts []string
}

func (t *authedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if values := req.Header.Values("Authorization"); len(values) == 0 && t.matches(req.URL.Hostname()) {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.Transport.RoundTrip(req)
}

func (t *authedTransport) matches(host string) bool {
	if len(t.hosts) == 0 {
		return true
	}
	for _, h := range t.hosts {
		if h == host {
			return true
		}
	}
	return false
}
