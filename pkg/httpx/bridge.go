package httpx

import (
	"net/http"
	"net/url"

	"github.com/valyala/fasthttp"
)

// FromNetHTTP lifts a net/http handler tree (e.g. a mux router) into the
// transport-neutral HandlerFunc so it can be served by any adapter. When
// Raw already carries a *http.Request it is reused; otherwise a request
// is reconstructed from the unified fields.
func FromNetHTTP(h http.Handler) HandlerFunc {
	return func(w ResponseWriter, r *Request) {
		var hr *http.Request
		if raw, ok := r.Raw.(*http.Request); ok {
			hr = raw
		} else {
			u := &url.URL{Path: r.Path}
			if fctx, ok := r.Raw.(*fasthttp.RequestCtx); ok {
				u.RawQuery = string(fctx.URI().QueryString())
			}
			hr = &http.Request{
				Method:     r.Method,
				URL:        u,
				Proto:      "HTTP/1.1",
				ProtoMajor: 1,
				ProtoMinor: 1,
				Header:     r.Header,
				Body:       r.Body,
				RemoteAddr: r.RemoteAddr,
				RequestURI: r.Path,
			}
			hr = hr.WithContext(r.Ctx)
		}
		h.ServeHTTP(&bridgeWriter{w: w}, hr)
	}
}

type bridgeWriter struct {
	w ResponseWriter
}

func (b *bridgeWriter) Header() http.Header         { return b.w.Header() }
func (b *bridgeWriter) WriteHeader(status int)      { b.w.WriteHeader(status) }
func (b *bridgeWriter) Write(p []byte) (int, error) { return b.w.Write(p) }
