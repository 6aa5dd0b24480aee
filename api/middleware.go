package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// DecompressRequests transparently inflates gzip-encoded request bodies so
// handlers always see plain JSON. A body that claims gzip encoding but does
// not parse is rejected with 400.
func DecompressRequests() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !declaresGzip(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &inflatedBody{Reader: gr, underlying: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func declaresGzip(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type inflatedBody struct {
	*gzip.Reader
	underlying io.Closer
}

func (b *inflatedBody) Close() error {
	var err error
	if b.Reader != nil {
		err = b.Reader.Close()
	}
	if b.underlying != nil {
		if cerr := b.underlying.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
