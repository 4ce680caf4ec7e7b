package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/andesco/subpage/pkg/edge"
)

// ProxySite is a Fiber handler that serves every request through the edge proxy.
func ProxySite(p *edge.Proxy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := p.Handle(c.UserContext(), edgeRequest(c))

		for key, values := range res.Header {
			for _, value := range values {
				c.Response().Header.Add(key, value)
			}
		}
		c.Status(res.Status)
		return c.Send(res.Body)
	}
}

// edgeRequest converts the Fiber request into the proxy's view of it. The path
// is taken verbatim so escaped characters reach the origin unchanged.
func edgeRequest(c *fiber.Ctx) edge.Request {
	headers := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	return edge.Request{
		Method:   c.Method(),
		Host:     string(c.Request().Host()),
		Path:     string(c.Request().URI().PathOriginal()),
		RawQuery: string(c.Request().URI().QueryString()),
		Header:   headers,
	}
}
