package server

import (
	"errors"
	"net/http"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const ctxKeyAccount = "account"

var errInvalidAccount = errors.New("account must be a 0x-prefixed 20-byte hex address")

func skipper(c echo.Context) bool {
	return slices.Contains([]string{
		"/api/health",
		"/metrics",
	}, c.Request().URL.Path)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		HandleError: true,
		Skipper:     skipper,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// accountParam validates :account and stores the parsed address.
func (s *Server) accountParam(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Param("account")
		if err := s.validator.Var(raw, "required,eth_addr"); err != nil {
			return fail(c, http.StatusBadRequest, errInvalidAccount)
		}
		c.Set(ctxKeyAccount, common.HexToAddress(raw))
		return next(c)
	}
}

func account(c echo.Context) common.Address {
	a, _ := c.Get(ctxKeyAccount).(common.Address)
	return a
}
