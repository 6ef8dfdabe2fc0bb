package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"nft-holdings/internal/holdings"
)

var errNoSession = errors.New("no holdings loaded for account; list assets first")

type ResolveMetadataRequest struct {
	Index int `param:"index" validate:"gte=0"`
}

// ListAssets reads the account's balance, reruns aggregation if it changed
// and returns the newest session.
func (s *Server) ListAssets(c echo.Context) error {
	sess, err := s.holdings.Sync(c.Request().Context(), account(c))
	if err != nil {
		return s.aggregationError(c, err)
	}
	return sessionRes(c, sess)
}

// RefreshAssets forces a new aggregation run.
func (s *Server) RefreshAssets(c echo.Context) error {
	sess, err := s.holdings.Refresh(c.Request().Context(), account(c))
	if err != nil {
		return s.aggregationError(c, err)
	}
	return sessionRes(c, sess)
}

// ResolveMetadata fetches the metadata of one asset of the current session.
func (s *Server) ResolveMetadata(c echo.Context) error {
	var req ResolveMetadataRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return fail(c, http.StatusUnprocessableEntity, err)
	}

	sess, ok := s.holdings.Session(account(c))
	if !ok {
		return fail(c, http.StatusNotFound, errNoSession)
	}

	_, err := sess.Resolve(c.Request().Context(), req.Index)
	var rerr *holdings.ResolveError
	switch {
	case err == nil:
	case errors.Is(err, holdings.ErrAssetNotFound):
		return fail(c, http.StatusNotFound, err)
	case errors.Is(err, holdings.ErrResolutionInFlight):
		return fail(c, http.StatusConflict, err)
	case errors.As(err, &rerr):
		return c.JSON(http.StatusBadGateway, Res{Data: assetView(sess, req.Index), Error: err.Error()})
	default:
		return fail(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, Res{Data: assetView(sess, req.Index)})
}

func (s *Server) aggregationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, holdings.ErrBalanceOverflow):
		return fail(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fail(c, http.StatusGatewayTimeout, err)
	default:
		s.logger.Warn().Err(err).Str("account", account(c).Hex()).Msg("aggregation request failed")
		return fail(c, http.StatusBadGateway, err)
	}
}

func sessionRes(c echo.Context, sess *holdings.Session) error {
	v := sess.View()
	return c.JSON(http.StatusOK, Res{
		Data: v,
		Meta: &Meta{Total: len(v.Assets), Generation: v.Generation},
	})
}

func assetView(sess *holdings.Session, index int) *holdings.AssetView {
	for _, a := range sess.View().Assets {
		if a.Index == index {
			return &a
		}
	}
	return nil
}
