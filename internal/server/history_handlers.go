package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type ListHistoryRequest struct {
	Limit int `query:"limit" validate:"gte=1,lte=100"`
}

type Snapshot struct {
	ID          string   `json:"id"`
	Contract    string   `json:"contract"`
	BlockNumber *uint64  `json:"block_number,omitempty"`
	Balance     string   `json:"balance"`
	TokenIDs    []string `json:"token_ids"`
	CreatedAt   int64    `json:"created_at"`
}

type Run struct {
	RunID       string `json:"run_id"`
	Balance     uint64 `json:"balance"`
	AssetCount  uint32 `json:"asset_count"`
	Skipped     uint32 `json:"skipped"`
	URIFailures uint32 `json:"uri_failures"`
	DurationMs  uint64 `json:"duration_ms"`
	CompletedAt int64  `json:"completed_at"`
}

type History struct {
	Account   string     `json:"account"`
	Snapshots []Snapshot `json:"snapshots"`
	Runs      []Run      `json:"runs"`
}

// ListHistory returns recorded snapshots and runs for the account, newest first.
func (s *Server) ListHistory(c echo.Context) error {
	req := ListHistoryRequest{Limit: 20}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return fail(c, http.StatusUnprocessableEntity, err)
	}

	ctx := c.Request().Context()
	acct := account(c).Hex()
	h := History{Account: acct, Snapshots: []Snapshot{}, Runs: []Run{}}

	if s.snapshots != nil {
		list, err := s.snapshots.ListByAccount(ctx, acct, req.Limit)
		if err != nil {
			return fail(c, http.StatusInternalServerError, err)
		}
		for _, sn := range list {
			h.Snapshots = append(h.Snapshots, Snapshot{
				ID:          sn.ID,
				Contract:    sn.Contract,
				BlockNumber: sn.BlockNumber,
				Balance:     sn.Balance,
				TokenIDs:    sn.TokenIDs,
				CreatedAt:   sn.CreatedAt,
			})
		}
	}

	if s.runs != nil {
		list, err := s.runs.ListByAccount(ctx, acct, req.Limit)
		if err != nil {
			return fail(c, http.StatusInternalServerError, err)
		}
		for _, r := range list {
			h.Runs = append(h.Runs, Run{
				RunID:       r.RunID,
				Balance:     r.Balance,
				AssetCount:  r.AssetCount,
				Skipped:     r.Skipped,
				URIFailures: r.URIFailures,
				DurationMs:  r.DurationMs,
				CompletedAt: r.CompletedAt,
			})
		}
	}

	return c.JSON(http.StatusOK, Res{
		Data: h,
		Meta: &Meta{Total: len(h.Snapshots), Limit: req.Limit},
	})
}
