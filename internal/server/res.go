package server

import "github.com/labstack/echo/v4"

type Meta struct {
	Total      int    `json:"total"`
	Limit      int    `json:"limit,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
}

type Res struct {
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

func fail(c echo.Context, status int, err error) error {
	return c.JSON(status, Res{Error: err.Error()})
}
