package httpserver

import "github.com/labstack/echo/v4"

// envelope is the uniform success body: the payload under data, plus a
// human-readable message.
func envelope(data any, message string) echo.Map {
	return echo.Map{
		"data":    data,
		"message": message,
	}
}
