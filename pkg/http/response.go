package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes data in the standard envelope.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// AcceptedResponse acknowledges work that continues in the background.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

func NotFoundResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusNotFound, data)
}

// BadRequestResponse reports validation or binding errors.
func BadRequestResponse(c echo.Context, errs interface{}) error {
	return c.JSON(http.StatusBadRequest, APIResponse{
		Status:  http.StatusBadRequest,
		Message: http.StatusText(http.StatusBadRequest),
		Errors:  errs,
	})
}

// AppErrorResponse renders err through Classify.
func AppErrorResponse(c echo.Context, err error, rules ...ErrorRule) error {
	appErr := Classify(err, rules...)
	return c.JSON(appErr.Status, APIResponse{
		Status:  appErr.Status,
		Message: appErr.Message,
		Errors:  []*AppError{appErr},
	})
}
