package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnsupportedFile    = 40002
	CodeEmptyDocument      = 40003
	CodeUnauthorized       = 40100
	CodeDocumentNotFound   = 40401
	CodeDocumentExists     = 40901
	CodeDocumentNotReady   = 40902
	CodeDocumentBusy       = 40903
	CodeFileTooLarge       = 41300
	CodeInternalServer     = 50000
	CodeServiceUnavailable = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
