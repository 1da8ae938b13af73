package apperr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorDTO struct {
	Error struct {
		Code    Code              `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

func body(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// Render writes err as the standard error body. Internal errors are attached
// to the gin context so the request logger records the cause, and the client
// only sees a generic message.
func Render(c *gin.Context, err error) {
	var api *Error
	if errors.As(err, &api) && api.Code != CodeInternal {
		c.JSON(HTTPStatus(err), body(api.Code, api.Message))
		return
	}
	_ = c.Error(err)
	c.JSON(HTTPStatus(err), body(CodeInternal, "internal server error"))
}

// RenderBind turns a ShouldBind* failure into a 400 with per-field tags.
func RenderBind(c *gin.Context, err error) {
	out := body(CodeInvalidArgument, "invalid json or missing required fields")
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out.Error.Fields = make(map[string]string, len(ve))
		for _, fe := range ve {
			out.Error.Fields[fe.Field()] = fe.Tag()
		}
	}
	c.JSON(HTTPStatus(Invalid("")), out)
}
