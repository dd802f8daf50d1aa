package handlers

import (
	"github.com/gin-gonic/gin"

	"messaging-service/internal/errs"
	"messaging-service/internal/pagination"
)

type envelope struct {
	Result      string            `json:"result"`
	Message     string            `json:"message,omitempty"`
	Code        errs.Kind         `json:"code,omitempty"`
	ErrorFields []errs.FieldError `json:"errorFields,omitempty"`
	Data        any               `json:"data,omitempty"`
	Meta        *pagination.Meta  `json:"meta,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any, meta *pagination.Meta) {
	c.JSON(status, envelope{Result: "success", Message: message, Data: data, Meta: meta})
}

// fail writes the public view of err. Internal details never leave the
// process.
func fail(c *gin.Context, err error) {
	message, fields := errs.Public(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(errs.HTTPStatus(err), envelope{
		Result:      "error",
		Message:     message,
		Code:        errs.KindOf(err),
		ErrorFields: fields,
	})
}
