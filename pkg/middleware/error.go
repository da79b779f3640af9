package middleware

import (
	"casa-arrears/pkg/errutil"

	"github.com/gin-gonic/gin"
)

func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		base := errutil.BaseError{Code: errutil.StatusInternal, Message: err.Error()}
		c.JSON(base.Code.HTTPStatus(), base.JSON())
	}
}
