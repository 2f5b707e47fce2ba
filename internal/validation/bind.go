package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate decodes the JSON body into out and validates it, writing
// the 400 response itself on failure. Handlers treat a false return as
// already answered.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid_request_body",
			"detail": err.Error(),
		})
		return false
	}
	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": fieldErrors(err),
		})
		return false
	}
	return true
}

// fieldErrors flattens validator output to field name -> failed rule.
func fieldErrors(err error) map[string]string {
	fields := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		fields["body"] = err.Error()
		return fields
	}
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
