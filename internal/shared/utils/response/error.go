package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/apperr"
)

// RespondError writes err using the status of its error class. Transient
// failures carry an unknown outcome so clients re-query before retrying.
func RespondError(c *gin.Context, err error) {
	code := apperr.HTTPStatus(err)

	var data interface{}
	if errors.Is(err, apperr.ErrTransient) {
		data = gin.H{"outcome": "unknown"}
	}

	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "Internal server error"
	}

	_ = c.Error(err)
	RespondJSON(c, "error", code, message, data, nil)
}
