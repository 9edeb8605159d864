package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vereinhub/backend/internal/push"
)

type PushHandler struct {
	dispatcher *push.Dispatcher
}

func NewPushHandler(dispatcher *push.Dispatcher) *PushHandler {
	return &PushHandler{dispatcher: dispatcher}
}

// Send delivers one notification batch to the push provider. Accepts both the
// batched payload carrying a notification record id and the legacy
// single-token payload. Registered with router.Any so non-POST calls get an
// explicit 405.
func (h *PushHandler) Send(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		ErrorResponse(c, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	req, err := push.ParseRequest(body)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), req)
	if err != nil {
		var provErr *push.ProviderError
		if errors.As(err, &provErr) {
			ErrorResponse(c, http.StatusBadGateway, provErr.Error())
			return
		}
		ErrorResponse(c, http.StatusBadGateway, "Push provider call failed")
		return
	}

	if result.Skipped != "" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": result.Skipped})
		return
	}

	c.Data(http.StatusOK, "application/json", result.ProviderBody)
}
