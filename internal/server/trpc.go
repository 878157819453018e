package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxMutationBodyBytes = 64 << 10

type resultEnvelope struct {
	Result resultBody `json:"result"`
}

type resultBody struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    rpc.Code  `json:"code"`
	Message string    `json:"message"`
	Data    errorData `json:"data"`
}

type errorData struct {
	HTTPStatus  int                 `json:"httpStatus"`
	Path        string              `json:"path"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}

// handleQuery serves GET /trpc/:path with a URL-encoded JSON "input" parameter.
func (h *httpHandler) handleQuery(c *gin.Context) {
	h.dispatch(c, rpc.KindQuery, json.RawMessage(c.Query("input")))
}

// handleMutation serves POST /trpc/:path with a JSON body.
func (h *httpHandler) handleMutation(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMutationBodyBytes+1))
	if err != nil {
		h.writeError(c, c.Param("path"), rpc.Validation(map[string][]string{"input": {"unreadable request body"}}))
		return
	}
	if len(body) > maxMutationBodyBytes {
		h.writeError(c, c.Param("path"), rpc.Validation(map[string][]string{"input": {"request body too large"}}))
		return
	}
	h.dispatch(c, rpc.KindMutation, json.RawMessage(body))
}

func (h *httpHandler) dispatch(c *gin.Context, kind rpc.Kind, rawInput json.RawMessage) {
	path := c.Param("path")
	endpoint, ok := h.procedures.Lookup(path)
	if !ok {
		h.writeError(c, path, rpc.NotFound(fmt.Sprintf("No procedure found on path '%s'", path)))
		return
	}
	if endpoint.Kind() != kind {
		h.writeError(c, path, rpc.MethodNotAllowed(fmt.Sprintf("Procedure '%s' is a %s", path, endpoint.Kind())))
		return
	}

	result, err := endpoint.Invoke(c.Request.Context(), sessionFrom(c), rawInput)
	if err != nil {
		h.writeError(c, path, err)
		return
	}
	c.JSON(http.StatusOK, resultEnvelope{Result: resultBody{Data: result}})
}

func (h *httpHandler) writeError(c *gin.Context, path string, err error) {
	rpcErr := rpc.FromError(err)
	status := rpcErr.HTTPStatus()
	if rpcErr.Code == rpc.CodeInternal {
		logging.WithTrace(c.Request.Context(), h.logger).Error("procedure failed",
			zap.String("path", path),
			zap.Error(err))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: errorBody{
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
		Data: errorData{
			HTTPStatus:  status,
			Path:        path,
			FieldErrors: rpcErr.FieldErrors,
		},
	}})
}
