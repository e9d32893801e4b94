package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/interfaces/http/dto"
)

type validationBody struct {
	AccountID string `json:"accountId" binding:"required"`
	Mode      string `json:"mode" binding:"omitempty,oneof=claims returns both"`
	Limit     int    `json:"limit" binding:"omitempty,min=1,max=200"`
	Window    struct {
		From string `json:"from" binding:"required"`
	} `json:"window"`
}

func validationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID(), BodyLimit(256))
	router.POST("/test", func(c *gin.Context) {
		var body validationBody
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func postJSON(router http.Handler, body string) (*httptest.ResponseRecorder, dto.Response) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHandleValidationError(t *testing.T) {
	router := validationRouter()

	t.Run("field errors use json names", func(t *testing.T) {
		w, resp := postJSON(router, `{"mode":"everything","limit":500}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

		messages := map[string]string{}
		for _, d := range resp.Error.Details {
			messages[d.Field] = d.Message
		}
		assert.Equal(t, "accountId is required", messages["accountId"])
		assert.Equal(t, "mode must be one of: claims returns both", messages["mode"])
		assert.Equal(t, "limit must be at most 200", messages["limit"])
		assert.Equal(t, "window.from is required", messages["window.from"])
	})

	t.Run("malformed json", func(t *testing.T) {
		w, resp := postJSON(router, `{"accountId":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Contains(t, []string{dto.ErrCodeInvalidJSON, dto.ErrCodeBadRequest}, resp.Error.Code)
	})

	t.Run("wrong type", func(t *testing.T) {
		w, resp := postJSON(router, `{"accountId":"a","limit":"ten","window":{"from":"x"}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("valid body", func(t *testing.T) {
		w, _ := postJSON(router, `{"accountId":"a","mode":"both","window":{"from":"x"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
