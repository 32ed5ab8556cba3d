package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/server/service/journal"
)

type GeneratePromptRequest struct {
	PromptType    string   `json:"promptType"`
	RecentEntries string   `json:"recentEntries"`
	Query         string   `json:"query"`
	K             int      `json:"k"`
	Alpha         *float64 `json:"alpha"`
	Rerank        *bool    `json:"rerank"`
}

type GeneratePromptResponse struct {
	Prompt          string   `json:"prompt"`
	PromptType      string   `json:"promptType"`
	EntryIDs        []string `json:"entryIds"`
	Fallback        bool     `json:"fallback"`
	ContextDegraded bool     `json:"contextDegraded"`
}

// GeneratePrompt returns a writing prompt grounded in past entries.
// POST /generate-prompt
func (s *APIV1Service) GeneratePrompt(c echo.Context) error {
	var req GeneratePromptRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, apperrors.InvalidArgument("malformed request body"))
	}
	if req.K < 0 {
		return errorResponse(c, apperrors.InvalidArgument("k must not be negative"))
	}
	if req.Alpha != nil && (*req.Alpha < 0 || *req.Alpha > 1) {
		return errorResponse(c, apperrors.InvalidArgument("alpha must be within [0, 1]"))
	}

	result, err := s.Prompts.Generate(c.Request().Context(), &journal.GeneratePrompt{
		PromptType:    journal.ParsePromptType(req.PromptType),
		Query:         req.Query,
		RecentEntries: req.RecentEntries,
		K:             req.K,
		Alpha:         req.Alpha,
		Rerank:        req.Rerank,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, &GeneratePromptResponse{
		Prompt:          result.Prompt,
		PromptType:      string(result.PromptType),
		EntryIDs:        result.EntryIDs,
		Fallback:        result.Fallback,
		ContextDegraded: result.ContextDegraded,
	})
}
