package routers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"emoji-api/internal/ctx"
	"emoji-api/internal/handlers/emoji"
	"emoji-api/internal/middleware"
	"emoji-api/internal/shared"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

type EmojiRouter struct {
	eh *emoji.EmojiHandler
	// generation budget on top of the polling bound
	generationTimeout time.Duration
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	*shared.Emoji
	RemainingCredits int64 `json:"remaining_credits"`
}

// generationTimeout bounds a whole generate request: the polling budget plus
// room for submit, artifact fetch, upload and the record insert
func generationTimeout(cfg emoji.Config) time.Duration {
	return cfg.PollMaxWait + shared.GenerationTimeoutMargin
}

func RegisterEmojiRoutes(e *echo.Group, eh *emoji.EmojiHandler, umw *middleware.UserManager) {
	er := &EmojiRouter{eh: eh, generationTimeout: generationTimeout(eh.Config)}

	v1 := e.Group("/v1", emw.BodyLimit(shared.MaxRequestBodySize))
	extractUser := v1.Group("", umw.ExtractUser)
	requireUser := v1.Group("", umw.ExtractUser, umw.RequireUser)

	extractUser.GET("/emojis", er.ListEmojis)
	extractUser.GET("/emojis/:id", er.GetEmoji)
	extractUser.GET("/emojis/:id/download", er.DownloadEmoji)
	requireUser.POST("/emojis/generate", er.GenerateEmoji)
	requireUser.POST("/emojis/:id/like", er.LikeEmoji)
	requireUser.GET("/credits", er.GetCredits)
	requireUser.POST("/profile/init", er.InitProfile)
}

func (er *EmojiRouter) GenerateEmoji(cc echo.Context) error {
	c := cc.(*ctx.Context)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, "", errors.Join(err, shared.ErrInvalidRequest))
	}
	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return writeError(c, "", errors.Join(err, shared.ErrInvalidRequest))
	}
	c.Log.Infow("Generating emoji", "prompt", req.Prompt)

	// A client that goes away does not stop a generation it already paid for
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), er.generationTimeout)
	defer cancel()

	output, err := er.eh.GenerateLogic(emoji.GenerateInput{
		Ctx:    genCtx,
		UserID: c.User.UserID,
		Prompt: req.Prompt,
		Log:    c.Log,
	})
	if output != nil {
		c.LogValues.PredictionID = output.PredictionID
	}
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInsufficientCredit),
			errors.Is(err, shared.ErrUserNotFound),
			errors.Is(err, shared.ErrBadRequest):
			return writeError(c, "", err)
		default:
			return writeError(c, "Failed to generate emoji", err)
		}
	}

	c.LogValues.EmojiID = output.Emoji.ID
	c.LogValues.CreditsAfter = &output.RemainingCredits
	return c.JSON(http.StatusOK, GenerateResponse{
		Emoji:            output.Emoji,
		RemainingCredits: output.RemainingCredits,
	})
}

func (er *EmojiRouter) ListEmojis(cc echo.Context) error {
	c := cc.(*ctx.Context)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	emojis, err := er.eh.ListLogic(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, "Failed to fetch emojis", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": emojis})
}

func (er *EmojiRouter) GetEmoji(cc echo.Context) error {
	c := cc.(*ctx.Context)
	c.LogValues.EmojiID = c.Param("id")

	e, err := er.eh.GetLogic(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, "", err)
	}
	return c.JSON(http.StatusOK, e)
}

func (er *EmojiRouter) LikeEmoji(cc echo.Context) error {
	c := cc.(*ctx.Context)
	c.LogValues.EmojiID = c.Param("id")

	likes, err := er.eh.LikeLogic(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, "Failed to like emoji", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"id":      c.Param("id"),
		"likes":   likes,
	})
}

func (er *EmojiRouter) DownloadEmoji(cc echo.Context) error {
	c := cc.(*ctx.Context)
	c.LogValues.EmojiID = c.Param("id")

	out, err := er.eh.DownloadLogic(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, "Failed to download image", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+out.Filename+`"`)
	return c.Blob(http.StatusOK, out.ContentType, out.Data)
}

func (er *EmojiRouter) GetCredits(cc echo.Context) error {
	c := cc.(*ctx.Context)

	credits, err := er.eh.CreditsLogic(c.Request().Context(), c.User.UserID)
	if err != nil {
		return writeError(c, "", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"credits": credits})
}

func (er *EmojiRouter) InitProfile(cc echo.Context) error {
	c := cc.(*ctx.Context)

	out, err := er.eh.InitProfileLogic(c.Request().Context(), c.User.UserID)
	if err != nil {
		return writeError(c, "Failed to create profile", err)
	}
	if !out.Created {
		return c.JSON(http.StatusOK, map[string]any{"message": "Profile already exists", "credits": out.Credits})
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Profile initialized successfully", "credits": out.Credits})
}
