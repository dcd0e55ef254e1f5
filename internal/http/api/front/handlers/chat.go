package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/reviewrelay/reviewrelay/internal/models"
	"github.com/reviewrelay/reviewrelay/internal/quota"
	"github.com/reviewrelay/reviewrelay/internal/usage"
	log "github.com/sirupsen/logrus"
)

const (
	// maxPromptRunes bounds stored prompt length.
	maxPromptRunes = 8000
	// answerPreviewRunes is how much of the prompt the placeholder answer echoes.
	answerPreviewRunes = 200
	// runesPerToken is the rough prompt-size-to-token estimate used for the
	// per-request token budget.
	runesPerToken = 4
)

// ChatHandler serves the metered chat endpoint.
type ChatHandler struct {
	checker *quota.Checker
	ledger  *usage.Ledger
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(checker *quota.Checker, ledger *usage.Ledger) *ChatHandler {
	return &ChatHandler{checker: checker, ledger: ledger}
}

// chatRequest defines the request body for chat.
type chatRequest struct {
	Prompt string `json:"prompt"`
}

// Chat runs every admission predicate, produces the placeholder answer, and
// records the usage event. Usage is recorded only after all predicates pass.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauth"})
		return
	}

	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	prompt = truncateRunes(prompt, maxPromptRunes)

	ctx := c.Request.Context()
	decision, errQuota := h.checker.CheckQuota(ctx, userID)
	if errQuota != nil {
		log.WithError(errQuota).Error("chat: quota check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admission failed"})
		return
	}
	if !decision.OK {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "limit",
			"used":  decision.Used,
			"limit": decision.Limit,
			"plan":  decision.Plan,
		})
		return
	}

	rate, errRate := h.checker.CheckRate(ctx, userID, decision.Plan)
	if errRate != nil {
		log.WithError(errRate).Error("chat: rate check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admission failed"})
		return
	}
	if !rate.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate"})
		return
	}

	tokensIn := len([]rune(prompt)) / runesPerToken
	if !h.checker.WithinTokenBudget(decision.Plan, tokensIn) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tokens"})
		return
	}

	answer := "Echo: " + truncateRunes(prompt, answerPreviewRunes) + "…"
	errRecord := h.ledger.Record(ctx, userID, models.UsageEventKindChatRequest, tokensIn, len([]rune(answer))/runesPerToken, map[string]any{
		"model": "placeholder",
	})
	if errRecord != nil {
		log.WithError(errRecord).Error("chat: record usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record usage failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
