package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocketwatch/internal/model"
	"pocketwatch/internal/service"
)

// Handler adapts the service facade to HTTP.
type Handler struct {
	svc    *service.Service
	logger zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(svc *service.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "api").Logger()}
}

// InsightResponse is the wire form of one ranked insight.
type InsightResponse struct {
	RuleID         string    `json:"rule_id"`
	DedupeKey      string    `json:"dedupe_key"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation,omitempty"`
	FinalScore     string    `json:"final_score"`
	Suppressed     bool      `json:"suppressed"`
	SuppressReason string    `json:"suppress_reason,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// WalletResponse is the wire form of the wallet risk state.
type WalletResponse struct {
	VaultID              string    `json:"vault_id"`
	Level                string    `json:"level"`
	RunwayDays           *string   `json:"runway_days"`
	BurnRatePerDay       string    `json:"burn_rate_per_day"`
	RestrictedCategories []string  `json:"restricted_categories"`
	EnteredAt            time.Time `json:"entered_at"`
}

// GetInsights returns the vault's current ranked insights.
func (h *Handler) GetInsights(c *gin.Context) {
	vaultID := c.Param("vault")

	ranked, err := h.svc.RankedInsights(c.Request.Context(), vaultID)
	if err != nil {
		h.logger.Error().Err(err).Str("vault", vaultID).Msg("insight retrieval failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "evaluation failed; try again"})
		return
	}

	includeSuppressed := c.Query("include_suppressed") == "true"
	c.JSON(http.StatusOK, gin.H{"insights": toInsightResponses(ranked, includeSuppressed)})
}

// Evaluate forces a fresh evaluation cycle.
func (h *Handler) Evaluate(c *gin.Context) {
	vaultID := c.Param("vault")

	ranked, err := h.svc.Evaluate(c.Request.Context(), vaultID)
	if err != nil {
		h.logger.Error().Err(err).Str("vault", vaultID).Msg("evaluation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "evaluation failed; try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": toInsightResponses(ranked, false)})
}

// GetWalletState returns the current risk state including the runway figure
// for display ("X days of cash left").
func (h *Handler) GetWalletState(c *gin.Context) {
	vaultID := c.Param("vault")

	state, ok := h.svc.WalletState(vaultID)
	if !ok {
		if _, err := h.svc.Evaluate(c.Request.Context(), vaultID); err != nil {
			h.logger.Error().Err(err).Str("vault", vaultID).Msg("wallet bootstrap failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "evaluation failed; try again"})
			return
		}
		state, _ = h.svc.WalletState(vaultID)
	}

	c.JSON(http.StatusOK, toWalletResponse(state))
}

// IsRestricted is the synchronous gate for the transaction-entry flow.
func (h *Handler) IsRestricted(c *gin.Context) {
	vaultID := c.Param("vault")
	category := c.Param("category")

	c.JSON(http.StatusOK, gin.H{
		"category":   category,
		"restricted": h.svc.IsCategoryRestricted(vaultID, category),
	})
}

// DismissInsight records a user dismissal for a dedupe key.
func (h *Handler) DismissInsight(c *gin.Context) {
	vaultID := c.Param("vault")
	key := c.Param("key")

	if err := h.svc.DismissInsight(c.Request.Context(), vaultID, key); err != nil {
		h.logger.Error().Err(err).Str("vault", vaultID).Msg("dismiss failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record dismissal"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MuteRule silences a rule for the vault.
func (h *Handler) MuteRule(c *gin.Context) {
	vaultID := c.Param("vault")
	ruleID := c.Param("rule")

	if err := h.svc.MuteRule(c.Request.Context(), vaultID, ruleID); err != nil {
		h.logger.Error().Err(err).Str("vault", vaultID).Msg("mute failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mute rule"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UnmuteRule re-enables a muted rule.
func (h *Handler) UnmuteRule(c *gin.Context) {
	vaultID := c.Param("vault")
	ruleID := c.Param("rule")

	if err := h.svc.UnmuteRule(c.Request.Context(), vaultID, ruleID); err != nil {
		h.logger.Error().Err(err).Str("vault", vaultID).Msg("unmute failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not unmute rule"})
		return
	}
	c.Status(http.StatusNoContent)
}

// AffordabilityRequest is the scenario-check payload.
type AffordabilityRequest struct {
	Label  string `json:"label" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// CheckAffordability answers a hypothetical purchase question.
func (h *Handler) CheckAffordability(c *gin.Context) {
	vaultID := c.Param("vault")

	var req AffordabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label and amount are required"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return
	}

	candidate, err := h.svc.CheckAffordability(c.Request.Context(), vaultID, req.Label, amount)
	if err != nil {
		h.logger.Error().Err(err).Str("vault", vaultID).Msg("affordability check failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "evaluation failed; try again"})
		return
	}
	if candidate == nil {
		c.JSON(http.StatusOK, gin.H{"answer": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"answer": InsightResponse{
		RuleID:         candidate.RuleID,
		DedupeKey:      candidate.DedupeKey,
		Severity:       string(candidate.Severity),
		Title:          candidate.Title,
		Description:    candidate.Description,
		Recommendation: candidate.Recommendation,
		FinalScore:     candidate.RawScore.String(),
		GeneratedAt:    candidate.GeneratedAt,
	}})
}

func toInsightResponses(ranked []model.RankedInsight, includeSuppressed bool) []InsightResponse {
	out := make([]InsightResponse, 0, len(ranked))
	for _, insight := range ranked {
		if insight.Suppressed && !includeSuppressed {
			continue
		}
		out = append(out, InsightResponse{
			RuleID:         insight.RuleID,
			DedupeKey:      insight.DedupeKey,
			Severity:       string(insight.Severity),
			Title:          insight.Title,
			Description:    insight.Description,
			Recommendation: insight.Recommendation,
			FinalScore:     insight.FinalScore.String(),
			Suppressed:     insight.Suppressed,
			SuppressReason: insight.SuppressReason,
			GeneratedAt:    insight.GeneratedAt,
		})
	}
	return out
}

func toWalletResponse(state model.WalletRiskState) WalletResponse {
	var runway *string
	if state.RunwayDays != nil {
		v := state.RunwayDays.StringFixed(2)
		runway = &v
	}

	restricted := make([]string, 0, len(state.RestrictedCategories))
	for category := range state.RestrictedCategories {
		restricted = append(restricted, category)
	}
	sort.Strings(restricted)

	return WalletResponse{
		VaultID:              state.VaultID,
		Level:                string(state.Level),
		RunwayDays:           runway,
		BurnRatePerDay:       state.BurnRatePerDay.StringFixed(2),
		RestrictedCategories: restricted,
		EnteredAt:            state.EnteredAt,
	}
}
