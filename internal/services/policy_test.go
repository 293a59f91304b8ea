package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enhub-AU/enquiry-partner/internal/models"
)

func TestInitialStatus_RuleTableOrder(t *testing.T) {
	cases := []struct {
		name     string
		category models.EnquiryCategory
		mode     models.AIMode
		want     models.EnquiryStatus
	}{
		{"price-only with safe mode auto-handles", models.CategoryPriceOnly, models.AIModeSafe, models.StatusAutoHandled},
		{"price-only with full mode auto-handles", models.CategoryPriceOnly, models.AIModeFull, models.StatusAutoHandled},
		{"price-only with draft mode stays new", models.CategoryPriceOnly, models.AIModeDraft, models.StatusNew},
		{"inspection needs attention regardless of mode", models.CategoryInspection, models.AIModeFull, models.StatusNeedsAttention},
		{"multi-question needs attention", models.CategoryMultiQuestion, models.AIModeDraft, models.StatusNeedsAttention},
		{"other starts new", models.CategoryOther, models.AIModeFull, models.StatusNew},
		{"empty category starts new", "", models.AIModeSafe, models.StatusNew},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InitialStatus(tc.category, tc.mode))
		})
	}
}

func TestAutoSend_CreateUpdateAsymmetry(t *testing.T) {
	// safe mode auto-sends price-only drafts on creation...
	assert.True(t, AutoSendOnCreate(models.CategoryPriceOnly, models.AIModeSafe))
	// ...but never on the update path.
	assert.False(t, AutoSendOnUpdate(models.AIModeSafe))

	assert.True(t, AutoSendOnCreate(models.CategoryOther, models.AIModeFull))
	assert.True(t, AutoSendOnUpdate(models.AIModeFull))

	assert.False(t, AutoSendOnCreate(models.CategoryInspection, models.AIModeSafe))
	assert.False(t, AutoSendOnCreate(models.CategoryPriceOnly, models.AIModeDraft))
	assert.False(t, AutoSendOnUpdate(models.AIModeDraft))
}

func TestPromotionDecision_Precedence(t *testing.T) {
	// Inspection beats a simultaneous offer flag.
	promoted, reason := PromotionDecision(true, true, 1)
	assert.True(t, promoted)
	assert.Equal(t, ReasonInspection, reason)

	promoted, reason = PromotionDecision(false, true, 1)
	assert.True(t, promoted)
	assert.Equal(t, ReasonOffer, reason)
}

func TestPromotionDecision_ReplyThreshold(t *testing.T) {
	promoted, _ := PromotionDecision(false, false, 2)
	assert.False(t, promoted)

	promoted, reason := PromotionDecision(false, false, 3)
	assert.True(t, promoted)
	assert.Equal(t, ReasonReplies, reason)

	promoted, reason = PromotionDecision(false, false, 7)
	assert.True(t, promoted)
	assert.Equal(t, ReasonReplies, reason)
}

func TestPromotionDecision_NoSignals(t *testing.T) {
	promoted, reason := PromotionDecision(false, false, 1)
	assert.False(t, promoted)
	assert.Empty(t, reason)
}
