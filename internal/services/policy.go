package services

import (
	"github.com/enhub-AU/enquiry-partner/internal/models"
)

// Promotion reasons recorded on the enquiry and surfaced in notifications.
const (
	ReasonInspection = "Buyer requested inspection"
	ReasonOffer      = "Buyer expressed offer intent"
	ReasonReplies    = "Buyer replied 3+ times"
)

// hotReplyThreshold is the number of client messages (including the current
// one) that promotes a lead on volume alone.
const hotReplyThreshold = 3

// InitialStatus computes the status of a newly created enquiry. The rules are
// ordered; first match wins:
//  1. price-only enquiries are auto-handled when the agent lets the AI send
//  2. inspection and multi-question enquiries need a human look
//  3. everything else starts as new
func InitialStatus(category models.EnquiryCategory, mode models.AIMode) models.EnquiryStatus {
	if category == models.CategoryPriceOnly && (mode == models.AIModeSafe || mode == models.AIModeFull) {
		return models.StatusAutoHandled
	}
	if category == models.CategoryInspection || category == models.CategoryMultiQuestion {
		return models.StatusNeedsAttention
	}
	return models.StatusNew
}

// AutoSendOnCreate decides whether an AI draft attached to a brand-new
// enquiry goes out without approval.
func AutoSendOnCreate(category models.EnquiryCategory, mode models.AIMode) bool {
	if category == models.CategoryPriceOnly && (mode == models.AIModeSafe || mode == models.AIModeFull) {
		return true
	}
	return mode == models.AIModeFull
}

// AutoSendOnUpdate decides whether an AI draft on a thread update goes out
// without approval. Only "full" qualifies here: "safe" auto-sends price-only
// first contacts but never mid-thread replies. The asymmetry with
// AutoSendOnCreate is intentional.
func AutoSendOnUpdate(mode models.AIMode) bool {
	return mode == models.AIModeFull
}

// PromotionDecision evaluates the hot-lead rule for a client update on a
// non-hot enquiry. clientMessageCount includes the message being processed.
// Checked in precedence order: inspection request, offer intent, reply volume.
func PromotionDecision(isInspectionRequest, isOfferIntent bool, clientMessageCount int) (promoted bool, reason string) {
	switch {
	case isInspectionRequest:
		return true, ReasonInspection
	case isOfferIntent:
		return true, ReasonOffer
	case clientMessageCount >= hotReplyThreshold:
		return true, ReasonReplies
	}
	return false, ""
}
