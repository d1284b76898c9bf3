package usecase

import (
	"fmt"
	"strings"

	"hostel-agent/internal/domain"
)

// Actions the classifier may return.
const (
	ActionStartBooking  = "start_booking"
	ActionStartWorkflow = "start_workflow"
	ActionStaticReply   = "static_reply"
	ActionLLMReply      = "llm_reply"
	ActionEscalate      = "escalate"
)

const intentUnknown = "unknown"

type promptContext struct {
	hostelName string
	topics     []string
	workflows  []string
	language   domain.Language
}

func buildClassificationPrompt(ctx promptContext) string {
	return strings.Join([]string{
		"Role:",
		fmt.Sprintf("You are the front-desk assistant of %s, replying to guests on WhatsApp.", ctx.hostelName),
		"",
		"Task:",
		"Classify the latest guest message and choose what to do next.",
		"",
		"Actions:",
		"- " + ActionStartBooking + ": the guest wants to book a bed or room.",
		"- " + ActionStartWorkflow + ": the guest's request matches one of the workflows below; set workflow.",
		"- " + ActionStaticReply + ": one of the known topics below answers the question; set topic.",
		"- " + ActionLLMReply + ": answer briefly yourself in response.",
		"- " + ActionEscalate + ": a human must handle it (complaints, emergencies, payment disputes).",
		"",
		"Known topics: " + listOrNone(ctx.topics),
		"Workflows: " + listOrNone(ctx.workflows),
		"",
		"Behavior Rules:",
		behaviorRules(ctx.language),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func behaviorRules(lang domain.Language) string {
	return strings.Join([]string{
		"1) Reply in " + languageName(lang) + ".",
		"2) Keep responses short, friendly and factual.",
		"3) Never invent prices, availability or policies; prefer static_reply or escalate.",
		"4) Use intent \"" + intentUnknown + "\" when you cannot tell what the guest wants.",
	}, "\n")
}

func outputContract() string {
	return "Return JSON only with keys intent (string), action (string), response (string), " +
		"confidence (number between 0 and 1), and optionally topic and workflow."
}

func languageName(lang domain.Language) string {
	switch lang {
	case domain.LanguageMalay:
		return "Malay"
	case domain.LanguageChinese:
		return "Simplified Chinese"
	default:
		return "English"
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// historyMessages converts recent history into chat messages for the model.
func historyMessages(state *domain.ConversationState, n int) []domain.ChatMessage {
	msgs := state.RecentMessages(n)
	out := msgs[:0]
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) != "" {
			out = append(out, m)
		}
	}
	return out
}
