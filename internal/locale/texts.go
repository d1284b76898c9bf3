package locale

import "hostel-agent/internal/domain"

var (
	// Unavailable is sent when no provider could answer.
	Unavailable = domain.Texts{
		domain.LanguageEnglish: "Sorry, I can't answer right now. Our staff will get back to you shortly.",
		domain.LanguageMalay:   "Maaf, saya tidak dapat menjawab sekarang. Kakitangan kami akan menghubungi anda sebentar lagi.",
		domain.LanguageChinese: "抱歉，我暂时无法回答。我们的工作人员会尽快回复您。",
	}

	// SlowDown is sent when a guest exceeds the message rate.
	SlowDown = domain.Texts{
		domain.LanguageEnglish: "You're sending messages very quickly. Please wait a moment before trying again.",
		domain.LanguageMalay:   "Anda menghantar mesej terlalu cepat. Sila tunggu sebentar.",
		domain.LanguageChinese: "您发送消息太快了，请稍候再试。",
	}

	// Escalated tells the guest a human will take over.
	Escalated = domain.Texts{
		domain.LanguageEnglish: "Let me get a staff member to help you. Someone will reply soon.",
		domain.LanguageMalay:   "Saya akan minta kakitangan kami membantu anda. Mereka akan membalas sebentar lagi.",
		domain.LanguageChinese: "我会请工作人员协助您，稍后会有人回复。",
	}

	// NotUnderstood is the reply when classification yields nothing usable.
	NotUnderstood = domain.Texts{
		domain.LanguageEnglish: "Sorry, I didn't quite get that. Could you rephrase?",
		domain.LanguageMalay:   "Maaf, saya kurang faham. Boleh terangkan semula?",
		domain.LanguageChinese: "抱歉，我没太明白，可以换个说法吗？",
	}

	// WorkflowDone closes a workflow run.
	WorkflowDone = domain.Texts{
		domain.LanguageEnglish: "Thanks! I've passed your answers to our team.",
		domain.LanguageMalay:   "Terima kasih! Jawapan anda telah dihantar kepada pasukan kami.",
		domain.LanguageChinese: "谢谢！您的回答已转交给我们的团队。",
	}

	// ResetDone confirms a cleared conversation.
	ResetDone = domain.Texts{
		domain.LanguageEnglish: "Conversation cleared. How can I help you?",
		domain.LanguageMalay:   "Perbualan telah dikosongkan. Apa yang boleh saya bantu?",
		domain.LanguageChinese: "对话已清除。请问有什么可以帮您？",
	}
)

// Operator-facing texts are English only.
const (
	AckConfirmed = "Acknowledged %s. Escalation stopped."
	AckUnknown   = "No open escalation with id %s."
)
