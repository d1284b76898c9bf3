package booking

import (
	"fmt"
	"strings"
	"time"

	"hostel-agent/internal/domain"
)

var (
	textAskDates = domain.Texts{
		domain.LanguageEnglish: "Great, let's get you booked! Which dates would you like to stay? (e.g. 15 March 2026 to 18 March 2026)",
		domain.LanguageMalay:   "Baik, jom buat tempahan! Tarikh bila anda mahu menginap? (cth. 15 Mac 2026 hingga 18 Mac 2026)",
		domain.LanguageChinese: "好的，我们来帮您预订！请问您想入住哪几天？（例如：2026年3月15日 至 2026年3月18日）",
	}
	textInvalidDates = domain.Texts{
		domain.LanguageEnglish: "Sorry, I couldn't read those dates. Please send them like 15/03/2026 to 18/03/2026.",
		domain.LanguageMalay:   "Maaf, saya tidak faham tarikh itu. Sila hantar seperti 15/03/2026 hingga 18/03/2026.",
		domain.LanguageChinese: "抱歉，我无法识别这些日期。请按 15/03/2026 至 18/03/2026 的格式发送。",
	}
	textCheckoutBeforeCheckin = domain.Texts{
		domain.LanguageEnglish: "Check-out must be after check-in. Which dates would you like?",
		domain.LanguageMalay:   "Tarikh daftar keluar mesti selepas tarikh daftar masuk. Tarikh bila yang anda mahu?",
		domain.LanguageChinese: "退房日期必须晚于入住日期。请问您想订哪几天？",
	}
	textAskGuests = domain.Texts{
		domain.LanguageEnglish: "Got it: %s to %s (%d night(s)). How many guests?",
		domain.LanguageMalay:   "Baik: %s hingga %s (%d malam). Berapa orang tetamu?",
		domain.LanguageChinese: "好的：%s 至 %s（%d 晚）。请问有几位客人？",
	}
	textInvalidGuests = domain.Texts{
		domain.LanguageEnglish: "Please reply with a number of guests between 1 and 20.",
		domain.LanguageMalay:   "Sila balas dengan bilangan tetamu antara 1 hingga 20.",
		domain.LanguageChinese: "请回复 1 到 20 之间的客人数量。",
	}
	textSummary = domain.Texts{
		domain.LanguageEnglish: "Booking summary\nCheck-in: %s\nCheck-out: %s\nNights: %d\nGuests: %d\nTotal: %s\n\nReply YES to confirm or CANCEL to stop.",
		domain.LanguageMalay:   "Ringkasan tempahan\nDaftar masuk: %s\nDaftar keluar: %s\nMalam: %d\nTetamu: %d\nJumlah: %s\n\nBalas YA untuk sahkan atau BATAL untuk berhenti.",
		domain.LanguageChinese: "预订摘要\n入住：%s\n退房：%s\n晚数：%d\n人数：%d\n总价：%s\n\n回复“确认”以确认，或回复“取消”以停止。",
	}
	textAskConfirm = domain.Texts{
		domain.LanguageEnglish: "Please reply YES to confirm the booking or CANCEL to stop.",
		domain.LanguageMalay:   "Sila balas YA untuk sahkan tempahan atau BATAL untuk berhenti.",
		domain.LanguageChinese: "请回复“确认”以确认预订，或回复“取消”以停止。",
	}
	textConfirmed = domain.Texts{
		domain.LanguageEnglish: "Your booking is confirmed! Reference: %s. See you soon!",
		domain.LanguageMalay:   "Tempahan anda telah disahkan! Rujukan: %s. Jumpa nanti!",
		domain.LanguageChinese: "您的预订已确认！参考编号：%s。期待您的光临！",
	}
	textBookingFailed = domain.Texts{
		domain.LanguageEnglish: "Sorry, we couldn't complete your booking right now. Our staff will contact you shortly.",
		domain.LanguageMalay:   "Maaf, kami tidak dapat melengkapkan tempahan anda sekarang. Kakitangan kami akan menghubungi anda sebentar lagi.",
		domain.LanguageChinese: "抱歉，目前无法完成您的预订。我们的工作人员会尽快与您联系。",
	}
	textCancelled = domain.Texts{
		domain.LanguageEnglish: "No problem, the booking has been cancelled. Let me know if you need anything else.",
		domain.LanguageMalay:   "Tiada masalah, tempahan telah dibatalkan. Beritahu saya jika anda perlukan apa-apa lagi.",
		domain.LanguageChinese: "没问题，预订已取消。如有其他需要请告诉我。",
	}
)

var (
	cancelWords      = []string{"cancel", "stop", "batal", "batalkan", "取消", "不要了"}
	triggerWords     = []string{"book", "booking", "reserve", "reservation", "tempah", "tempahan", "预订", "订房", "预定"}
	affirmativeWords = []string{"yes", "y", "ok", "okay", "confirm", "sure", "ya", "ye", "yup", "boleh", "setuju", "sah", "好的", "是的", "确认", "可以", "没问题"}
)

// Triggered reports whether input asks to make a booking.
func Triggered(input string) bool {
	return hasKeyword(input, triggerWords)
}

func format(t domain.Texts, lang domain.Language, args ...any) string {
	return fmt.Sprintf(t.Pick(lang), args...)
}

func formatDate(lang domain.Language, d time.Time) string {
	if lang == domain.LanguageChinese {
		return d.Format("2006年1月2日")
	}
	return d.Format("2 Jan 2006")
}

func formatMoney(p *domain.PriceBreakdown) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%s %.2f", p.Currency, p.Total)
}

// normalizeWords lowercases input and splits it on anything that is not a
// letter or digit.
func normalizeWords(input string) []string {
	return strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 0x2E7F)
	})
}

// hasKeyword matches whole words, and substrings for CJK keywords.
func hasKeyword(input string, keywords []string) bool {
	lower := strings.ToLower(strings.TrimSpace(input))
	words := normalizeWords(lower)
	for _, kw := range keywords {
		if isCJK(kw) {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}

func isCJK(s string) bool {
	for _, r := range s {
		if r > 0x2E7F {
			return true
		}
	}
	return false
}
