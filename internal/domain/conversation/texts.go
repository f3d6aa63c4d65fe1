package conversation

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/domain/ledger"
	"github.com/aislide/aislide-bot/internal/domain/pricing"
	"github.com/aislide/aislide-bot/internal/domain/task"
	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/money"
)

// Reply keyboard labels. Incoming text is matched against these exactly.
const (
	BtnPresentation = "📊 Prezentatsiya"
	BtnPitchDeck    = "🎯 Pitch Deck"
	BtnCourseWork   = "📝 Mustaqil ish"
	BtnBalance      = "💰 Balansim"
	BtnTopUp        = "💳 To'ldirish"
	BtnPrices       = "💵 Narxlar"
	BtnHelp         = "ℹ️ Yordam"

	BtnConfirm = "✅ Ha, boshlash"
	BtnDecline = "❌ Yo'q"
	BtnCancel  = "❌ Bekor qilish"

	btnOpenPresentation = "🎨 Prezentatsiya yaratish"
	btnOpenCourseWork   = "📝 Mustaqil ish yaratish"
)

// Questions is the pitch deck questionnaire, asked in order.
var Questions = []string{
	"1️⃣ Ismingiz va lavozimingiz?",
	"2️⃣ Loyiha/Startup nomi?",
	"3️⃣ Loyiha tavsifi (qisqacha, 2-3 jumla)?",
	"4️⃣ Qanday muammoni hal qilasiz?",
	"5️⃣ Sizning yechimingiz?",
	"6️⃣ Maqsadli auditoriya kimlar?",
	"7️⃣ Biznes model (qanday daromad olasiz)?",
	"8️⃣ Asosiy raqobatchilaringiz?",
	"9️⃣ Sizning ustunligingiz (raqobatchilardan farqi)?",
	"🔟 Moliyaviy prognoz (keyingi 1 yil)?",
}

func mainMenu() *messenger.Keyboard {
	return messenger.Reply(
		messenger.Row(messenger.Button{Text: BtnPresentation}, messenger.Button{Text: BtnPitchDeck}),
		messenger.Row(messenger.Button{Text: BtnCourseWork}),
		messenger.Row(messenger.Button{Text: BtnBalance}, messenger.Button{Text: BtnTopUp}),
		messenger.Row(messenger.Button{Text: BtnPrices}, messenger.Button{Text: BtnHelp}),
	)
}

func confirmKeyboard() *messenger.Keyboard {
	return messenger.Reply(messenger.Row(messenger.Button{Text: BtnConfirm}, messenger.Button{Text: BtnDecline}))
}

func cancelKeyboard() *messenger.Keyboard {
	return messenger.Reply(messenger.Row(messenger.Button{Text: BtnCancel}))
}

// webAppKeyboard offers the form as a reply keyboard button; only those
// deliver web_app_data back to the chat.
func webAppKeyboard(label, url string) *messenger.Keyboard {
	return messenger.Reply(
		messenger.Row(messenger.Button{Text: label, WebAppURL: url}),
		messenger.Row(messenger.Button{Text: BtnCancel}),
	)
}

const (
	textCancelled        = "❌ Bekor qilindi"
	textFlowCancelled    = "❌ Jarayon bekor qilindi"
	textChooseButton     = "Pastdagi tugmalardan birini tanlang! 👇"
	textGenericError     = "❌ Xatolik yuz berdi. Iltimos, qaytadan urinib ko'ring."
	textBusy             = "⏳ Oldingi so'rovingiz bajarilmoqda, biroz kuting."
	textFinishFlowFirst  = "⚠️ Avval joriy jarayonni yakunlang yoki «❌ Bekor qilish» tugmasini bosing."
	textAnswerRequired   = "✍️ Iltimos, savolga matn ko'rinishida javob bering.\n\n"
	textConfirmOrDecline = "Iltimos, «✅ Ha, boshlash» yoki «❌ Yo'q» tugmasini bosing."
	textAmountMin        = "❌ Minimal summa: %s so'm"
	textAmountMax        = "❌ Maksimal summa: %s so'm"
	textAmountInvalid    = "❌ Iltimos, to'g'ri summa kiriting!"
	textReceiptRequired  = "📸 Iltimos, chek <b>rasm</b> yoki <b>fayl</b> sifatida yuboring!"
	textReceiptFailed    = "❌ Tranzaksiya yaratishda xatolik! Qaytadan urinib ko'ring."
	textTaskFailed       = "❌ <b>Task yaratishda xatolik!</b>"
	textTaskRefunded     = "❌ <b>Task yaratishda xatolik!</b>\n\n↩️ Yechilgan %s so'm balansingizga qaytarildi."
	textTaskNotRefunded  = "❌ <b>Task yaratishda xatolik!</b>\n\nYechilgan summa hali qaytarilmadi. Admin bilan bog'laning: %s"
	textDataNotFound     = "❌ Ma'lumot topilmadi! /start buyrug'ini yuboring."
	textPresentationTap  = "📊 Prezentatsiya yaratish uchun tugmani bosing:"
	textCourseWorkTap    = "📝 Mustaqil ish (referat, kurs ishi) yaratish uchun tugmani bosing:"
)

func welcomeText(firstName string, acc *ledger.Account) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 <b>Assalomu alaykum, %s!</b>\n\n", html.EscapeString(firstName))
	b.WriteString("🎨 <b>Men professional prezentatsiyalar yaratadigan bot!</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Balansingiz:</b> %s so'm\n", money.Format(acc.Balance))
	if acc.FreeQuota > 0 {
		fmt.Fprintf(&b, "🎁 <b>Bepul prezentatsiya:</b> %d ta qoldi!\n", acc.FreeQuota)
	}
	b.WriteString("\n<b>📋 Xizmatlarimiz:</b>\n\n")
	b.WriteString("📊 <b>Oddiy Prezentatsiya</b> - Istalgan mavzu bo'yicha\n")
	b.WriteString("🎯 <b>Pitch Deck</b> - Investorlar uchun 10 ta savol asosida\n")
	b.WriteString("📝 <b>Mustaqil ish</b> - Referat va kurs ishlari\n\n")
	b.WriteString(textChooseButton)
	return b.String()
}

func shortfallText(required, available decimal.Decimal) string {
	return fmt.Sprintf("❌ <b>Balans yetarli emas!</b>\n\n"+
		"💰 Kerakli: %s so'm\n"+
		"💳 Sizda: %s so'm\n"+
		"📉 Yetishmayapti: %s so'm\n\n"+
		"Balansni to'ldiring: %s",
		money.Format(required), money.Format(available), money.Format(required.Sub(available)), BtnTopUp)
}

func pitchQuoteText(price decimal.Decimal, acc *ledger.Account) string {
	var b strings.Builder
	b.WriteString("🎯 <b>PITCH DECK YARATISH</b>\n\n")
	b.WriteString("📝 <b>Jarayon:</b>\n")
	b.WriteString("1. 10 ta savolga javob bering\n")
	b.WriteString("2. Professional AI content yaratadi\n")
	b.WriteString("3. Zamonaviy dizayn qilinadi\n")
	b.WriteString("4. Tayyor PPTX sizga yuboriladi\n\n")
	fmt.Fprintf(&b, "💰 <b>Narx:</b> %s so'm\n", money.Format(price))
	fmt.Fprintf(&b, "💳 <b>Balansingiz:</b> %s so'm\n", money.Format(acc.Balance))
	if acc.FreeQuota > 0 {
		fmt.Fprintf(&b, "\n🎁 <b>BEPUL PREZENTATSIYA:</b> %d ta qoldi!\n\n✅ Bu prezentatsiya TEKIN bo'ladi!\n\nBoshlaysizmi?", acc.FreeQuota)
	} else {
		b.WriteString("\n✅ Balans yetarli!\n\nBoshlaysizmi?")
	}
	return b.String()
}

func pitchIntroText() string {
	return "📝 <b>Ajoyib! Boshlaylik!</b>\n\n" +
		"Har bir savolga <b>BATAFSIL</b> javob bering.\n" +
		"Qancha ko'p ma'lumot bersangiz, shuncha yaxshi natija!\n\n" +
		Questions[0]
}

func questionText(answered int) string {
	return fmt.Sprintf("✅ %d/%d savol javoblandi\n\n%s", answered, len(Questions), Questions[answered])
}

func pitchSummaryText(answers int, price decimal.Decimal, acc *ledger.Account) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 <b>Barcha savollar tugadi!</b>\n\n📊 Jami %d ta javob qabul qilindi\n", answers)
	if acc.FreeQuota > 0 {
		fmt.Fprintf(&b, "\n🎁 <b>BEPUL!</b>\nSizda %d ta bepul prezentatsiya bor.\nBu Pitch Deck TEKIN bo'ladi!\n", acc.FreeQuota)
	} else {
		b.WriteString("\n💰 <b>To'lov ma'lumotlari:</b>\n")
		fmt.Fprintf(&b, "Narx: %s so'm\n", money.Format(price))
		fmt.Fprintf(&b, "Balansingiz: %s so'm\n", money.Format(acc.Balance))
		fmt.Fprintf(&b, "Qoladi: %s so'm\n", money.Format(acc.Balance.Sub(price)))
	}
	b.WriteString("\n✅ Pitch Deck yaratishni boshlaymizmi?")
	return b.String()
}

const textProgress = "⏳ <b>Jarayon:</b>\n" +
	"1. ⚙️ Content yaratilmoqda...\n" +
	"2. 🎨 Dizayn qilinmoqda...\n" +
	"3. 📊 Formatlash...\n" +
	"4. ✅ Tayyor!\n\n" +
	"⏱️ Taxminan <b>3-7 daqiqa</b> vaqt ketadi.\n\n" +
	"Tayyor bo'lgach sizga <b>professional PPTX fayl</b> yuboriladi! 🎉"

func pitchStartedText(c chargeResult) string {
	if c.free {
		return fmt.Sprintf("🎁 <b>BEPUL Pitch Deck yaratish boshlandi!</b>\n\n"+
			"✨ Bu sizning bepul prezentatsiyangiz!\n🎁 Qolgan bepul: %d ta\n\n%s", c.remainingQuota, textProgress)
	}
	return fmt.Sprintf("✅ <b>Pitch Deck yaratish boshlandi!</b>\n\n"+
		"💰 Balansdan yechildi: %s so'm\n💳 Yangi balans: %s so'm\n\n%s",
		money.Format(c.amount), money.Format(c.balance), textProgress)
}

func webFormStartedText(req *WebFormRequest, themeName string, c chargeResult) string {
	var b strings.Builder
	noun, unit, file := "Prezentatsiya", "Slaydlar", "PPTX fayl"
	if req.Kind == task.KindCourseWork {
		noun, unit, file = "Mustaqil ish", "Sahifalar", "DOCX fayl"
	}

	if c.free {
		fmt.Fprintf(&b, "🎁 <b>BEPUL %s yaratish boshlandi!</b>\n\n", noun)
	} else {
		fmt.Fprintf(&b, "✅ <b>%s yaratish boshlandi!</b>\n\n", noun)
	}
	fmt.Fprintf(&b, "📝 <b>Mavzu:</b> %s\n", html.EscapeString(req.Topic))
	if req.Subject != "" {
		fmt.Fprintf(&b, "📚 <b>Fan:</b> %s\n", html.EscapeString(req.Subject))
	}
	fmt.Fprintf(&b, "📊 <b>%s:</b> %d ta\n", unit, req.UnitCount)
	if themeName != "" {
		fmt.Fprintf(&b, "🎨 <b>Dizayn:</b> %s\n", html.EscapeString(themeName))
	}
	fmt.Fprintf(&b, "🌐 <b>Til:</b> %s\n\n", strings.ToUpper(req.Language))

	if c.free {
		fmt.Fprintf(&b, "✨ Bu sizning bepul buyurtmangiz!\n🎁 Qolgan bepul: %d ta\n\n", c.remainingQuota)
	} else {
		fmt.Fprintf(&b, "💰 Yechildi: %s so'm\n💳 Qoldi: %s so'm\n\n", money.Format(c.amount), money.Format(c.balance))
	}
	b.WriteString("⏳ Tayyor bo'lish vaqti: <b>3-7 daqiqa</b>\n\n")
	fmt.Fprintf(&b, "Tayyor bo'lgach sizga <b>%s</b> yuboriladi! 🎉", file)
	return b.String()
}

func payloadErrorText(err *PayloadError) string {
	var b strings.Builder
	b.WriteString("❌ <b>Ma'lumotlarni o'qishda xatolik!</b>\n")
	for _, line := range strings.Split(strings.TrimPrefix(err.Error(), "invalid web form payload: "), "; ") {
		fmt.Fprintf(&b, "\n• %s", html.EscapeString(line))
	}
	b.WriteString("\n\nIltimos, formani qaytadan to'ldiring.")
	return b.String()
}

func balanceText(stats *ledger.Stats, txs []ledger.Transaction) string {
	var b strings.Builder
	b.WriteString("💰 <b>BALANSINGIZ</b>\n\n")
	fmt.Fprintf(&b, "💳 Hozirgi balans: <b>%s so'm</b>\n", money.Format(stats.Balance))
	fmt.Fprintf(&b, "🎁 Bepul prezentatsiya: <b>%d ta</b>\n\n", stats.FreeQuota)
	b.WriteString("📊 <b>Statistika:</b>\n")
	fmt.Fprintf(&b, "📈 Jami to'ldirilgan: %s so'm\n", money.Format(stats.TotalDeposited))
	fmt.Fprintf(&b, "📉 Jami sarflangan: %s so'm\n", money.Format(stats.TotalSpent()))
	fmt.Fprintf(&b, "📅 A'zo bo'lganingizga: %s\n\n", stats.CreatedAt.Format("2006-01-02"))
	b.WriteString("💳 <b>Oxirgi tranzaksiyalar:</b>\n")

	if len(txs) == 0 {
		b.WriteString("\nTranzaksiyalar yo'q")
		return b.String()
	}
	for _, tx := range txs {
		fmt.Fprintf(&b, "\n%s %s so'm - %s %s", typeEmoji(tx.Type), money.Format(tx.Amount), statusEmoji(tx.Status), tx.Status)
	}
	return b.String()
}

func typeEmoji(t ledger.TransactionType) string {
	switch t {
	case ledger.TypeDeposit:
		return "➕"
	case ledger.TypeWithdrawal:
		return "➖"
	case ledger.TypeRefund:
		return "↩️"
	}
	return "❓"
}

func statusEmoji(s ledger.Status) string {
	switch s {
	case ledger.StatusPending:
		return "⏳"
	case ledger.StatusApproved:
		return "✅"
	case ledger.StatusRejected:
		return "❌"
	}
	return "❓"
}

func pricesText(entries []pricing.PriceEntry, freeQuota int) string {
	var b strings.Builder
	b.WriteString("💵 <b>XIZMATLAR NARXLARI</b>\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "<b>%s</b>\n💰 %s %s\n━━━━━━━━━━━━━━━\n", html.EscapeString(e.Description), money.Format(e.UnitPrice), e.Currency)
	}
	if freeQuota > 0 {
		fmt.Fprintf(&b, "\n🎁 <b>Sizda %d ta BEPUL prezentatsiya bor!</b>", freeQuota)
	}
	return b.String()
}

func helpText(support string) string {
	return "ℹ️ <b>YORDAM</b>\n\n" +
		"<b>📋 Buyruqlar:</b>\n/start - Boshlash\n/help - Yordam\n\n" +
		"<b>📊 Prezentatsiya:</b>\n" +
		"1. \"Prezentatsiya\" tugmasini bosing\n" +
		"2. Web App ochiladi\n" +
		"3. Mavzu, slayd soni, dizayn tanlang\n" +
		"4. \"Yaratish\" tugmasini bosing\n" +
		"5. 3-7 daqiqada tayyor!\n\n" +
		"<b>🎯 Pitch Deck:</b>\n10 ta savolga javob bering, 12 slaydli taqdimot tayyorlanadi.\n\n" +
		"<b>💳 Balans to'ldirish:</b>\n" +
		"1. Summani kiriting\n2. Kartaga o'tkazing\n3. Chek yuboring\n4. Admin tasdiqlaydi (5-30 daqiqa)\n\n" +
		"<b>🎁 Bepul prezentatsiya:</b>\nHar bir yangi user bepul prezentatsiya oladi!\n\n" +
		"❓ Savol: " + support
}

func topUpText(min, max decimal.Decimal) string {
	return fmt.Sprintf("💳 <b>BALANS TO'LDIRISH</b>\n\n"+
		"✍️ Qancha summa to'ldirmoqchisiz?\n\n"+
		"Minimal: %s so'm\nMaksimal: %s so'm\n\nMasalan: 50000", money.Format(min), money.Format(max))
}

func paymentDetailsText(amount decimal.Decimal, cardNumber, cardHolder string) string {
	return fmt.Sprintf("💳 <b>TO'LOV MA'LUMOTLARI</b>\n\n"+
		"💰 Summa: <b>%s so'm</b>\n\n"+
		"📇 <b>Karta raqami:</b>\n<code>%s</code>\n\n"+
		"👤 <b>Karta egasi:</b>\n%s\n\n"+
		"📸 <b>To'lov qilgandan keyin:</b>\nChek (skrinshot yoki PDF) ni bu chatga yuboring\n\n"+
		"⏳ Admin 5-30 daqiqada tasdiqlaydi",
		money.Format(amount), html.EscapeString(cardNumber), html.EscapeString(cardHolder))
}

func receiptAcceptedText(amount decimal.Decimal, txID int64) string {
	return fmt.Sprintf("✅ <b>Chek qabul qilindi!</b>\n\n"+
		"💰 Summa: %s so'm\n🆔 Tranzaksiya ID: %d\n\n"+
		"⏳ Admin 5-30 daqiqada tasdiqlaydi\n\n"+
		"Tasdiqlangach balansingizga avtomatik qo'shiladi! 💳", money.Format(amount), txID)
}
