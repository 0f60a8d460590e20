// Package translate provides the multilingual layer of FormPilot: a
// Translator for German round-trips and a static lexicon of edit keywords,
// yes/no words, and canned wizard messages.
package translate

import (
	"regexp"
	"strings"
)

// Supported lists the ISO 639-1 codes the assistant can run in. German is the
// canonical form language; everything else is translated at the edges.
var Supported = map[string]bool{
	"de": true, "en": true, "fr": true, "tr": true, "zh": true, "es": true,
	"hi": true, "ar": true, "bn": true, "pt": true, "ru": true, "ja": true,
	"it": true, "nl": true, "sv": true, "pl": true, "ko": true, "fa": true,
	"cs": true, "el": true, "he": true,
}

// IsSupported reports whether the given language code can be used.
func IsSupported(code string) bool {
	return Supported[strings.ToLower(code)]
}

// editKeywords triggers the edit controller. Matching is per selected
// language only, so an English "change" inside a German dialogue does not
// start an excursion.
var editKeywords = map[string][]string{
	"de": {"ändern", "korrigieren", "korrektur", "update", "berichtigung", "modifizieren", "anpassen", "überarbeiten", "aktualisieren"},
	"en": {"change", "edit", "update", "correct", "fix", "modify", "adjust", "revise", "amend"},
	"fr": {"changer", "modifier", "corriger", "mise à jour", "rectifier", "réviser", "ajuster"},
	"tr": {"değiştir", "düzelt", "güncelle", "düzeltme", "revize", "uyarlamak"},
	"zh": {"更改", "修改", "更新", "纠正", "修订", "调整"},
	"es": {"cambiar", "editar", "actualizar", "corregir", "modificar", "ajustar", "revisar"},
	"hi": {"बदलें", "सुधारें", "अपडेट", "संशोधित", "समायोजित", "संशोधन"},
	"ar": {"تغيير", "تعديل", "تحديث", "تصحيح", "مراجعة", "تسوية"},
	"bn": {"পরিবর্তন", "সংশোধন", "আপডেট", "সম্পাদনা", "সমন্বয়", "পরিমার্জন"},
	"pt": {"alterar", "editar", "atualizar", "corrigir", "modificar", "ajustar", "revisar", "emendar"},
	"ru": {"изменить", "редактировать", "обновить", "исправить", "корректировать", "модифицировать", "пересмотреть"},
	"ja": {"変更", "修正", "更新", "改訂", "調整"},
	"it": {"cambiare", "modificare", "correggere", "aggiornare", "rettificare", "revisione", "adattare"},
	"nl": {"wijzigen", "bewerken", "bijwerken", "corrigeren", "aanpassen", "herzien"},
	"sv": {"ändra", "redigera", "uppdatera", "korrigera", "revidera", "justera"},
	"pl": {"zmienić", "edytować", "zaktualizować", "poprawić", "modyfikować", "skorygować", "dostosować"},
	"ko": {"변경", "수정", "업데이트", "교정", "조정", "개정"},
	"fa": {"تغییر", "اصلاح", "به‌روزرسانی", "تصحیح", "تعدیل", "بازنگری"},
	"cs": {"změnit", "upravit", "aktualizovat", "opravit", "revidovat", "přizpůsobit"},
	"el": {"αλλαγή", "τροποποίηση", "ενημέρωση", "διόρθωση", "αναθεώρηση", "προσαρμογή"},
	"he": {"לשנות", "לעדכן", "לתקן", "עריכה", "התאמה", "סקירה"},
}

// HasEditKeyword reports whether the message contains an edit trigger for the
// selected language.
func HasEditKeyword(lang, message string) bool {
	keys, ok := editKeywords[strings.ToLower(lang)]
	if !ok {
		return false
	}
	normalized := strings.ToLower(message)
	for _, k := range keys {
		if strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}

var (
	yesWords = map[string]bool{
		"ja": true, "j": true, "jawohl": true, "jo": true, "jup": true, "jep": true,
		"klar": true, "korrekt": true, "richtig": true, "okay": true, "ok": true, "okey": true,
		"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "correct": true,
		"right": true, "affirmative": true,
		"oui": true, "ouais": true, "d'accord": true, "dac": true, "bien sûr": true,
		"evet": true, "tamam": true, "olur": true, "aynen": true,
	}
	noWords = map[string]bool{
		"nein": true, "n": true, "nee": true, "nö": true, "nicht": true, "falsch": true,
		"auf keinen fall": true,
		"no": true, "nope": true, "nah": true, "never": true,
		"non": true, "pas": true, "pas du tout": true,
		"hayır": true, "hayir": true, "yok": true, "olmaz": true, "asla": true,
	}
	yesPrefixes = []string{"ja,", "ja.", "ja!", "yes,", "yes.", "oui,", "evet,", "ok,", "okay,"}
	noPrefixes  = []string{"nein,", "nein.", "no,", "no.", "non,", "hayır,", "hayir,", "yok,", "olmaz,"}
)

// FastApproval classifies a message as yes or no without an LLM call. The
// second return is false when the heuristic is not confident.
func FastApproval(message string) (bool, bool) {
	t := strings.ToLower(strings.TrimSpace(message))
	if yesWords[t] {
		return true, true
	}
	if noWords[t] {
		return false, true
	}
	for _, p := range yesPrefixes {
		if strings.HasPrefix(t, p) {
			return true, true
		}
	}
	for _, p := range noPrefixes {
		if strings.HasPrefix(t, p) {
			return false, true
		}
	}
	return false, false
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// language keywords for the detection fast path. ISO codes count only when
// the message consists of nothing else.
var (
	deKeys = []string{"deutsch", "auf deutsch", "sprich deutsch", "german", "in german", "bitte deutsch", "deutsche sprache"}
	enKeys = []string{"englisch", "english", "speak english", "in english", "please english", "anglo", "eng", "eng language"}
	frKeys = []string{"französisch", "franzoesisch", "français", "francais", "en français", "in french", "french", "parlons français", "bonjour", "bonsoir", "salut", "est-ce que"}
	trKeys = []string{"türkçe", "turkce", "turkish", "türk dili", "türkisch", "auf türkisch", "in turkish"}
)

// DetectFastLanguage runs the heuristic language detection over a message and
// returns an ISO code, or empty when unsure.
func DetectFastLanguage(message string) string {
	t := strings.ToLower(strings.TrimSpace(message))
	tokens := map[string]bool{}
	for _, w := range wordRe.FindAllString(t, -1) {
		tokens[w] = true
	}

	switch t {
	case "de", "en", "fr", "tr":
		if len(tokens) == 1 {
			return t
		}
	}

	hasAny := func(keys []string) bool {
		for _, k := range keys {
			if strings.Contains(k, " ") {
				if strings.Contains(t, k) {
					return true
				}
			} else if tokens[k] {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny(deKeys):
		return "de"
	case hasAny(enKeys):
		return "en"
	case hasAny(frKeys):
		return "fr"
	case hasAny(trKeys):
		return "tr"
	}
	return ""
}

// ConfirmPrompt returns the language confirmation question for a detected
// code, in that language.
func ConfirmPrompt(code string) string {
	switch code {
	case "de":
		return "Ich habe **Deutsch** erkannt. Sollen wir auf Deutsch weitermachen? (Ja/Nein)"
	case "en":
		return "I detected **English**. Shall we continue in English? (Yes/No)"
	case "fr":
		return "J’ai détecté le **français**. Souhaitez-vous continuer en français ? (Oui/Non)"
	case "tr":
		return "**Türkçe** algıladım. Türkçe devam edelim mi? (Evet/Hayır)"
	default:
		return "Language detected. Continue? (Yes/No)"
	}
}

// ConfirmedMessage returns the message sent once a language is locked in.
// Non-German variants carry the translation warning.
func ConfirmedMessage(code string) string {
	switch code {
	case "de":
		return "Alles klar – wir sprechen Deutsch. ✅\n"
	case "en":
		return "Great — we'll continue in English. ✅\n**Please note: Your input will be translated to German for form filling. Please check the final form carefully before submission.**"
	case "fr":
		return "Parfait — nous continuons en français. ✅\n**Veuillez noter : vos saisies seront traduites en allemand pour le remplissage du formulaire. Veuillez vérifier attentivement le formulaire final avant de le soumettre.**"
	case "tr":
		return "Harika — Türkçe devam edelim. ✅\n**Lütfen dikkat: Girdiniz form doldurma için Almancaya çevrilecektir. Lütfen formu göndermeden önce dikkatlice kontrol edin.**"
	default:
		return "Okay — language set. ✅"
	}
}

// InstructionMessage explains the answering mechanics after language
// selection. Languages without a canned variant get the German text, which
// the engine translates like any other outgoing message.
func InstructionMessage(code string) (text string, needsTranslation bool) {
	switch code {
	case "de":
		return instructionDE, false
	case "en":
		return instructionEN, false
	case "fr":
		return instructionFR, false
	case "tr":
		return instructionTR, false
	default:
		return instructionDE, true
	}
}

// ReminderMessage nudges a user whose dialogue has been idle. Languages
// without a canned variant get the English text.
func ReminderMessage(code string) string {
	switch code {
	case "de", "":
		return "Sie haben Ihre Anmeldung noch nicht abgeschlossen. Antworten Sie einfach auf die letzte Frage, um fortzufahren."
	case "fr":
		return "Vous n’avez pas encore terminé votre démarche. Répondez simplement à la dernière question pour continuer."
	case "tr":
		return "Başvurunuzu henüz tamamlamadınız. Devam etmek için son soruya yanıt vermeniz yeterlidir."
	default:
		return "You have not finished your application yet. Simply answer the last question to continue."
	}
}

// CompletionMessage is the closing line of a finished dialogue.
func CompletionMessage(code string) (text string, needsTranslation bool) {
	switch code {
	case "de":
		return "Der Vorgang ist abgeschlossen. Vielen Dank für Ihre Übermittlung!", false
	case "en":
		return "The process is complete. Thank you for your submission!", false
	case "fr":
		return "Le processus est terminé. Merci pour votre soumission !", false
	case "tr":
		return "İşlem tamamlandı. Gönderiniz için teşekkür ederiz!", false
	default:
		return "Der Vorgang ist abgeschlossen. Vielen Dank für Ihre Übermittlung!", true
	}
}

const instructionDE = "So funktioniert die Eingabe:\n\n" +
	"- Antworten Sie einfach auf die Fragen.\n" +
	"- Wenn Ihnen **Auswahlmöglichkeiten** angezeigt werden, können Sie die **Nummer** (z. B. 1 oder 1.) der Auswahl eingeben.\n" +
	"- Manche Fragen sind **freiwillig** – diese können Sie mit einer leeren Antwort überspringen.\n" +
	"- Bei bestimmten Fragen können Sie zusätzlich **Dokumente hochladen**.\n" +
	"- Wenn Sie eine bereits gemachte Angabe ändern möchten, schreiben Sie das einfach, z. B.: \"Ich möchte den angegebenen Firmennamen **ändern**.\"\n"

const instructionEN = "How to enter your information:\n\n" +
	"- Simply answer the questions.\n" +
	"- If you are shown **options**, you can enter the **number** (e.g., 1 or 1.) of the choice.\n" +
	"- Some questions are **optional** – you can skip them with an empty answer.\n" +
	"- For some questions, you can also **upload documents**.\n" +
	"- If you want to change an answer you already gave, simply write it, e.g.: \"I would like to **change** the company name provided.\"\n"

const instructionFR = "Comment saisir vos informations :\n\n" +
	"- Répondez simplement aux questions.\n" +
	"- Si des **options** vous sont proposées, vous pouvez entrer le **numéro** (par ex. 1 ou 1.) du choix.\n" +
	"- Certaines questions sont **facultatives** – vous pouvez les ignorer avec une réponse vide.\n" +
	"- Pour certaines questions, vous pouvez également **téléverser des documents**.\n" +
	"- Si vous souhaitez modifier une réponse déjà donnée, écrivez-le simplement, par ex. : « Je souhaite **modifier** le nom de l’entreprise indiqué. »\n"

const instructionTR = "Bilgilerinizi nasıl gireceksiniz:\n\n" +
	"- Sorulara yanıt verin.\n" +
	"- Eğer size **seçenekler** sunulursa, seçeneğin **numarasını** (örn. 1 veya 1.) girebilirsiniz.\n" +
	"- Bazı sorular **isteğe bağlıdır** – bunları boş bir yanıtla atlayabilirsiniz.\n" +
	"- Bazı sorularda ayrıca **belge yükleyebilirsiniz**.\n" +
	"- Daha önce verdiğiniz bir cevabı değiştirmek isterseniz, bunu yazmanız yeterlidir, örn.: \"Verilen şirket adını **değiştirmek** istiyorum.\"\n"
