package front

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/crisalvesdev/atendebot/engine/contract"
)

const replyMaxChars = 900

// Channel terms the model likes to invent. A sentence naming one of these is
// dropped unless the snapshot actually mentions the term.
var channelTerms = []string{
	"instagram", "facebook", "telegram", "e-mail", "email", "sms", "telefone fixo",
}

var configureCloserRe = regexp.MustCompile(`(?i)(te mostro|vou te mostrar|posso te mostrar|deixa eu te mostrar)[^.!?]*configurar[^.!?]*[.!?]?`)

var fitQuestions = map[contract.Intent]string{
	contract.IntentSchedule: "Seus clientes marcam horário com você pelo WhatsApp hoje?",
	contract.IntentPrice:    "Quer que eu te passe os valores direto?",
	contract.IntentActivate: "Quer ativar pro seu negócio?",
	contract.IntentVoice:    "Seus clientes costumam mandar áudio?",
}

const defaultFitQuestion = "Isso faz sentido pro seu negócio?"

// sanitizeReply applies the outbound text rules: drop channel claims the
// snapshot does not back, swap "let me show you how to configure" closings
// for a fit question, keep at most one question mark, cap the length.
func sanitizeReply(text, kbSnapshot string, intent contract.Intent) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return s
	}

	s = stripUngroundedChannels(s, kbSnapshot)
	s = replaceConfigureCloser(s, intent)
	s = collapseQuestions(s)

	if len(s) > replyMaxChars {
		s = strings.TrimSpace(truncateRunes(s, replyMaxChars))
	}
	return s
}

// truncateRunes cuts s to at most max bytes, never mid-rune.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func stripUngroundedChannels(text, kbSnapshot string) string {
	snap := strings.ToLower(kbSnapshot)
	sentences := splitSentences(text)
	kept := sentences[:0]
	for _, sent := range sentences {
		low := strings.ToLower(sent)
		drop := false
		for _, term := range channelTerms {
			if strings.Contains(low, term) && !strings.Contains(snap, term) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, sent)
		}
	}
	if len(kept) == 0 {
		return text
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

func replaceConfigureCloser(text string, intent contract.Intent) string {
	if !configureCloserRe.MatchString(text) {
		return text
	}
	q := fitQuestions[intent]
	if q == "" {
		q = defaultFitQuestion
	}
	out := strings.TrimSpace(configureCloserRe.ReplaceAllString(text, ""))
	if out == "" {
		return q
	}
	if !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "!") && !strings.HasSuffix(out, "?") {
		out += "."
	}
	if strings.Contains(out, "?") {
		return out
	}
	return out + " " + q
}

// collapseQuestions keeps the first question mark and turns the rest into
// periods, so a reply never asks twice.
func collapseQuestions(text string) string {
	first := strings.IndexByte(text, '?')
	if first < 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	b.WriteString(text[:first+1])
	rest := text[first+1:]
	b.WriteString(strings.ReplaceAll(rest, "?", "."))
	return b.String()
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			sent := strings.TrimSpace(text[start : i+1])
			if sent != "" {
				out = append(out, sent)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
