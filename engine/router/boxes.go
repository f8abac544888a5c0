package router

import "strings"

// Terminal boxes render from fixed templates only. Free text never leaves
// the router.

const defaultClarifyQuestion = "Só pra eu te responder certinho: qual é a sua dúvida principal agora?"

// RenderOneQuestion returns q trimmed down to exactly one short question.
func RenderOneQuestion(q string) string {
	q = strings.TrimSpace(strings.ReplaceAll(q, "\n", " "))
	if q == "" {
		return defaultClarifyQuestion
	}
	if strings.Count(q, "?") > 1 {
		q = strings.TrimSpace(strings.SplitN(q, "?", 2)[0]) + "?"
	}
	return q
}

// RenderRedirect picks the fixed out-of-scope reply for the sub-reason. It
// repositions the product without promising work we do not do.
func (r *Router) RenderRedirect(reason string) string {
	switch reason {
	case reasonCustomQuote:
		return "Entendi 🙂 A gente não faz programa sob medida.\n" +
			"O que a gente faz é o " + r.cfg.ProductName + ": atende seus clientes no WhatsApp, organiza agenda e evita perder venda.\n" +
			"Pra ver como funciona e valores: " + r.cfg.SiteURL
	case reasonPersonalMessage:
		return "Posso te ajudar sim — mas eu não consigo mandar recado pra outra pessoa diretamente.\n" +
			"Se você me disser o recado (curtinho) e o nome dele(a), eu te devolvo pronto pra copiar e colar."
	default:
		return "Entendi 🙂\n" +
			"Eu sou o " + r.cfg.ProductName + " e ajudo com atendimento no WhatsApp (agenda, respostas e organização).\n" +
			"Se quiser ver como funciona e valores: " + r.cfg.SiteURL
	}
}
