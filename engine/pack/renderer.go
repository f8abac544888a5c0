package pack

import (
	"regexp"
	"strings"

	"github.com/crisalvesdev/atendebot/engine/contract"
)

var (
	leftoverSlotRe = regexp.MustCompile(`\{\{[a-zA-Z0-9_]+\}\}`)
	spaceRunRe     = regexp.MustCompile(`[ \t]+`)
)

// Request selects and renders one pack.
type Request struct {
	Intent     contract.Intent
	Segment    string
	PackID     string
	RenderMode contract.RenderMode
}

// Reply is the rendered outcome.
type Reply struct {
	ReplyText  string
	PackID     string
	Segment    string
	RenderMode contract.RenderMode
}

// Renderer renders pack replies against a knowledge base.
type Renderer struct {
	kb *KnowledgeBase
}

func NewRenderer(kb *KnowledgeBase) *Renderer {
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	return &Renderer{kb: kb}
}

// Render produces the reply for the request. Selection order: explicit pack
// id, segment preference, intent profile, intent fallback, then
// PACK_B_SERVICOS. A selected pack on the segment's do-not-use list is
// replaced by the generic pack.
func (r *Renderer) Render(req Request) Reply {
	seg := strings.ToLower(strings.TrimSpace(req.Segment))
	segd, hasSeg := r.kb.Segments[seg]

	packID := r.selectPack(req.Intent, seg, req.PackID)
	p, ok := r.kb.Packs[packID]
	if !ok {
		packID = PackServicos
		p = r.kb.Packs[packID]
	}
	if hasSeg && contains(segd.DoNotUse, packID) {
		packID = PackServicos
		p = r.kb.Packs[packID]
	}

	slots := make(map[string]string, len(p.Slots))
	for name, slot := range p.Slots {
		slots[name] = strings.TrimSpace(slot.Default)
	}
	if hasSeg {
		for name, v := range segd.Tokens[packID] {
			slots[name] = strings.TrimSpace(v)
		}
	}

	mode := req.RenderMode
	if mode != contract.RenderShort && mode != contract.RenderLong {
		mode = contract.RenderMode(strings.ToLower(strings.TrimSpace(r.kb.Policy.DefaultRenderMode)))
		if mode != contract.RenderLong {
			mode = contract.RenderShort
		}
	}

	tpl := p.Short
	if mode == contract.RenderLong {
		tpl = p.Long
	}
	reply := fillTemplate(tpl, slots)

	if ex := slots["example_line"]; ex != "" && !strings.Contains(reply, ex) {
		if strings.HasSuffix(reply, ".") {
			reply = reply + " " + ex
		} else {
			reply = reply + ". " + ex
		}
	}

	if seg == "" && !r.kb.Policy.AskSegmentOnlyIfNeeded {
		if q := strings.TrimSpace(r.kb.Policy.SegmentQuestion); q != "" && !strings.Contains(reply, "?") {
			reply = strings.TrimRight(reply, ".") + ". " + q
		}
	}

	return Reply{
		ReplyText:  strings.TrimSpace(reply),
		PackID:     packID,
		Segment:    seg,
		RenderMode: mode,
	}
}

func (r *Renderer) selectPack(intent contract.Intent, seg, explicit string) string {
	if explicit != "" {
		if _, ok := r.kb.Packs[explicit]; ok {
			return explicit
		}
	}
	if segd, ok := r.kb.Segments[seg]; ok && len(segd.PreferredPacks) > 0 {
		return segd.PreferredPacks[0]
	}
	if packs := r.kb.ProfileDefaults[profileFor(intent)]; len(packs) > 0 {
		return packs[0]
	}
	if id := packByIntent(intent); id != "" {
		return id
	}
	return PackServicos
}

func profileFor(intent contract.Intent) string {
	switch intent {
	case contract.IntentOrders:
		return "by_orders"
	case contract.IntentSchedule, contract.IntentPrice, contract.IntentWhatIs:
		return "by_schedule"
	case contract.IntentStatus, contract.IntentActivate:
		return "by_status"
	}
	return ""
}

func packByIntent(intent contract.Intent) string {
	switch intent {
	case contract.IntentSchedule:
		return PackAgenda
	case contract.IntentPrice, contract.IntentWhatIs:
		return PackServicos
	case contract.IntentOrders:
		return PackPedidos
	case contract.IntentStatus, contract.IntentActivate:
		return PackStatus
	}
	return ""
}

func fillTemplate(tpl string, slots map[string]string) string {
	s := tpl
	for name, v := range slots {
		s = strings.ReplaceAll(s, "{{"+name+"}}", v)
	}
	s = leftoverSlotRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
