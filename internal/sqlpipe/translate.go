package sqlpipe

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
)

const translatorPrompt = `You are a translator. If the input text is in a language other than English, translate it to English while preserving the exact meaning and context, especially for business and data analysis terms.

If the text is already in English, return it unchanged.

For business terms:
- العملاء المتسربين = churned customers
- يناير = January
- العملاء = customers
- المبيعات = sales
- الإيرادات = revenue
- المنتج = product
- المنطقة = region

Return ONLY the translated text or original text if already in English.`

const translateCachePrefix = "bi:translate:"

// Translate returns an English rendering of text. Text without non-Latin letters is
// returned as is. Failures fall back to the original.
func (p *Pipeline) Translate(ctx context.Context, text string) string {
	if !hasNonLatinLetters(text) {
		return text
	}

	key := translateCachePrefix + text
	if p.cache != nil {
		if v, ok, err := p.cache.Get(ctx, key); err != nil {
			log.Warnf("sqlpipe: translate cache get err=%v", err)
		} else if ok {
			return v
		}
	}

	out, err := ai.Complete(ctx, p.provider, []ai.Message{
		{Role: ai.RoleSystem, Content: translatorPrompt},
		{Role: ai.RoleUser, Content: text},
	}, nil)
	if err != nil {
		log.Warnf("sqlpipe: translate failed err=%v", err)
		return text
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, out); err != nil {
			log.Warnf("sqlpipe: translate cache set err=%v", err)
		}
	}
	return out
}
