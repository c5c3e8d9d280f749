package sqlpipe

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
)

// GenerationError means no usable SQL came back. Its message is shown as is.
type GenerationError struct {
	Msg string
}

func (e *GenerationError) Error() string { return e.Msg }

var (
	fenceRe    = regexp.MustCompile("```sql\\n?|```\\n?")
	embeddedRe = regexp.MustCompile(`(?is)(SELECT.*?)(?:\n\n|\z)`)
)

var generationVerbs = []string{"SELECT", "UPDATE", "INSERT", "DELETE", "WITH"}

const schemaHintLimit = 8

// Generate asks the model for one SQL statement answering question. previous holds
// follow-up context as produced by chat.Conversation.PreviousSQL.
func (p *Pipeline) Generate(ctx context.Context, question string, previous []ai.Message) (string, error) {
	english := p.Translate(ctx, question)

	msgs := make([]ai.Message, 0, len(previous)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: p.generatorPrompt(newDateContext(p.now()))})
	msgs = append(msgs, previous...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: p.generatorUserPrompt(ctx, question, english)})

	raw, err := ai.Complete(ctx, p.provider, msgs, ai.Temperature(0.1))
	if err != nil {
		log.Errorf("sqlpipe: generate failed err=%v", err)
		return "", &GenerationError{Msg: "Error generating SQL: " + err.Error()}
	}
	return CleanSQL(raw)
}

// CleanSQL strips code fences and checks the text starts with a SQL verb, trying one
// extraction of an embedded SELECT before giving up.
func CleanSQL(raw string) (string, error) {
	sql := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
	if hasPrefixFold(sql, generationVerbs) {
		return sql, nil
	}

	log.Warnf("sqlpipe: response does not look like SQL: %q", truncate(sql, 200))
	if m := embeddedRe.FindStringSubmatch(sql); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return "", &GenerationError{Msg: fmt.Sprintf("Error: AI returned non-SQL response: %s...", truncate(sql, 100))}
}

func (p *Pipeline) generatorUserPrompt(ctx context.Context, question, english string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database Schema:%s\n", p.cfg.Schema)
	if p.hints != nil {
		hints, err := p.hints.Hints(ctx, english, schemaHintLimit)
		if err != nil {
			log.Warnf("sqlpipe: schema hints err=%v", err)
		} else if len(hints) > 0 {
			b.WriteString("Relevant columns:\n")
			for _, h := range hints {
				fmt.Fprintf(&b, "- %s\n", h)
			}
		}
	}
	fmt.Fprintf(&b, "\nOriginal Question: %s\nEnglish Translation: %s\n\n", question, english)
	b.WriteString("Generate ONLY the SQL query to answer this question. Do not include any explanation, description, or analysis. Return pure SQL code only.")
	return b.String()
}

func (p *Pipeline) generatorPrompt(d dateContext) string {
	ci, year, month := dialectRules(p.cfg.Dialect)
	yearOf := func(y int) string { return fmt.Sprintf(year, y) }
	monthOf := func(m int) string { return fmt.Sprintf(month, m) }

	return fmt.Sprintf(`You are a SQL generator. Your ONLY job is to generate valid %[1]s SQL queries.

**CRITICAL INSTRUCTIONS**:
- You MUST return ONLY SQL code - no explanations, no natural language, no markdown
- Do NOT provide any commentary, analysis, or description
- Do NOT return results or data - only the SQL query itself
- Your response should be executable SQL that starts with SELECT, UPDATE, INSERT, etc.

**CURRENT DATE CONTEXT**:
- Today's date: %[2]s
- Current month: %[3]s
- Last month: %[4]s
- Use this context to interpret relative date terms like "last month", "this month", "this quarter", etc.

IMPORTANT RULES:
1. **%[5]s when filtering text columns like region, product or segment**
2. **For date filtering, use proper date format and column names from the schema**
3. **Do NOT use user input directly as column values - map them to actual database values**
4. **For churn analysis, use the churn table and its churned_customers column**
5. **For product and region filtering use exact match for single letters or numbers and case-insensitive matching otherwise**
   EXAMPLES:
   - "Product A" or "المنتج A" -> product 'Product A'
   - "الشمالية" -> region 'North'

**RELATIVE DATE INTERPRETATION**:
- "last month" = %[4]s = WHERE %[6]s AND %[7]s
- "this month" = %[3]s = WHERE %[8]s AND %[9]s
- "last quarter" = previous complete quarter based on current date
- Always convert relative terms to specific date ranges

**YEAR-OVER-YEAR CALCULATIONS**:
- AVOID window functions combined with GROUP BY
- Compare years with conditional aggregation, e.g. SUM(CASE WHEN <year of date> = 2024 THEN revenue ELSE 0 END)
- Use NULLIF() on every divisor to prevent division by zero

**FOLLOW-UP QUESTIONS**:
- Read the conversation context to understand what the user asked before
- Keep the same metrics, grouping and structure when the user asks a follow-up
  * Previous: "Sales data for January 2024" -> Current: "What about February?" -> Sales data for February 2024
  * Previous: "Churn in North region" -> Current: "How about South?" -> Churn in South region
- Resolve implicit references like "same period" or "other regions"

Always use the column names from the schema. Do not invent columns.

REMEMBER: Return ONLY the SQL query, nothing else. No explanations, no markdown, no natural language.`,
		p.cfg.Dialect, d.Today, d.CurrentMonth, d.LastMonth, ci,
		yearOf(d.LastYear), monthOf(d.LastMonthNum),
		yearOf(d.Year), monthOf(d.Month),
	)
}

// dialectRules returns the case-insensitive matching rule and year/month predicate
// templates for a dialect.
func dialectRules(dialect string) (ci, year, month string) {
	switch dialect {
	case "SQLite":
		return "Use LOWER(column) = LOWER(value) or LIKE for case-insensitive matching",
			"CAST(strftime('%%Y', date) AS INTEGER) = %d",
			"CAST(strftime('%%m', date) AS INTEGER) = %d"
	case "MySQL":
		return "Use LOWER(column) = LOWER(value) or LIKE for case-insensitive matching",
			"YEAR(date) = %d",
			"MONTH(date) = %d"
	default:
		return "Use case-insensitive matching (ILIKE)",
			"EXTRACT(YEAR FROM date) = %d",
			"EXTRACT(MONTH FROM date) = %d"
	}
}

func hasPrefixFold(s string, prefixes []string) bool {
	up := strings.ToUpper(s)
	for _, p := range prefixes {
		if strings.HasPrefix(up, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
