package sqlpipe

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const sampleRows = 5

const summarizerPrompt = `You are a friendly business data analyst. Based on a user's question and the query results, provide a conversational summary of the findings. Be helpful and highlight key business insights. Keep your answer short, simple and concise. Do not go into depth explaining the data results.

Respond in the same language as the user's question.

**FORMATTING RULES**:
- Provide clean, properly formatted text without spacing artifacts
- Use proper number formatting (e.g., "25,364.32" not "25, 364.32")
- Keep region and location names intact (e.g., "West" not "W est")

**FOLLOW-UP HANDLING**:
- Use the conversation history to tell whether this is a follow-up question
- Reference previous findings when relevant (e.g., "Compared to January's results...")
- Point out patterns across periods or categories when the user is comparing`

const softFailurePrompt = `You are a friendly business data assistant. The query you ran for the user failed. Apologize briefly, explain the problem in plain words without SQL jargon, and suggest how the user could rephrase the question. Respond in the same language as the user's question. Keep it to two or three sentences.`

var printer = message.NewPrinter(language.English)

type SummaryInput struct {
	Question string
	SQL      string
	Result   Result
	History  []ai.Message // prior turns, oldest first, without the current question
}

// Summarize produces the user-facing answer for an executed statement. It never fails.
func (p *Pipeline) Summarize(ctx context.Context, in SummaryInput) string {
	arabic := IsArabic(in.Question)

	if !in.Result.Success {
		return p.softFailure(ctx, in, arabic)
	}
	if in.Result.Count == 0 {
		if arabic {
			return "بحثت في بياناتك ولكن لم أجد أي نتائج تطابق معاييرك. قد ترغب في تجربة فترة زمنية أو معايير مختلفة."
		}
		return "I searched your data but didn't find any results matching your criteria. You might want to try a different time period or criteria."
	}

	d := newDateContext(p.now())
	user := fmt.Sprintf(`
User Question: %s
SQL Query Used: %s
Results Summary: %s

Current Date Context:
- Today's date: %s
- Current month: %s
- Last month: %s

Please provide a natural, conversational response summarizing these findings and any business insights. When referring to time periods, be specific about what period was actually analyzed based on the current date context.
`, in.Question, in.SQL, DescribeResult(in.Result), d.Today, d.CurrentMonth, d.LastMonth)

	msgs := make([]ai.Message, 0, len(in.History)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: summarizerPrompt})
	msgs = append(msgs, in.History...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: user})

	out, err := ai.Complete(ctx, p.provider, msgs, nil)
	if err != nil || out == "" {
		log.Errorf("sqlpipe: summarize failed rows=%d err=%v", in.Result.Count, err)
		if arabic {
			return fmt.Sprintf("وجدت بعض البيانات لسؤالك (%d سجلات)، لكن واجهت صعوبة في تلخيصها. هل يمكنك طرح السؤال بطريقة مختلفة؟", in.Result.Count)
		}
		return fmt.Sprintf("I found some data for your question (%d records), but had trouble summarizing it. Could you try asking in a different way?", in.Result.Count)
	}
	return out
}

func (p *Pipeline) softFailure(ctx context.Context, in SummaryInput, arabic bool) string {
	fallback := fmt.Sprintf("I encountered an error while analyzing your data: %s. Could you try rephrasing your question?", in.Result.Status)
	if arabic {
		fallback = fmt.Sprintf("واجهت خطأ أثناء تحليل بياناتك: %s. هل يمكنك إعادة صياغة سؤالك؟", in.Result.Status)
	}

	out, err := ai.Complete(ctx, p.provider, []ai.Message{
		{Role: ai.RoleSystem, Content: softFailurePrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf("Question: %s\nSQL: %s\nError: %s", in.Question, in.SQL, in.Result.Status)},
	}, nil)
	if err != nil || out == "" {
		return fallback
	}
	return out
}

// DescribeResult renders the row count, columns and up to five sample rows.
func DescribeResult(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query returned %d rows with columns: %s\n", r.Count, strings.Join(r.Columns, ", "))
	if len(r.Rows) == 0 {
		return b.String()
	}

	b.WriteString("Sample data:\n")
	b.WriteString(strings.Join(r.Columns, " | "))
	for i, row := range r.Rows {
		if i == sampleRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

// FormatValue renders a cell for prompts: NULL for nil, thousands separators for
// integers, two decimals for fractional floats, and no decimals for integral floats.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return printer.Sprintf("%d", x)
	case int:
		return printer.Sprintf("%d", x)
	case float64:
		if math.IsNaN(x) {
			return "NULL"
		}
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return fmt.Sprintf("%d", int64(x))
		}
		return printer.Sprintf("%.2f", x)
	case string:
		return strings.TrimSpace(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
