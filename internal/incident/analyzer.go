package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
)

type Language string

const (
	English Language = "english"
	Arabic  Language = "arabic"
)

// ParseLanguage accepts english/arabic and the en/ar short forms. Anything else is English.
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arabic", "ar":
		return Arabic
	default:
		return English
	}
}

// Report is the result of one analysis. Failed is set when Text describes a protocol
// or transport failure rather than a report.
type Report struct {
	Text     string
	Failed   bool
	Outcomes []ToolOutcome
}

// Analyzer runs the two-round tool-calling exchange for one log id.
type Analyzer struct {
	provider   ai.Provider
	dispatcher *Dispatcher
}

func NewAnalyzer(p ai.Provider, d *Dispatcher) *Analyzer {
	return &Analyzer{provider: p, dispatcher: d}
}

// Explain asks the model to fetch the failure and its knowledge-base entry, executes the
// requested tools, then asks for a narrative report. history is prior conversation,
// oldest first.
func (a *Analyzer) Explain(ctx context.Context, logID int64, lang Language, history []ai.Message) Report {
	request := requestPrompt(logID, lang)

	msgs := make([]ai.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: request})

	first, err := a.provider.Chat(ctx, ai.ChatRequest{
		Messages:    msgs,
		Tools:       Specs,
		Temperature: ai.Temperature(0.1),
	})
	if err != nil {
		log.Errorf("incident: round1 failed log_id=%d err=%v", logID, err)
		return Report{Text: "Error in incident analysis: " + err.Error(), Failed: true}
	}
	if first == nil {
		return Report{Text: "Error: No response received from the model", Failed: true}
	}
	if len(first.ToolCalls) == 0 {
		if content := first.Text(); content != "" {
			return Report{Text: content}
		}
		return Report{Text: fmt.Sprintf("Model didn't make required tool calls for log_id %d", logID), Failed: true}
	}

	outcomes := make([]ToolOutcome, 0, len(first.ToolCalls))
	for _, call := range first.ToolCalls {
		outcomes = append(outcomes, a.dispatcher.Dispatch(ctx, call))
	}
	summary := toolsSummary(outcomes)

	conv := make([]ai.Message, 0, len(msgs)+len(outcomes)+2)
	conv = append(conv, msgs...)
	conv = append(conv, ai.Message{Role: ai.RoleAssistant, Content: first.Text(), ToolCalls: first.ToolCalls})
	for _, o := range outcomes {
		conv = append(conv, ai.Message{Role: ai.RoleTool, ToolCallID: o.CallID, Content: o.Content()})
	}
	conv = append(conv, ai.Message{Role: ai.RoleUser, Content: synthesisPrompt(logID, lang, summary)})

	second, err := a.provider.Chat(ctx, ai.ChatRequest{
		Messages:    conv,
		Temperature: ai.Temperature(0.1),
	})
	if err != nil || second == nil {
		log.Errorf("incident: round2 failed log_id=%d err=%v", logID, err)
		return Report{Text: "Error: No second response received. Tool results were: " + summary, Failed: true, Outcomes: outcomes}
	}
	if len(second.ToolCalls) > 0 {
		return Report{Text: "Error: Model made unexpected tool calls in second response. Tool summary: " + summary, Failed: true, Outcomes: outcomes}
	}
	text := second.Text()
	if strings.TrimSpace(text) == "" {
		return Report{Text: "Error: Empty final response. Tool results were: " + summary, Failed: true, Outcomes: outcomes}
	}
	return Report{Text: text, Outcomes: outcomes}
}

func toolsSummary(outcomes []ToolOutcome) string {
	var b strings.Builder
	b.WriteString("Tool Execution Results:\n\n")
	for i, o := range outcomes {
		args, _ := json.Marshal(o.Args)
		result, err := json.MarshalIndent(o.Result, "   ", "  ")
		if err != nil {
			result = []byte(o.Content())
		}
		fmt.Fprintf(&b, "%d. Function: %s\n", i+1, o.Name)
		fmt.Fprintf(&b, "   Arguments: %s\n", args)
		fmt.Fprintf(&b, "   Result: %s\n\n", result)
	}
	return b.String()
}

func requestPrompt(logID int64, lang Language) string {
	if lang == Arabic {
		return fmt.Sprintf("يرجى تحليل حادثة السجل رقم %d. "+
			"أولاً، احصل على تفاصيل الفشل باستخدام معرف السجل. "+
			"ثم، استخدم رسالة الخطأ للبحث عن معلومات السبب الجذري والحل. "+
			"قدم شرحاً شاملاً يتضمن:\n"+
			"1. تفاصيل المهمة (الاسم، الوقت)\n"+
			"2. تحليل رسالة الخطأ\n"+
			"3. شرح السبب الجذري\n"+
			"4. خطوات الحل التفصيلية\n"+
			"5. الإجراءات الوقائية إن أمكن\n\n"+
			"إذا كان هناك تاريخ محادثة سابق، فاستخدمه لفهم السياق وتقديم تحليل أكثر عمقاً.", logID)
	}
	return fmt.Sprintf("Please analyze incident log ID %d. "+
		"First, fetch the failure details using the log ID. "+
		"Then, use the error message to look up root cause and resolution information. "+
		"Provide a comprehensive explanation including:\n"+
		"1. Job details (name, timestamp)\n"+
		"2. Error message analysis\n"+
		"3. Root cause explanation\n"+
		"4. Detailed resolution steps\n"+
		"5. Preventive measures if applicable\n\n"+
		"If there's conversation history, use it to understand context and provide deeper analysis.", logID)
}

func synthesisPrompt(logID int64, lang Language, summary string) string {
	if lang == Arabic {
		return fmt.Sprintf("استناداً إلى نتائج الأدوات أعلاه، يرجى تقديم تقرير تحليل شامل للحادثة رقم %d. "+
			"ملخص ما تم استرداده:\n\n%s"+
			"يرجى تحليل هذه المعلومات وتقديم:\n"+
			"1. تفاصيل فشل المهمة الكاملة\n"+
			"2. تحليل السبب الجذري\n"+
			"3. تعليمات الحل خطوة بخطوة\n"+
			"4. الإجراءات الوقائية\n"+
			"5. أي رؤى إضافية\n\n"+
			"إذا كانت هناك محادثات سابقة حول حوادث مشابهة، فاربط هذا التحليل بالمعرفة السابقة.\n"+
			"لا تقم بأي استدعاءات أدوات إضافية - فقط قدم تحليلاً مفصلاً باللغة العربية بناءً على البيانات أعلاه. لا تضف عنواناً للتقرير.", logID, summary)
	}
	return fmt.Sprintf("Based on the tool execution results above, please provide a comprehensive incident analysis report for log ID %d. "+
		"Here's a summary of what was retrieved:\n\n%s"+
		"Please analyze this information and provide:\n"+
		"1. Complete job failure details\n"+
		"2. Root cause analysis\n"+
		"3. Step-by-step resolution instructions\n"+
		"4. Preventive measures\n"+
		"5. Any additional insights\n\n"+
		"If there are previous conversations about similar incidents, connect this analysis to prior knowledge.\n"+
		"Do not make any additional tool calls - just provide a detailed analysis in English based on the data above. Do not add a report header.", logID, summary)
}
