package intent

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
)

type Intent string

const (
	DataQuery  Intent = "data_query"
	Greeting   Intent = "greeting"
	Irrelevant Intent = "irrelevant"
)

const classifierPrompt = `You are a classifier for user intents in a data analysis chat system.

Classify the user's message into one of these categories:
- 'data_query': Questions about data, analytics, sales, revenue, customers, churn, products, regions, etc.
- 'greeting': Greetings, hellos, how are you, etc.
- 'irrelevant': Questions not related to data analysis (weather, sports, personal questions, etc.)

Consider the conversation history to better understand context. If the user is following up on a previous data-related conversation, classify as 'data_query'.

Return ONLY the category name, nothing else.`

// DefaultHistory is how many prior turns the classifier sees.
const DefaultHistory = 10

type Classifier struct {
	provider   ai.Provider
	maxHistory int
}

func NewClassifier(p ai.Provider, maxHistory int) *Classifier {
	if maxHistory <= 0 {
		maxHistory = DefaultHistory
	}
	return &Classifier{provider: p, maxHistory: maxHistory}
}

// Classify routes a question. Any failure or unexpected label yields DataQuery.
func (c *Classifier) Classify(ctx context.Context, question string, history []ai.Message) Intent {
	if len(history) > c.maxHistory {
		history = history[len(history)-c.maxHistory:]
	}

	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: classifierPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: question})

	reply, err := ai.Complete(ctx, c.provider, msgs, nil)
	if err != nil {
		log.Warnf("intent: classify failed, defaulting to data_query err=%v", err)
		return DataQuery
	}
	return Parse(reply)
}

// Parse maps a raw model reply onto a label, tolerating quotes and trailing punctuation.
func Parse(reply string) Intent {
	s := strings.ToLower(strings.TrimSpace(reply))
	s = strings.Trim(s, "'\"`.")
	switch Intent(s) {
	case DataQuery, Greeting, Irrelevant:
		return Intent(s)
	default:
		return DataQuery
	}
}
