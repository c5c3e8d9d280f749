package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
	"github.com/suPer8Hu/bi-assistant/internal/sqlpipe"
)

var (
	askSession      string
	explainSession  string
	explainLogID    int64
	explainLanguage string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a data question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := openSession(ctx, a.repo, askSession, chat.ModuleSQL)
		if err != nil {
			return err
		}
		reply, err := a.assistant.Ask(ctx, conv, strings.Join(args, " "))
		printReply(cmd, conv, reply)
		return err
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain a failed pipeline run by log id",
	RunE: func(cmd *cobra.Command, args []string) error {
		if explainLogID <= 0 {
			return errors.New("--log-id must be a positive integer")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		conv, err := openSession(ctx, a.repo, explainSession, chat.ModuleIncident)
		if err != nil {
			return err
		}
		reply, err := a.assistant.ExplainIncident(ctx, conv, explainLogID, incident.ParseLanguage(explainLanguage))
		printReply(cmd, conv, reply)
		return err
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "continue an existing session id")

	explainCmd.Flags().Int64Var(&explainLogID, "log-id", 0, "job_logs id to analyze")
	explainCmd.Flags().StringVar(&explainLanguage, "language", "english", "report language: english or arabic")
	explainCmd.Flags().StringVar(&explainSession, "session", "", "continue an existing session id")
}

func openSession(ctx context.Context, repo *chat.Repo, id string, module chat.Module) (*chat.Conversation, error) {
	if id == "" {
		return chat.NewConversation(repo, module), nil
	}
	return chat.OpenConversation(ctx, repo, id, module)
}

func printReply(cmd *cobra.Command, conv *chat.Conversation, reply chat.Message) {
	if reply.Content == "" {
		return
	}
	meta := reply.Metadata.Data()
	if meta.SQLQuery != "" {
		cmd.Printf("SQL: %s\n\n", meta.SQLQuery)
	}
	if meta.HasResult() {
		cmd.Println(renderTable(meta.Columns, meta.Rows))
	}
	cmd.Println(reply.Content)
	cmd.Printf("\nsession: %s\n", conv.ID())
}

// renderTable prints up to ten rows as pipe separated text.
func renderTable(cols []string, rows [][]any) string {
	const maxRows = 10
	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	for i, row := range rows {
		if i == maxRows {
			fmt.Fprintf(&b, "\n... %d more rows", len(rows)-maxRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = sqlpipe.FormatValue(v)
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " | "))
	}
	b.WriteString("\n")
	return b.String()
}
