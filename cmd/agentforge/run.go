package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentforge"
	"github.com/hupe1980/agentforge/dispatch"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/internal/util"
)

var (
	runChatID    string
	runMessageID string
	runAgentID   string
	runModelID   string
	runUserID    string
	runPrompt    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one invocation and print the answer",
	Long: `Run dispatches a single invocation. Either point it at an existing
assistant message with --chat and --message, or pass --prompt to create a
fresh user and assistant message pair in the store first.`,
	Example: `  agentforge run --seed seed.yaml --model gpt --prompt "Hello"
  agentforge run --store-driver sqlite --store-dsn forge.db --chat c1 --message a1 --agent helper`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runChatID, "chat", "", "Chat id")
	runCmd.Flags().StringVar(&runMessageID, "message", "", "Assistant message id")
	runCmd.Flags().StringVar(&runAgentID, "agent", "", "Agent id")
	runCmd.Flags().StringVar(&runModelID, "model", "", "Model id")
	runCmd.Flags().StringVar(&runUserID, "user", "cli", "User id sent to hosted agents")
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Create a new message pair with this text")
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runAgentID == "" && runModelID == "" {
		return errors.New("one of --agent or --model is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	forge, err := agentforge.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer forge.Close()

	inv := dispatch.Invocation{
		ChatID:             runChatID,
		AssistantMessageID: runMessageID,
		AgentID:            runAgentID,
		ModelID:            runModelID,
		UserID:             runUserID,
	}

	if runPrompt != "" {
		if inv.ChatID == "" {
			inv.ChatID = util.NewULID()
		}
		inv.AssistantMessageID, err = createExchange(ctx, forge.Docs(), inv.ChatID, runPrompt)
		if err != nil {
			return err
		}
	}

	res, err := forge.Dispatch(ctx, inv)
	if err != nil {
		return err
	}

	for _, d := range res.Diagnostics {
		printStatus("⚠", d.String(), color.FgYellow)
	}

	if res.Status() == docstore.StatusError {
		for _, detail := range res.ErrorDetails {
			printStatus("✗", detail, color.FgRed)
		}
		return fmt.Errorf("run of message %s failed", inv.AssistantMessageID)
	}

	printStatus("✓", fmt.Sprintf("chat %s message %s completed", inv.ChatID, inv.AssistantMessageID), color.FgGreen)
	fmt.Println(partsText(res.FinalParts))

	return nil
}

// createExchange writes a user message and an empty assistant reply to it,
// returning the assistant message id.
func createExchange(ctx context.Context, docs docstore.Store, chatID, prompt string) (string, error) {
	userID, assistantID := util.NewULID(), util.NewULID()

	if err := docs.Set(ctx, docstore.MessagePath(chatID, userID), map[string]any{
		"participant": "user",
		"parts":       []any{map[string]any{"text": prompt}},
	}); err != nil {
		return "", err
	}

	if err := docs.Set(ctx, docstore.MessagePath(chatID, assistantID), map[string]any{
		"participant":     "assistant",
		"parentMessageId": userID,
	}); err != nil {
		return "", err
	}

	return assistantID, nil
}

func partsText(parts []map[string]any) string {
	var texts []string
	for _, p := range parts {
		if t, ok := p["text"].(string); ok {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}
