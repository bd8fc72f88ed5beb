package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/xiaowei/internal/models"
)

func newQueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the knowledge base without asking the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Retrieval.Query(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				color.Yellow("No matching knowledge")
				return nil
			}
			for i, r := range results {
				color.Cyan("%d. %s (%.2f)", i+1, r.DocumentName, r.Score)
				fmt.Println("   " + r.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Number of chunks to return")
	return cmd
}

func newChatCmd() *cobra.Command {
	var (
		docs      []string
		noKB      bool
		showSteps bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range docs {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if _, err := a.Assistant.UploadDocument(ctx, userID, filepath.Base(path),
					base64.StdEncoding.EncodeToString(data), fileTypeFor(path)); err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				color.Green("✓ Loaded %s", path)
			}

			avatar := a.Assistant.ActiveAvatar(ctx)
			color.Cyan("\nChat with %s (type 'exit' to quit)", avatar.Name)

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()
			assistantPrompt := color.New(color.FgCyan).PrintfFunc()

			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				if strings.ToLower(text) == "exit" {
					break
				}

				spinner := getSpinner("🤖 Thinking...")
				reply, err := a.Assistant.Chat(ctx, userID, text, !noKB)
				spinner.Finish()
				fmt.Print("\r")

				if err != nil {
					color.Red("Error: %v\n", err)
					if ctx.Err() != nil {
						return nil
					}
					continue
				}

				if showSteps {
					printSteps(reply.Steps)
				}
				assistantPrompt("%s: %s\n", avatar.Name, reply.Answer)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringSliceVar(&docs, "docs", nil, "Files to add to the knowledge base before chatting")
	cmd.Flags().BoolVar(&noKB, "no-knowledge", false, "Answer without consulting the knowledge base")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "Print the reasoning steps")
	return cmd
}

func printSteps(steps []models.ReasoningStep) {
	dim := color.New(color.Faint)
	for _, step := range steps {
		switch v := step.Value.(type) {
		case []models.RetrievalSummary:
			dim.Printf("[%s]\n", step.Type)
			for _, s := range v {
				dim.Printf("  %s (%s) %s\n", s.File, s.Score, s.Snippet)
			}
		default:
			if step.Type == models.StepFinal {
				continue
			}
			dim.Printf("[%s] %v\n", step.Type, v)
		}
	}
}
