package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shibayu36/salesagent/agent"
	"github.com/shibayu36/salesagent/render"
	"github.com/shibayu36/salesagent/server"
)

const (
	maxListedMessage = 50
	apologyMessage   = "Sorry, something went wrong while answering. Please try again."
)

var errAnswerFailed = errors.New("failed to answer the question")

func runChat(ctx context.Context, configPath string, verbose bool, sessionID string) error {
	a, err := newApp(ctx, appOptions{configPath: configPath, verbose: verbose, withAgent: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer a.Close()

	// セッションの開始または復元
	if sessionID != "" {
		session, err := a.memory.RestoreSession(sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to restore session: %v\n", err)
			return err
		}
		fmt.Printf("Resumed session: %s\n", session.ID)
	} else {
		session, err := a.memory.StartSession(a.cfg.Database.Path, a.cfg.LLM.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start session: %v\n", err)
			return err
		}
		sessionID = session.ID
		fmt.Printf("Started new session: %s\n", session.ID)
		fmt.Printf("Use --session %s to resume this session later\n", session.ID)
	}
	defer func() {
		if err := a.memory.EndSession(sessionID); err != nil {
			a.log.Warn("failed to end session", "session", sessionID, "error", err)
		}
	}()

	fmt.Println("salesagent - ask questions about Contoso sales data")
	fmt.Println("Type 'exit' or 'quit' to end the conversation")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		userInput := strings.TrimSpace(scanner.Text())

		// 終了コマンドをチェック
		if userInput == "exit" || userInput == "quit" {
			fmt.Println("Goodbye!")
			break
		}
		if userInput == "" {
			continue
		}

		reply, err := a.agent.Respond(ctx, sessionID, userInput)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// 生のエラーはユーザーには見せない
			a.log.Error("failed to answer", "session", sessionID, "error", err)
			fmt.Printf("Assistant: %s\n\n", apologyMessage)
			continue
		}
		fmt.Printf("Assistant: %s\n\n", reply.Text)
	}
	return scanner.Err()
}

func runAsk(ctx context.Context, configPath string, verbose bool, args []string, asJSON bool) error {
	a, err := newApp(ctx, appOptions{configPath: configPath, verbose: verbose, withAgent: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer a.Close()

	return askOnce(ctx, a.agent, a.log, os.Stdout, strings.Join(args, " "), asJSON)
}

// askOnce は1つの質問に答えて結果をwに書き出す
func askOnce(ctx context.Context, responder server.Responder, log *slog.Logger, w io.Writer, question string, asJSON bool) error {
	reply, err := responder.Respond(ctx, "", question)
	if err != nil {
		// 生のエラーはユーザーには見せない
		log.Error("failed to answer", "error", err)
		if err := printReply(w, &agent.Reply{Text: apologyMessage}, asJSON); err != nil {
			return err
		}
		return errAnswerFailed
	}
	return printReply(w, reply, asJSON)
}

func printReply(w io.Writer, reply *agent.Reply, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, reply.Text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reply)
}

func runSessions(configPath string, verbose bool, limit int) error {
	a, err := newApp(context.Background(), appOptions{configPath: configPath, verbose: verbose})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer a.Close()

	sessions, err := a.memory.ListSessions(a.cfg.Database.Path, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get sessions: %v\n", err)
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found for this database.")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		lastMsg := []rune(s.LastMessage)
		if len(lastMsg) > maxListedMessage {
			lastMsg = append(lastMsg[:maxListedMessage], []rune("...")...)
		}
		rows = append(rows, []string{
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprint(s.MessageCount),
			string(lastMsg),
		})
	}
	fmt.Println("Recent sessions:")
	fmt.Print(render.MarkdownTable([]string{"ID", "Started At", "Messages", "Last Message"}, rows))
	return nil
}

func runSchema(ctx context.Context, configPath string, verbose bool, withPrompt bool) error {
	a, err := newApp(ctx, appOptions{configPath: configPath, verbose: verbose})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer a.Close()

	if !withPrompt {
		fmt.Println(a.db.Schema().Describe())
		return nil
	}
	instructions, err := agent.LoadInstructions(a.cfg.Agent.InstructionsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	fmt.Println(agent.BuildSystemPrompt(instructions, a.db.Schema()))
	return nil
}
