package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RichardoC/pad-chat/internal/app"
	"github.com/RichardoC/pad-chat/internal/chat"
	"github.com/RichardoC/pad-chat/internal/config"
	"github.com/RichardoC/pad-chat/internal/models"
	"go.uber.org/zap"
)

const usage = `commands:
  /new            start a new conversation
  /list           list your conversations
  /open <id>      continue a conversation
  /history        show the current conversation
  /clear          delete the current conversation's messages
  /quit           exit`

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	owner := flag.String("user", "local", "owner of the conversations")
	conversationID := flag.String("conversation", "", "conversation to continue")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	// Keep stdout for the conversation.
	cfg.Log.Development = false
	if cfg.Log.Level == "" || cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize chat service", zap.Error(err))
	}
	defer a.Close()

	s := &session{svc: a.Service, owner: *owner, conversationID: *conversationID}
	s.run(ctx)
}

type session struct {
	svc            *chat.Service
	owner          string
	conversationID string
}

func (s *session) run(ctx context.Context) {
	fmt.Println("Chat (type /help for commands, Ctrl-C to quit)")

	inputCh := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

	for {
		fmt.Print("\u001b[94mYou\u001b[0m: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Println("\nExiting...")
			return
		case line, ok = <-inputCh:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return
			}
			continue
		}

		reply, err := s.svc.HandleMessage(ctx, chat.Request{
			Owner:          s.owner,
			ConversationID: s.conversationID,
			Input:          line,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if s.conversationID == "" {
			fmt.Printf("(conversation %s)\n", reply.ConversationID)
		}
		s.conversationID = reply.ConversationID
		fmt.Printf("\u001b[93mAssistant\u001b[0m [%s]: %s\n", reply.Title, reply.Response)
	}
}

func (s *session) command(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(usage)
	case "/new":
		s.conversationID = ""
		fmt.Println("Next message starts a new conversation.")
	case "/open":
		s.conversationID = strings.TrimSpace(arg)
	case "/list":
		convs, err := s.svc.ListConversations(ctx, s.owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		for _, c := range convs {
			marker := " "
			if c.ID == s.conversationID {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  %s\n", marker, c.ID, c.CreatedAt.Format("2006-01-02 15:04"), c.Title)
		}
	case "/history":
		s.printHistory(ctx)
	case "/clear":
		if s.conversationID == "" {
			fmt.Println("No conversation selected.")
			break
		}
		if err := s.svc.ClearHistory(ctx, s.owner, s.conversationID); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	default:
		fmt.Println(usage)
	}
	return false
}

func (s *session) printHistory(ctx context.Context) {
	if s.conversationID == "" {
		fmt.Println("No conversation selected.")
		return
	}
	conv, turns, err := s.svc.ChatHistory(ctx, s.owner, s.conversationID)
	if errors.Is(err, models.ErrNotFound) {
		fmt.Println("Conversation not found.")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Printf("# %s\n", conv.Title)
	for _, t := range turns {
		for _, m := range t.Messages() {
			fmt.Printf("%s: %s\n", m.Role, m.Content)
		}
	}
}
