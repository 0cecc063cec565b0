package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dounykim/E-commerce-chatbot-groq/cmd/mainconfig"
	appconfig "github.com/dounykim/E-commerce-chatbot-groq/internal/config"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/conversation"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chat, err := mainconfig.BuildChat(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		logger.Error("failed to initialize chat", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := chat.Close(closeCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	session, err := chat.Manager.Create(ctx)
	if err != nil {
		logger.Error("failed to start session", "error", err)
		return
	}
	if err := repl(ctx, session, cfg.BotName, os.Stdin, os.Stdout); err != nil {
		logger.Error("chat ended", "error", err)
	}
}

// repl reads one user turn per line. "/reset" restarts the conversation and
// "/quit" or EOF ends it.
func repl(ctx context.Context, session *conversation.Session, botName string, in io.Reader, out io.Writer) error {
	printHistory(out, botName, session.Snapshot())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := session.Reset(ctx); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			printHistory(out, botName, session.Snapshot())
			continue
		}

		reply, err := session.Send(ctx, line)
		if err != nil {
			var providerErr *conversation.CompletionProviderError
			if errors.As(err, &providerErr) {
				fmt.Fprintln(out, "! Sorry, something went wrong. Please try again.")
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", botName, reply.Text)
	}
}

func printHistory(out io.Writer, botName string, turns []conversation.Turn) {
	for _, turn := range turns {
		if turn.Role == conversation.RoleAssistant {
			fmt.Fprintf(out, "%s: %s\n", botName, turn.Text)
		} else {
			fmt.Fprintf(out, "You: %s\n", turn.Text)
		}
	}
}
