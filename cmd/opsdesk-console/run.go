// ABOUTME: Interactive loop for the console: commands, input, and redraws
// ABOUTME: Readline-style prompt in front of the conversation sync controller

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/opsdesk/livechat/internal/auth"
	"github.com/opsdesk/livechat/internal/chat"
	"github.com/opsdesk/livechat/internal/config"
	"github.com/opsdesk/livechat/internal/console"
	"github.com/opsdesk/livechat/internal/rest"
	"github.com/opsdesk/livechat/internal/transport"
)

func runConsole(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, cleanup, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanup()

	token, err := cfg.ResolveToken()
	if err != nil {
		return err
	}
	if token != "" {
		info, err := auth.Inspect(token)
		switch {
		case err != nil:
			logger.Warn("token inspection failed", "error", err)
		case info.Subject != cfg.Operator.AdminID:
			return fmt.Errorf("token subject %q does not match operator.admin_id %q",
				info.Subject, cfg.Operator.AdminID)
		case info.ExpiresWithin(15 * time.Minute):
			color.New(color.FgYellow).Printf("Warning: credential expires at %s\n",
				info.ExpiresAt.Format(time.RFC3339))
		}
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("API:      %s\n", cfg.Server.APIBaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Socket:   %s\n", cfg.Server.WSURL)
	green.Print("    ▶ ")
	fmt.Printf("Operator: %s\n\n", cfg.Operator.AdminID)

	logger.Info("starting opsdesk-console",
		"config", configPath,
		"api", cfg.Server.APIBaseURL,
		"ws", cfg.Server.WSURL,
	)

	api := rest.New(cfg.Server.APIBaseURL, token)

	var notifier console.Notifier
	if cfg.Notifications.Enabled {
		notifier = &terminalNotifier{}
	}

	var ctrl *console.Controller
	manager := transport.NewManager(transport.Options{
		URL:     cfg.Server.WSURL,
		AdminID: cfg.Operator.AdminID,
		Token:   token,
		Logger:  logger,
		Handler: handlerFunc(func() *console.Controller { return ctrl }),
	})

	ctrl = console.New(console.Options{
		Socket:     manager,
		API:        api,
		Notifier:   notifier,
		Logger:     logger,
		ListPoll:   cfg.Connection.ListPoll,
		DetailPoll: cfg.Connection.DetailPoll,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctrl.Run(runCtx)

	fmt.Println("Type /help for commands. Plain text sends to the open conversation.")
	fmt.Println()

	return commandLoop(ctx, ctrl)
}

// handlerFunc bridges the transport's Handler interface to a controller that
// is constructed after the manager. The manager never fires events before
// Connect, and Connect happens inside Controller.Run.
type handlerFunc func() *console.Controller

func (h handlerFunc) OnConnectionChange(s transport.State) { h().OnConnectionChange(s) }
func (h handlerFunc) OnNewMessage(m chat.Message)          { h().OnNewMessage(m) }
func (h handlerFunc) OnMessageSent(m chat.Message)         { h().OnMessageSent(m) }
func (h handlerFunc) OnMessageAck(a transport.AckPayload)  { h().OnMessageAck(a) }
func (h handlerFunc) OnMessageFailed(f transport.FailedPayload) {
	h().OnMessageFailed(f)
}
func (h handlerFunc) OnTyping(t transport.TypingPayload) { h().OnTyping(t) }
func (h handlerFunc) OnSessionClaimed(e transport.SessionEventPayload) {
	h().OnSessionClaimed(e)
}
func (h handlerFunc) OnSessionClosed(e transport.SessionEventPayload) {
	h().OnSessionClosed(e)
}
func (h handlerFunc) OnSessionTransferred(e transport.TransferredPayload) {
	h().OnSessionTransferred(e)
}
func (h handlerFunc) OnConversationUpdate(u chat.ConversationUpdate) {
	h().OnConversationUpdate(u)
}
func (h handlerFunc) OnPresence(p transport.PresencePayload) { h().OnPresence(p) }
func (h handlerFunc) OnServerError(e transport.ErrorPayload) { h().OnServerError(e) }

func commandLoop(ctx context.Context, ctrl *console.Controller) error {
	scanner := bufio.NewScanner(os.Stdin)
	r := newRenderer(os.Stdout)

	for {
		prompt(ctrl)

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !strings.HasPrefix(input, "/") {
			ctrl.InputChanged(input)
			ctrl.Send(input)
			continue
		}

		cmd, args, _ := strings.Cut(input[1:], " ")
		args = strings.TrimSpace(args)

		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "help":
			printHelp()
		case "list", "ls":
			ctrl.Refresh()
			time.Sleep(200 * time.Millisecond)
			ctrl.View(r.conversationList)
		case "open":
			if args == "" {
				fmt.Println("Usage: /open <conversation_id>")
				continue
			}
			ctrl.Select(args)
			time.Sleep(200 * time.Millisecond)
			ctrl.View(r.messages)
		case "show":
			ctrl.View(r.messages)
		case "older":
			ctrl.LoadOlder()
			time.Sleep(200 * time.Millisecond)
			ctrl.View(r.messages)
		case "claim":
			ctrl.Claim()
		case "end":
			ctrl.EndSession()
		case "transfer":
			operatorID, err := strconv.ParseInt(args, 10, 64)
			if err != nil {
				fmt.Println("Usage: /transfer <operator_id>")
				continue
			}
			ctrl.Transfer(operatorID, "")
		case "mode":
			switch args {
			case "bot":
				ctrl.SetMode(chat.ModeBot)
			case "human":
				ctrl.SetMode(chat.ModeHuman)
			default:
				fmt.Println("Usage: /mode bot|human")
			}
		case "retry":
			if args == "" {
				fmt.Println("Usage: /retry <temp_id>")
				continue
			}
			ctrl.RetryMessage(args)
		case "filter":
			ctrl.SetFilter(args) // empty clears the filter
		case "search":
			ctrl.SetSearch(args)
			ctrl.View(r.conversationList)
		case "status":
			ctrl.View(r.status)
		case "reconnect":
			ctrl.Reconnect()
		default:
			fmt.Printf("Unknown command: /%s\n", cmd)
		}
	}
}

func prompt(ctrl *console.Controller) {
	var selected string
	var connected bool
	ctrl.View(func(s console.Snapshot) {
		selected = s.Store.SelectedID
		connected = s.Connection == transport.StateConnected
	})

	if !connected {
		color.New(color.FgRed).Print("offline ")
	}
	if selected != "" {
		fmt.Printf("[%s]> ", selected)
	} else {
		fmt.Print("> ")
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /list              Refresh and show the conversation list")
	fmt.Println("  /open <id>         Open a conversation")
	fmt.Println("  /show              Redraw the open conversation")
	fmt.Println("  /older             Load older messages")
	fmt.Println("  /claim             Take over the open conversation")
	fmt.Println("  /end               End the session, hand back to the bot")
	fmt.Println("  /transfer <op>     Transfer the session to another operator")
	fmt.Println("  /mode bot|human    Switch handling mode")
	fmt.Println("  /retry <temp_id>   Retry a failed send")
	fmt.Println("  /filter <status>   Filter the list (waiting, active, closed)")
	fmt.Println("  /search <text>     Filter the list by name")
	fmt.Println("  /status            Connection, presence, and pending sends")
	fmt.Println("  /reconnect         Force an immediate reconnect")
	fmt.Println("  /quit              Exit")
	fmt.Println()
	fmt.Println("Anything not starting with / is sent to the open conversation.")
}
