package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/refunda-ai/refunda/internal/client"
)

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Start an interactive refund conversation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runChat,
	}
	cmd.Flags().String("session", "", "Join an existing session instead of creating one")
	cmd.Flags().String("text", "", "Send a single utterance and print the reply (non-interactive)")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	sessionID := strings.TrimSpace(cmd.Flag("session").Value.String())
	oneShot := strings.TrimSpace(cmd.Flag("text").Value.String())

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	if oneShot != "" {
		return chatOneShot(out, c, sessionID, oneShot)
	}

	if !terminal.IsTerminal(int(os.Stdin.Fd())) {
		return out.Error("Interactive chat requires a terminal (use --text for scripted input)", nil)
	}

	stream, err := c.OpenChat(sessionID)
	if err != nil {
		return out.Error("Failed to open chat stream", err)
	}
	defer stream.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("Connected. Describe your refund request (Ctrl+C to leave).")
	fmt.Print("> ")

	for {
		select {
		case sig := <-sigChan:
			fmt.Printf("\nReceived %s, leaving chat.\n", sig)
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				fmt.Print("> ")
				continue
			}
			if err := stream.Send(text); err != nil {
				return out.Error("Failed to send message", err)
			}

		case event, ok := <-stream.Events():
			if !ok {
				fmt.Println("Connection closed.")
				return nil
			}
			switch event.Type {
			case "session_created":
				if event.Session != nil {
					fmt.Printf("Session %s started.\n", event.Session.ID)
				}
			case "session_joined":
				if event.Session != nil {
					fmt.Printf("Joined session %s.\n", event.Session.ID)
				}
			case "reply":
				if event.Reply != nil {
					fmt.Printf("Agent: %s\n", event.Reply.Reply)
					if event.Reply.Done {
						fmt.Println("Session complete.")
						return nil
					}
					fmt.Print("> ")
				}
			case "session_stopped":
				fmt.Println("Session ended.")
				return nil
			case "error":
				fmt.Fprintf(os.Stderr, "Error: %s\n", event.Error)
				fmt.Print("> ")
			}
		}
	}
}

func chatOneShot(out *OutputFormatter, c *client.Client, sessionID, text string) error {
	if sessionID == "" {
		sess, err := c.CreateSession("text")
		if err != nil {
			return out.Error("Failed to create session", err)
		}
		sessionID = sess.ID
	}

	reply, err := c.SendMessage(sessionID, text)
	if err != nil {
		return out.Error("Failed to send message", err)
	}

	if out.jsonMode {
		return out.Print(reply)
	}

	fmt.Printf("Session: %s\n", sessionID)
	fmt.Printf("Agent: %s\n", reply.Reply)
	if reply.Decision != nil {
		fmt.Printf("Decision: %s", reply.Decision.Status)
		if reply.Decision.RefundID != "" {
			fmt.Printf(" (refund %s, $%.2f)", reply.Decision.RefundID, reply.Decision.Amount)
		}
		fmt.Println()
	}
	return nil
}
