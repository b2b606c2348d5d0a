// Command chat is a terminal client for the chat subsystem: it loads the
// persisted session, preloads state over REST, connects the socket and offers
// a minimal send/read loop. Mainly a development harness for the chat core.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"chat-core/internal/config"
	"chat-core/internal/outbox"
	"chat-core/internal/rest"
	"chat-core/internal/session"
	"chat-core/internal/sidebar"
	"chat-core/internal/store"
	"chat-core/internal/transport"
)

func main() {
	cfg := config.LoadClient()

	sess, err := session.Load(cfg.SessionPath)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			log.Fatalf("no session at %s; sign in first", cfg.SessionPath)
		}
		log.Fatalf("failed to load session: %v", err)
	}

	manager := transport.NewManager(cfg.SocketURL, outbox.NewFileStore(cfg.OutboxPath), transport.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Reconnect:        cfg.Reconnect,
	})
	defer manager.Close()

	restClient := rest.NewClient(cfg.APIBaseURL, sess.Token)
	chat := store.New(sess.UserID, restClient, manager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat.Preload(ctx)
	manager.Connect(sess.Token)
	go chat.Run(ctx)

	fmt.Printf("signed in as %s (%s)\n", sess.Name, sess.UserID)
	fmt.Println("commands: /peers, /open <userId>, /quit; anything else is sent to the open peer")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/peers":
			printPeers(chat)
		case strings.HasPrefix(line, "/open "):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			chat.SelectActivePeer(peer)
			for _, m := range chat.ConversationWith(peer) {
				fmt.Printf("  %s: %s\n", m.Sender, m.Text)
			}
		default:
			peer := chat.ActivePeer()
			if peer == "" {
				fmt.Println("open a conversation first: /open <userId>")
				continue
			}
			chat.SendText(peer, line)
		}
	}
}

func printPeers(chat *store.Store) {
	users := sidebar.Order(chat.Users(), chat.LastMessages(), chat.UnreadPeers())
	for _, u := range users {
		marker := " "
		if chat.IsUnread(u.ID) {
			marker = "*"
		}
		status := "offline"
		if chat.IsOnline(u.ID) {
			status = "online"
		}
		fmt.Printf("%s %s (%s) %s\n", marker, u.Name, u.ID, status)
	}
}
