// gridlive-chat - command line client for the GridLive chat service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gridlive/chatd/clients/go/gridlive"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("GRIDLIVE_URL")
	client := gridlive.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "rooms":
		resp, err := client.ListRooms(ctx)
		exitOnError(err)
		for _, room := range resp.Rooms {
			fmt.Printf("  %s  %s (%d msgs)\n", room.ID, room.Name, room.MessageCount)
		}

	case "read":
		room := resolveGlobalRoom(ctx, client)
		resp, err := client.GetMessages(ctx, room.ID)
		exitOnError(err)
		for _, msg := range resp.Messages {
			printMessage(msg)
		}

	case "post":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: gridlive-chat post <username> <message>")
			os.Exit(1)
		}
		room := resolveGlobalRoom(ctx, client)
		msg, err := client.PostMessage(ctx, room.ID, gridlive.PostMessageRequest{
			AuthorID:   os.Args[2],
			AuthorName: os.Args[2],
			Body:       os.Args[3],
		})
		exitOnError(err)
		fmt.Printf("Posted: %s\n", msg.ID)

	case "watch":
		watch(ctx, client)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// resolveGlobalRoom provisions the global room in a single round trip.
func resolveGlobalRoom(ctx context.Context, client *gridlive.Client) *gridlive.Room {
	room, err := client.EnsureRoom(ctx, gridlive.CreateRoomRequest{
		Name:        gridlive.GlobalRoomName,
		Description: "Main chat room for all F1 fans",
		Visibility:  "public",
		Creator:     "system",
	})
	exitOnError(err)
	return room
}

// watch tails the global room until interrupted.
func watch(ctx context.Context, client *gridlive.Client) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	room := resolveGlobalRoom(ctx, client)
	fmt.Printf("Watching %q (poll every %s, Ctrl-C to stop)\n", room.Name, gridlive.DefaultPollInterval)

	poller := gridlive.NewPoller(client, room.ID, gridlive.PollerConfig{
		Logger: logger,
		OnNew: func(newMessages []gridlive.Message) {
			for _, msg := range newMessages {
				printMessage(msg)
			}
		},
		OnReset: func() {
			fmt.Println("-- room cleared --")
		},
	})
	poller.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	poller.Stop()
}

func printMessage(msg gridlive.Message) {
	ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, msg.AuthorName, msg.Body)
}

func usage() {
	fmt.Println(`gridlive-chat - GridLive chat client

Usage: gridlive-chat <command> [options]

Commands:
  rooms                    List rooms
  read                     Print the global room's messages
  post <username> <msg>    Post a message to the global room
  watch                    Tail the global room (polls every 2s)

Environment:
  GRIDLIVE_URL   Server URL (default: http://localhost:8080)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
