// Copyright (c) 2019, The Fonero developers
// See LICENSE for details.

// Command wsclient is an interactive demo client for mempoolhub's
// WebSocket protocol, adapted from the teacher's own
// pubsub/democlient: the same survey-prompt action loop (pick a set of
// fields to track/want, submit, print whatever comes back), but
// speaking this spec's richer per-field track-*/want protocol instead
// of the teacher's single-topic subscribe/unsubscribe protocol. The
// teacher's own pubsub/psclient helper (client.New/cl.Subscribe/
// cl.ReceiveMsg/client.DecodeMsg), which democlient builds on, is not
// present in the retrieval pack, so this talks to the raw
// golang.org/x/net/websocket connection directly.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blockwatch/mempoolhub/pubsub/types"
	"golang.org/x/net/websocket"
	survey "gopkg.in/AlecAivazis/survey.v1"
)

var trackFields = []string{
	"want-blocks", "want-mempool-blocks", "want-live-2h-chart", "want-stats", "want-tomahawk",
	"track-tx", "track-address", "track-asset", "track-mempool-block",
	"track-rbf", "track-rbf-summary", "track-donation", "track-bisq-market",
}

var wantClasses = map[string]bool{
	"want-blocks": true, "want-mempool-blocks": true, "want-live-2h-chart": true,
	"want-stats": true, "want-tomahawk": true,
}

func main() {
	url := "ws://127.0.0.1:7878/ws"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	ws, err := websocket.Dial(url, "", "/")
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer ws.Close()
	fmt.Printf("Connected to %s.\n", url)

	go receiveLoop(ws)

	for {
		var chosen []string
		prompt := &survey.MultiSelect{
			Message: "Fields to track/want (re-run to change selection, quit to exit):",
			Options: append(append([]string{}, trackFields...), "quit"),
		}
		if err := survey.AskOne(prompt, &chosen, nil); err != nil {
			log.Fatalf("%v", err)
		}

		frame := map[string]interface{}{}
		var wants []string
		quit := false
		for _, field := range chosen {
			if field == "quit" {
				quit = true
				continue
			}
			if wantClasses[field] {
				wants = append(wants, strings.TrimPrefix(field, "want-"))
				continue
			}
			frame[field] = promptValue(field)
		}
		if len(wants) > 0 {
			frame["action"] = "want"
			frame["data"] = wants
		}
		if quit {
			fmt.Println("Goodbye.")
			return
		}

		raw, err := json.Marshal(frame)
		if err != nil {
			log.Printf("encode request: %v", err)
			continue
		}
		if err := websocket.JSON.Send(ws, types.WebSocketMessage{Message: string(raw)}); err != nil {
			log.Printf("send request: %v", err)
			continue
		}
	}
}

// promptValue asks for the value to send for a track-* field; want-* fields
// never reach it, since main gathers them into one "want" action.
func promptValue(field string) interface{} {
	switch field {
	case "track-mempool-block":
		var raw string
		_ = survey.AskOne(&survey.Input{Message: "Mempool block index:", Default: "0"}, &raw, nil)
		idx, err := strconv.Atoi(raw)
		if err != nil {
			idx = 0
		}
		return idx
	case "track-rbf-summary":
		return true
	default:
		var value string
		_ = survey.AskOne(&survey.Input{Message: fmt.Sprintf("Value for %s:", field)}, &value, nil)
		return value
	}
}

func receiveLoop(ws *websocket.Conn) {
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			log.Printf("connection closed: %v", err)
			return
		}
		fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), msg)
	}
}
