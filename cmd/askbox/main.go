// Command askbox is a console front-end for the input widget: typed lines
// become the question, /attach feeds a file through the classification and
// ingestion pipeline, and Enter submits the composed message, printed here
// in its wire shape.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/askbox/askbox/pkg/compose"
	"github.com/askbox/askbox/pkg/config"
	"github.com/askbox/askbox/pkg/extract"
	"github.com/askbox/askbox/pkg/logger"
	"github.com/askbox/askbox/pkg/media"
	"github.com/askbox/askbox/pkg/widget"
)

type consoleNotifier struct{}

func (consoleNotifier) Alert(message string) {
	fmt.Printf("!! %s\n", message)
}

func main() {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	w := widget.New(widget.Options{
		OnSend:         printMessage,
		Disabled:       cfg.Disabled,
		Placeholder:    cfg.Placeholder,
		ClearOnSend:    cfg.ClearOnSend,
		ConversationID: cfg.ConversationID,
		Attachments:    cfg.Attachments,
		ImageMaxWidth:  cfg.ImageMaxWidth,
		ImageMaxHeight: cfg.ImageMaxHeight,
		PreviewLimit:   cfg.PreviewLimit,
		Extractor:      extract.NewClient(cfg.ExtractorURL),
		Notifier:       consoleNotifier{},
	})

	rl, err := readline.NewEx(&readline.Config{Prompt: "> "})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("%s  (/attach <path>, /remove, /show, /quit)\n", cfg.Placeholder)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "/quit":
			return
		case line == "/remove":
			w.RemoveAttachment()
			fmt.Println("attachment removed")
		case line == "/show":
			show(w)
		case strings.HasPrefix(line, "/attach "):
			attach(w, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
		default:
			w.SetText(line)
			w.HandleKey(widget.Key{Name: widget.CommitKey})
			if w.SendDisabled() && strings.TrimSpace(line) == "" {
				fmt.Println("nothing to send")
			}
		}
	}
}

func attach(w *widget.Widget, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("!! %v\n", err)
		return
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	file := media.File{Name: filepath.Base(path), Reader: f}
	if err := w.Attach(ctx, file); err != nil {
		fmt.Printf("!! attach failed: %v\n", err)
		return
	}
	show(w)
}

func show(w *widget.Widget) {
	switch att := w.Attachment().(type) {
	case media.ImageAttachment:
		fmt.Printf("attached image (%d encoded bytes)\n", len(att.EncodedData))
	case media.DocumentAttachment:
		fmt.Printf("attached document %s (upload %s)\n", att.Filename, att.UploadID)
		if att.PreviewText != "" {
			fmt.Printf("  %s\n", att.PreviewText)
		}
	default:
		fmt.Println("no attachment")
	}
}

func printMessage(msg compose.Message, conversationID string) {
	payload, err := json.Marshal(msg)
	if err != nil {
		fmt.Printf("!! marshal: %v\n", err)
		return
	}
	if conversationID != "" {
		fmt.Printf("-> [%s] %s\n", conversationID, payload)
		return
	}
	fmt.Printf("-> %s\n", payload)
}
