package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/archofall1/ai-ap/internal/bootstrap"
	"github.com/archofall1/ai-ap/internal/models"
	"github.com/archofall1/ai-ap/internal/service/assistant"
	"github.com/archofall1/ai-ap/internal/storage"
	"github.com/fatih/color"
)

var (
	configPath = flag.String("config", os.Getenv("AIAP_CONFIG"), "Path to config.json")
	imageDir   = flag.String("image-dir", "./data/images", "Directory for generated images")
)

var (
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow     = color.New(color.FgYellow).SprintFunc()
	red        = color.New(color.FgRed).SprintFunc()
	faint      = color.New(color.Faint).SprintFunc()
	helpText   = "Commands: /new, /list, /switch <id>, /delete <id>, /clear, /image <path> <question>, /draw <prompt>, /exit"
	errNoInput = errors.New("usage: /image <path> <question>")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		cancel()
		os.Exit(0)
	}()

	app, err := bootstrap.New(ctx, *configPath)
	if bootstrap.IsMissingCredential(err) {
		fmt.Fprintln(os.Stderr, red(app.Credential.MissingMessage()))
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	conv := app.Conversation
	cursor := app.Config.BasicConfig.Cursor
	fmt.Println(boldGreen("AI chat"))
	fmt.Println(faint(helpText))
	fmt.Println()
	printHistory(conv.Snapshot())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/exit", "exit":
			return
		case "/help":
			fmt.Println(faint(helpText))
		case "/new":
			printHistory(conv.NewChat())
		case "/list":
			printSessions(conv.Sessions(ctx))
		case "/switch":
			snap, err := conv.SwitchTo(ctx, arg)
			if errors.Is(err, storage.ErrSessionNotFound) {
				fmt.Println(red("No such session: " + arg))
				continue
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			printHistory(snap)
		case "/delete":
			snap, err := conv.Delete(ctx, arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println(yellow("Deleted " + arg))
			printHistory(snap)
		case "/clear":
			snap, err := conv.ClearAll(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println(yellow("All chats cleared."))
			printHistory(snap)
		case "/image":
			in, err := imageInput(arg)
			if err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			send(ctx, conv, cursor, in)
		default:
			send(ctx, conv, cursor, assistant.Input{Text: line})
		}
	}
}

func imageInput(arg string) (assistant.Input, error) {
	path, question, _ := strings.Cut(arg, " ")
	if path == "" {
		return assistant.Input{}, errNoInput
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return assistant.Input{}, fmt.Errorf("read image: %w", err)
	}
	return assistant.Input{Text: strings.TrimSpace(question), Image: data}, nil
}

func send(ctx context.Context, conv *assistant.Conversation, cursor string, in assistant.Input) {
	fmt.Print(boldCyan("Assistant: "))
	printer := &streamPrinter{cursor: cursor}
	res, err := conv.Send(ctx, in, printer.update)
	fmt.Println()

	if res.ImagesDropped {
		fmt.Println(yellow("Out of energy: the image was ignored and the text model answered."))
	}
	if res.Warning != "" {
		fmt.Println(yellow(res.Warning))
	}
	if res.Reply != nil && printer.printed == "" {
		printReply(*res.Reply)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	fmt.Println()
}

// streamPrinter writes only the part of each frame not printed yet.
type streamPrinter struct {
	cursor  string
	printed string
}

func (p *streamPrinter) update(buffer string) {
	text := buffer
	if p.cursor != "" {
		text = strings.TrimSuffix(buffer, p.cursor)
	}
	if strings.HasPrefix(text, p.printed) {
		fmt.Print(text[len(p.printed):])
		p.printed = text
	}
}

func printReply(msg models.Message) {
	if msg.Content.Kind() != models.KindImage {
		fmt.Println(msg.Content.PlainText())
		return
	}
	data, mediaType := msg.Content.ImageData()
	path, err := saveImage(data, mediaType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println("[image saved to " + path + "]")
}

func saveImage(data []byte, mediaType string) (string, error) {
	if err := os.MkdirAll(*imageDir, 0o755); err != nil {
		return "", err
	}
	ext := ".png"
	switch mediaType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	f, err := os.CreateTemp(*imageDir, "draw-*"+ext)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}

func printHistory(snap assistant.Snapshot) {
	fmt.Println(faint(fmt.Sprintf("session %s, energy %d/%d", snap.ID, snap.Energy, snap.EnergyLimit)))
	for _, msg := range snap.Messages {
		switch msg.Role {
		case models.RoleUser:
			fmt.Print(boldGreen("You: "))
			if msg.Content.HasImage() {
				fmt.Print(faint("[image] "))
			}
			fmt.Println(msg.Content.PlainText())
		default:
			fmt.Print(boldCyan("Assistant: "))
			fmt.Println(msg.Content.TextOnly().PlainText())
		}
	}
	fmt.Println()
}

func printSessions(list []models.SessionSummary) {
	if len(list) == 0 {
		fmt.Println(faint("No saved chats."))
		return
	}
	for _, s := range list {
		fmt.Printf("%s  %s  %s\n", boldCyan(s.ID), s.Title, faint(fmt.Sprintf("%s, %d messages", s.Date, s.MessageCount)))
	}
}
