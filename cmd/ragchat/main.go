// Command ragchat sends one question to the RAG backend and streams the
// answer to stdout. Logs go to stderr so the answer text stays clean.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jlx1999s/RAGAgent/internal/config"
	"github.com/jlx1999s/RAGAgent/internal/session"
	"github.com/jlx1999s/RAGAgent/internal/storage/sqlite"
	"github.com/jlx1999s/RAGAgent/internal/telemetry"
	"github.com/jlx1999s/RAGAgent/pkg/ragclient"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		modeFlag   = flag.String("mode", "", "chat mode: general or medical")
		sessionID  = flag.String("session", "", "session id (generated when empty)")
		fileID     = flag.String("file", "", "file id scoping general-mode retrieval")
		department = flag.String("department", "", "medical department filter")
		docType    = flag.String("doctype", "", "medical document type filter")
		disease    = flag.String("disease", "", "medical disease category filter")
		clear      = flag.Bool("clear", false, "clear the session history and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("ragchat", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	mode := ragclient.Mode(cfg.Chat.Mode)
	if *modeFlag != "" {
		mode = ragclient.Mode(*modeFlag)
	}
	sid := cfg.Chat.SessionID
	if *sessionID != "" {
		sid = *sessionID
	}
	if sid == "" {
		sid = uuid.New().String()
		logger.Info("generated session id", slog.String("session_id", sid))
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Backend.Timeout,
	}
	controller := ragclient.New(logger,
		ragclient.WithBaseURL(cfg.Backend.BaseURL),
		ragclient.WithHTTPClient(httpClient),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *clear {
		if err := controller.ClearSession(ctx, mode, sid); err != nil {
			log.Fatalf("Failed to clear session: %v", err)
		}
		fmt.Fprintf(os.Stderr, "session %s cleared\n", sid)
		return
	}

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: ragchat [flags] <question>")
		os.Exit(2)
	}

	fid := cfg.Chat.FileID
	if *fileID != "" {
		fid = *fileID
	}
	safety := cfg.Chat.EnableSafetyCheck
	opts := ragclient.SendOptions{
		Mode:              mode,
		SessionID:         sid,
		FileID:            fid,
		Department:        *department,
		DocumentType:      *docType,
		DiseaseCategory:   *disease,
		EnableSafetyCheck: &safety,
	}

	handle, err := controller.Send(ctx, question, opts, &printer{out: os.Stdout})
	if err != nil {
		log.Fatalf("Failed to send: %v", err)
	}

	res, err := handle.Wait(ctx)
	if err != nil {
		// Interrupted; tear the stream down and report what arrived so far.
		handle.Abort()
		res = handle.Result()
	}
	fmt.Fprintln(os.Stdout)
	printOutcome(res)

	if cfg.Storage.Type == "sqlite" {
		saveTranscript(cfg.Storage.SQLite.Path, res, logger)
	}

	if res.Phase == ragclient.PhaseError {
		os.Exit(1)
	}
}

// printer streams answer tokens to out as they arrive.
type printer struct {
	out *os.File
}

func (p *printer) OnToken(e ragclient.TokenEvent)     { fmt.Fprint(p.out, e.Text) }
func (p *printer) OnCitation(ragclient.CitationEvent) {}
func (p *printer) OnMetadata(ragclient.MetadataEvent) {}
func (p *printer) OnDone(ragclient.DoneEvent)         {}
func (p *printer) OnError(ragclient.ErrorEvent)       {}

func printOutcome(res *session.Result) {
	switch res.Phase {
	case ragclient.PhaseError:
		fmt.Fprintf(os.Stderr, "error: %s\n", res.ErrMessage)
	case ragclient.PhaseAborted:
		fmt.Fprintln(os.Stderr, "cancelled")
	}
	if len(res.Citations) > 0 {
		fmt.Fprintln(os.Stdout, "\n引用来源:")
		for _, c := range res.Citations {
			line := fmt.Sprintf("[%d] %s", c.DisplayIndex, citationLabel(c))
			fmt.Fprintln(os.Stdout, line)
		}
	}
}

func citationLabel(c session.DisplayCitation) string {
	parts := []string{}
	if c.Title != "" {
		parts = append(parts, c.Title)
	} else if c.FileID != "" {
		parts = append(parts, c.FileID)
	}
	if c.Source != "" {
		parts = append(parts, c.Source)
	}
	if c.Page != nil {
		parts = append(parts, fmt.Sprintf("p.%d", *c.Page))
	}
	if len(parts) == 0 {
		return c.CitationID
	}
	return strings.Join(parts, " · ")
}

func saveTranscript(path string, res *session.Result, logger *slog.Logger) {
	store, err := sqlite.New(path)
	if err != nil {
		logger.Error("failed to open transcript store", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	id, err := store.SaveResult(context.Background(), res)
	if err != nil {
		logger.Error("failed to save transcript", slog.String("error", err.Error()))
		return
	}
	logger.Info("transcript saved", slog.String("transcript_id", id))
}
