// devchat is a CLI for routing prompts to a chat backend and keeping a
// content-addressed log of every exchange.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/devchat/api"
	"github.com/xiaot623/devchat/assistant"
	"github.com/xiaot623/devchat/config"
	"github.com/xiaot623/devchat/domain"
	"github.com/xiaot623/devchat/openai"
	"github.com/xiaot623/devchat/policy"
	"github.com/xiaot623/devchat/prompt"
	"github.com/xiaot623/devchat/store"
	"github.com/xiaot623/devchat/workflow"
)

// stringList collects repeatable flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "prompt":
		runPrompt(cfg, os.Args[2:])
	case "log":
		runLog(cfg, os.Args[2:])
	case "topic":
		runTopic(cfg, os.Args[2:])
	case "models":
		runModels(cfg)
	case "serve":
		runServe(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: devchat <command> [options]

commands:
  prompt   route a prompt to the chat backend
  log      show recent prompts
  topic    list conversation topics
  models   list available backend models
  serve    run the HTTP facade`)
}

func newChat(cfg *config.Config, stream bool) *openai.Chat {
	client := openai.NewClient(cfg.APIBase, cfg.APIKey, cfg.RequestTimeout)
	return openai.NewChat(openai.Config{
		Model:  cfg.Model,
		Stream: stream,
	}, client, cfg.UserName, cfg.UserEmail)
}

func openStore(cfg *config.Config, chat *openai.Chat) *store.SQLiteStore {
	factory := func(model, userName, userEmail string) prompt.Prompt {
		return openai.NewPrompt(model, userName, userEmail, chat.Counter())
	}
	s, err := store.NewSQLiteStore(cfg.DBPath, factory)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func runPrompt(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	var (
		parent     = fs.String("p", "", "parent prompt hash to continue the conversation")
		references stringList
		instructs  stringList
		contexts   stringList
		model      = fs.String("m", "", "model to use for the prompt")
		auto       = fs.Bool("a", false, "run the workflow command named by a function call")
	)
	fs.Var(&references, "r", "previous prompt hash to include as a reference (repeatable)")
	fs.Var(&instructs, "i", "file to add to the prompt as instructions (repeatable)")
	fs.Var(&contexts, "c", "file to add to the prompt as context (repeatable)")
	fs.Parse(args)

	if *model != "" {
		cfg.Model = *model
	}

	request := strings.Join(fs.Args(), " ")
	if request == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read request from stdin: %v", err)
		}
		request = strings.TrimSpace(string(data))
	}
	if request == "" {
		log.Fatalf("No request given")
	}

	chat := newChat(cfg, cfg.Stream)
	st := openStore(cfg, chat)
	defer st.Close()

	var parents []string
	if *parent != "" {
		parents = []string{*parent}
	}

	a := assistant.New(chat, st)
	if cfg.TokenLimit > 0 {
		a.SetTokenLimit(domain.Budget(cfg.TokenLimit))
	}

	ctx := context.Background()
	if err := a.MakePrompt(ctx, request, readFiles(instructs), readFiles(contexts), parents, references); err != nil {
		log.Fatalf("Failed to make prompt: %v", err)
	}

	err := a.IterateResponses(ctx, func(fragment string) error {
		fmt.Print(fragment)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to get responses: %v", err)
	}
	fmt.Println()

	if *auto {
		runAuto(ctx, cfg, a.Prompt())
	}
}

// runAuto executes the workflow command named by a function-call response.
func runAuto(ctx context.Context, cfg *config.Config, p prompt.Prompt) {
	responses := p.Responses()
	if len(responses) == 0 || responses[0].FinishReason != domain.FinishFunctionCall {
		return
	}
	call := responses[0].FunctionCall
	if call == nil {
		return
	}

	commands, err := workflow.LoadDir(cfg.WorkflowDir)
	if err != nil {
		log.Fatalf("Failed to load workflow commands: %v", err)
	}
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	args := map[string]string{}
	if call.Arguments != "" {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
			log.Fatalf("Failed to parse function-call arguments: %v", err)
		}
		for name, value := range raw {
			args[name] = fmt.Sprintf("%v", value)
		}
	}

	runner := workflow.NewRunner(engine)
	if err := runner.RunFunctionCall(ctx, commands, call.Name, args, os.Stdout); err != nil {
		log.Fatalf("Failed to run workflow command: %v", err)
	}
}

func readFiles(paths []string) []string {
	var contents []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		contents = append(contents, string(data))
	}
	return contents
}

func runLog(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	count := fs.Int("n", 20, "number of prompts to show")
	fs.Parse(args)

	chat := newChat(cfg, false)
	st := openStore(cfg, chat)
	defer st.Close()

	shortlogs, err := st.SelectRecent(context.Background(), *count)
	if err != nil {
		log.Fatalf("Failed to read prompt log: %v", err)
	}

	printJSON(shortlogs)
}

func runTopic(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("topic", flag.ExitOnError)
	count := fs.Int("n", 20, "number of topics to show")
	fs.Parse(args)

	chat := newChat(cfg, false)
	st := openStore(cfg, chat)
	defer st.Close()

	topics, err := st.ListTopics(context.Background(), *count)
	if err != nil {
		log.Fatalf("Failed to list topics: %v", err)
	}

	printJSON(topics)
}

func runModels(cfg *config.Config) {
	client := openai.NewClient(cfg.APIBase, cfg.APIKey, cfg.RequestTimeout)
	models, err := client.ListModels(context.Background())
	if err != nil {
		log.Fatalf("Failed to list models: %v", err)
	}
	for _, model := range models {
		fmt.Println(model.ID)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render output: %v", err)
	}
	fmt.Println(string(data))
}

func runServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.HTTPAddr, "listen address")
	fs.Parse(args)

	// The HTTP facade always answers with complete responses.
	chat := newChat(cfg, false)
	st := openStore(cfg, chat)
	defer st.Close()

	h := api.NewHandler(chat, st)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	h.RegisterRoutes(e)

	go func() {
		if err := e.Start(*addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("devchat API started on %s", *addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}
}
