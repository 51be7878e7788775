package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nilltadios/gemini-qa-webapp/internal/attachments"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
	"github.com/nilltadios/gemini-qa-webapp/internal/service"
)

const cleanupTimeout = 30 * time.Second

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Answer one question. Without arguments (or with "-") the question is read
from stdin. The answer goes to stdout, progress and statistics to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if question == "" || question == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			question = string(data)
		}

		opts := askOptions{Question: question}
		opts.Files, _ = cmd.Flags().GetStringSlice("file")
		noSearch, _ := cmd.Flags().GetBool("no-search")
		opts.Search = !noSearch
		opts.Code, _ = cmd.Flags().GetBool("code")
		noAgents, _ := cmd.Flags().GetBool("no-agents")
		opts.Agents = !noAgents
		opts.MaxRefinements, _ = cmd.Flags().GetInt("max")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := newProvider(ctx, cfg, logger)
		if err != nil {
			return err
		}

		// в CLI метрики не экспортируются
		uploads := service.NewUploadRegistry(p.files, logger, nil)
		a := &asker{
			assistant: newAssistant(cfg, p, nil, logger, nil),
			loader: attachments.NewLoader(attachments.Config{
				Extensions: cfg.Attachments.Extensions,
				MaxBytes:   cfg.Attachments.MaxBytes,
			}, uploads, logger),
			uploads:     uploads,
			codeBlocked: cfg.CodeExecutionBlocked(),
			out:         cmd.OutOrStdout(),
			errOut:      cmd.ErrOrStderr(),
		}
		return a.run(ctx, opts)
	},
}

func init() {
	askCmd.Flags().StringSliceP("file", "f", nil, "Attach a file (repeatable)")
	askCmd.Flags().Bool("no-search", false, "Disable web search")
	askCmd.Flags().Bool("code", false, "Allow code execution")
	askCmd.Flags().Bool("no-agents", false, "Skip quality criteria and refinement")
	askCmd.Flags().IntP("max", "n", 0, "Max quality iterations (1-5, 0 = configured default)")
	askCmd.Flags().BoolP("quiet", "q", false, "Do not print progress")
	rootCmd.AddCommand(askCmd)
}

type askOptions struct {
	Question       string
	Files          []string
	Search         bool
	Code           bool
	Agents         bool
	MaxRefinements int
	Quiet          bool
}

type answerer interface {
	Answer(ctx context.Context, req *domain.QARequest, sink progress.Sink) (*domain.QAResult, error)
}

type asker struct {
	assistant   answerer
	loader      *attachments.Loader
	uploads     *service.UploadRegistry
	codeBlocked bool
	out         io.Writer
	errOut      io.Writer
}

func (a *asker) run(ctx context.Context, opts askOptions) error {
	sink := progress.Nop()
	if !opts.Quiet {
		sink = consoleSink(a.errOut)
	}

	// загруженные файлы удаляем даже при отмене
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		a.uploads.Release(cleanupCtx, sink)
	}()

	atts, err := a.loadFiles(ctx, opts.Files, sink)
	if err != nil {
		return err
	}

	req := &domain.QARequest{
		Prompt:      opts.Question,
		Attachments: atts,
		Capabilities: domain.ToolCapabilities{
			Search:               opts.Search,
			CodeExecution:        opts.Code,
			CodeExecutionBlocked: a.codeBlocked,
		},
		UseQualityAgents: opts.Agents,
		MaxRefinements:   opts.MaxRefinements,
	}

	res, err := a.assistant.Answer(ctx, req, sink)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	fmt.Fprintln(a.out, res.Text)
	printSummary(a.errOut, res)
	return nil
}

func (a *asker) loadFiles(ctx context.Context, paths []string, sink progress.Sink) ([]domain.Attachment, error) {
	atts := make([]domain.Attachment, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", path, err)
		}
		if info.Size() > a.loader.MaxBytes() {
			return nil, fmt.Errorf("attach %s: %w", path, attachments.ErrTooLarge)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", path, err)
		}

		att, err := a.loader.Load(ctx, filepath.Base(path), data, sink)
		if err != nil {
			if errors.Is(err, domain.ErrUnsupportedFile) {
				return nil, fmt.Errorf("attach %s: %w (supported: %s)", path, err, strings.Join(a.loader.Extensions(), ", "))
			}
			return nil, fmt.Errorf("attach %s: %w", path, err)
		}
		atts = append(atts, att)
	}
	return atts, nil
}

// consoleSink печатает прогресс с цветом по первому символу сообщения.
// Emit может прийти из нескольких горутин (параллельное удаление файлов).
func consoleSink(w io.Writer) progress.Sink {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	var mu sync.Mutex
	return progress.Func(func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasPrefix(msg, "✅"):
			fmt.Fprintln(w, green(msg))
		case strings.HasPrefix(msg, "⚠️"):
			fmt.Fprintln(w, yellow(msg))
		case strings.HasPrefix(msg, "❌"):
			fmt.Fprintln(w, red(msg))
		default:
			fmt.Fprintln(w, faint(msg))
		}
	})
}

func printSummary(w io.Writer, res *domain.QAResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	status := res.Status.String()
	switch res.Status {
	case domain.StatusPassed, domain.StatusQualityDisabled:
		status = color.GreenString(status)
	case domain.StatusBoundReached:
		status = yellow(status)
	default:
		status = color.RedString(status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d words · %d sentences · %d characters\n", cyan("Stats:"), res.Words, res.Sentences, res.Characters)
	fmt.Fprintf(w, "%s %s (iterations: %d, grader: %d, refiner: %d)\n",
		cyan("Status:"), status, res.Iterations, res.GraderCalls, res.RefinerCalls)
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "%s %s\n", yellow("Warning:"), warn)
	}
}
