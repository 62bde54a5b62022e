package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apihttp "github.com/fyrsmithlabs/copyvara/internal/http"
	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check copyvarad health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.HealthResponse
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, "/health", nil, &resp)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				fmt.Fprintf(w, "Server Status: %s\n", resp.Status)
				fmt.Fprintf(w, "Server URL: %s\n", opts.serverURL)
			})
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace counts and the last error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.StatusResponse
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, &resp)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				fmt.Fprintf(w, "Status:        %s\n", resp.Status)
				if resp.Version != "" {
					fmt.Fprintf(w, "Version:       %s\n", resp.Version)
				}
				fmt.Fprintf(w, "Evidence mode: %s\n", resp.EvidenceMode)
				fmt.Fprintf(w, "Documents:     %d (%d processing, %d failed)\n",
					resp.Counts.Documents, resp.Counts.Processing, resp.Counts.Failed)
				fmt.Fprintf(w, "Memory items:  %d\n", resp.Counts.MemoryItems)
				fmt.Fprintf(w, "Sessions:      %d\n", resp.Counts.Sessions)
				if resp.LastError != "" {
					fmt.Fprintf(w, "Last error:    %s\n", resp.LastError)
				}
			})
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add [file|-]",
		Short: "Capture text from a file or stdin",
		Long: `Capture text from a file or stdin. The server analyzes it into a titled,
summarized and tagged document.

Examples:
  copyvara add notes.md
  pbpaste | copyvara add -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				content []byte
				err     error
			)
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				content, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[0], err)
				}
			}
			if strings.TrimSpace(string(content)) == "" {
				return fmt.Errorf("no content to add")
			}

			var doc knowledge.Document
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/documents",
				apihttp.AddDocumentRequest{RawText: string(content)}, &doc)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				fmt.Fprintf(w, "Added %q (%s)\n", doc.Title, doc.ID)
				if doc.SummaryText != "" {
					fmt.Fprintf(w, "\n%s\n", doc.SummaryText)
				}
				if len(doc.TopicTags) > 0 {
					fmt.Fprintf(w, "\nTags: %s\n", strings.Join(doc.TopicTags, ", "))
				}
			})
		},
	}
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the captured knowledge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.AskResponse
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/ask",
				apihttp.AskRequest{Question: strings.Join(args, " ")}, &resp)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n", resp.Session.Answer)
				if len(resp.Session.Evidence) > 0 {
					fmt.Fprintf(w, "\nEvidence:\n")
					for _, ev := range resp.Session.Evidence {
						fmt.Fprintf(w, "  - %s (%s)\n", ev.Title, ev.DocumentID)
					}
				}
				if resp.LastError != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "\n[copyvara] warning: %s\n", resp.LastError)
				}
			})
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Rank documents for a question without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.RetrieveResponse
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/retrieve",
				apihttp.RetrieveRequest{Question: strings.Join(args, " "), Limit: limit}, &resp)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				if len(resp.Results) == 0 {
					fmt.Fprintln(w, "No documents.")
					return
				}
				for i, r := range resp.Results {
					fmt.Fprintf(w, "%d. %s (%s)\n", i+1, r.Document.Title, r.Document.ID)
					fmt.Fprintf(w, "   score %.3f  lexical %.2f  tags %.2f  recency %.2f\n",
						r.Score.Total, r.Score.Lexical, r.Score.TagOverlap, r.Score.Recency)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (server default when 0)")
	return cmd
}

func newDocsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List captured documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.DocumentsResponse
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/documents", nil, &resp)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				if len(resp.Documents) == 0 {
					fmt.Fprintln(w, "No documents.")
					return
				}
				for _, doc := range resp.Documents {
					fmt.Fprintf(w, "%s  %-10s  %s  [%s]\n", formatTime(doc.CreatedAt), doc.Status,
						doc.Title, strings.Join(doc.TopicTags, ", "))
				}
			})
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List answered questions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/sessions"
			if limit > 0 {
				path += fmt.Sprintf("?limit=%d", limit)
			}
			var resp apihttp.SessionsResponse
			raw, err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &resp)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, raw, func(w io.Writer) {
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(w, "No questions yet.")
					return
				}
				for _, s := range resp.Sessions {
					fmt.Fprintf(w, "%s  Q: %s\n", formatTime(s.CreatedAt), s.Question)
					fmt.Fprintf(w, "                  A: %s\n", firstLine(s.Answer))
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum sessions (all when 0)")
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every document and answered question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all documents and history; rerun with --yes to confirm")
			}
			if _, err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/workspace/reset", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Workspace reset.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

// render prints raw JSON with --json, otherwise the human view.
func render(w io.Writer, opts *options, raw []byte, human func(io.Writer)) error {
	if opts.jsonOut {
		_, err := fmt.Fprintln(w, strings.TrimSpace(string(raw)))
		return err
	}
	human(w)
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
