package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

const (
	defaultSearchLimit  = 5
	defaultHistoryLimit = 10
	snippetRunes        = 280
)

type askInput struct {
	Question string `json:"question" jsonschema:"Question to answer from the stored knowledge (at least 2 characters)"`
}

type evidenceRef struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

type askOutput struct {
	SessionID string        `json:"session_id"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Evidence  []evidenceRef `json:"evidence"`
	Warning   string        `json:"warning,omitempty" jsonschema:"Set when the answer could not be saved to history"`
}

type searchInput struct {
	Query string `json:"query" jsonschema:"Search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
}

type searchResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Score      float64  `json:"score"`
	Lexical    float64  `json:"lexical"`
	TagOverlap float64  `json:"tag_overlap"`
	Recency    float64  `json:"recency"`
}

type searchOutput struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

type addInput struct {
	Text string `json:"text" jsonschema:"Raw text to analyze and store, such as notes or a pasted AI conversation"`
}

type addOutput struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Status     string   `json:"status"`
	SourceType string   `json:"source_type"`
}

type historyInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum sessions to return (default: 10)"`
}

type historyEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type historyOutput struct {
	Sessions  []historyEntry `json:"sessions"`
	Questions []string       `json:"recent_questions"`
	Count     int            `json:"count"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "knowledge_ask",
		Description: "Answer a question from the captured knowledge base. Returns the answer and the documents used as evidence.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args askInput) (*mcp.CallToolResult, askOutput, error) {
		var out askOutput
		err := s.instrument(ctx, "knowledge_ask", func(ctx context.Context) error {
			session, err := s.ws.Ask(ctx, args.Question)
			if err != nil {
				return err
			}
			out = askOutput{
				SessionID: session.ID,
				Question:  session.Question,
				Answer:    s.scrub(session.Answer),
				Evidence:  make([]evidenceRef, 0, len(session.Evidence)),
				Warning:   s.ws.LastError(),
			}
			for _, ev := range session.Evidence {
				out.Evidence = append(out.Evidence, evidenceRef{
					ID:      ev.DocumentID,
					Title:   ev.Title,
					Snippet: s.scrub(ev.Snippet),
				})
			}
			return nil
		})
		if err != nil {
			return nil, askOutput{}, err
		}
		return textResult(out.Answer), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "knowledge_search",
		Description: "Rank captured documents against a query without generating an answer. Scores combine lexical overlap, tag overlap and recency.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
		var out searchOutput
		err := s.instrument(ctx, "knowledge_search", func(ctx context.Context) error {
			if strings.TrimSpace(args.Query) == "" {
				return fmt.Errorf("query is required")
			}
			limit := args.Limit
			if limit <= 0 {
				limit = defaultSearchLimit
			}
			ranked := s.ws.Retrieve(args.Query, limit)
			out = searchOutput{Query: args.Query, Results: make([]searchResult, 0, len(ranked))}
			for _, r := range ranked {
				out.Results = append(out.Results, searchResult{
					ID:         r.Document.ID,
					Title:      r.Document.Title,
					Summary:    s.scrub(r.Document.SummaryText),
					Tags:       r.Document.TopicTags,
					Score:      r.Score.Total,
					Lexical:    r.Score.Lexical,
					TagOverlap: r.Score.TagOverlap,
					Recency:    r.Score.Recency,
				})
			}
			out.Count = len(out.Results)
			return nil
		})
		if err != nil {
			return nil, searchOutput{}, err
		}
		return textResult(fmt.Sprintf("Found %d matching documents", out.Count)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "knowledge_add",
		Description: "Analyze raw text and add it to the knowledge base as a summarized, tagged document.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addInput) (*mcp.CallToolResult, addOutput, error) {
		var out addOutput
		err := s.instrument(ctx, "knowledge_add", func(ctx context.Context) error {
			doc, err := s.ws.AddDocument(ctx, args.Text)
			if err != nil {
				return err
			}
			out = addOutput{
				ID:         doc.ID,
				Title:      doc.Title,
				Summary:    s.scrub(doc.SummaryText),
				Tags:       doc.TopicTags,
				Status:     string(doc.Status),
				SourceType: string(doc.SourceType),
			}
			return nil
		})
		if err != nil {
			return nil, addOutput{}, err
		}
		return textResult(fmt.Sprintf("Added document %q", out.Title)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "knowledge_history",
		Description: "List recently answered questions, most recent first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args historyInput) (*mcp.CallToolResult, historyOutput, error) {
		var out historyOutput
		err := s.instrument(ctx, "knowledge_history", func(ctx context.Context) error {
			limit := args.Limit
			if limit <= 0 {
				limit = defaultHistoryLimit
			}
			out = historyOutput{
				Sessions:  historyEntries(s.ws.Sessions(), limit, s.scrub),
				Questions: s.ws.Questions(),
			}
			out.Count = len(out.Sessions)
			return nil
		})
		if err != nil {
			return nil, historyOutput{}, err
		}
		return textResult(fmt.Sprintf("%d answered questions", out.Count)), out, nil
	})
}

// instrument records metrics around fn.
func (s *Server) instrument(ctx context.Context, tool string, fn func(context.Context) error) error {
	done := s.metrics.begin(ctx, tool)
	err := fn(ctx)
	done(err)
	return err
}

func historyEntries(sessions []knowledge.QASession, limit int, scrub func(string) string) []historyEntry {
	if limit < len(sessions) {
		sessions = sessions[:limit]
	}
	out := make([]historyEntry, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, historyEntry{
			ID:        s.ID,
			Question:  s.Question,
			Answer:    truncateRunes(scrub(s.Answer), snippetRunes),
			CreatedAt: s.CreatedAt,
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
