package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/substream/pkg/fuel"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/worker"
)

const defaultListLimit = 20

var (
	listWatchesToolName    = "list_watches"
	listWatchesDescription = "List recorded transaction watches, most recently completed first."

	getWatchToolName    = "get_watch"
	getWatchDescription = "Get one recorded transaction watch by its id."

	awaitToolName    = "await_transaction_status"
	awaitDescription = "Submit a hex encoded transaction, wait for its terminal status and record the result."
)

// Watch is the tool view of a recorded watch.
type Watch struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Transaction string   `json:"transaction"`
	Result      string   `json:"result"`
	Status      string   `json:"status,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Observed    []string `json:"observed,omitempty"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at"`
	DurationMS  int64    `json:"duration_ms"`
}

// ListWatchesInput represents the input arguments for the list_watches tool.
type ListWatchesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of watches to return (default: 20)"`
}

// ListWatchesOutput represents the output of the list_watches tool.
type ListWatchesOutput struct {
	Count   int     `json:"count"`
	Watches []Watch `json:"watches"`
}

// GetWatchInput represents the input arguments for the get_watch tool.
type GetWatchInput struct {
	ID string `json:"id" jsonschema:"the watch id"`
}

// AwaitInput represents the input arguments for the await_transaction_status tool.
type AwaitInput struct {
	Transaction string `json:"transaction" jsonschema:"the hex encoded transaction, with or without 0x"`
}

func (s *Server) handleListWatches(ctx context.Context, _ *mcp.CallToolRequest, input ListWatchesInput) (*mcp.CallToolResult, ListWatchesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	records, err := s.config.Driver.List(ctx)
	if err != nil {
		s.logger.Error("listing watches", "error", err)
		return toolError("Failed to list watches: %v", err), ListWatchesOutput{Watches: []Watch{}}, nil
	}
	if len(records) > limit {
		records = records[:limit]
	}

	output := ListWatchesOutput{
		Count:   len(records),
		Watches: make([]Watch, 0, len(records)),
	}
	for _, rec := range records {
		output.Watches = append(output.Watches, newWatch(rec))
	}

	return result(output, false)
}

func (s *Server) handleGetWatch(ctx context.Context, _ *mcp.CallToolRequest, input GetWatchInput) (*mcp.CallToolResult, Watch, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return toolError("Invalid watch id %q", input.ID), Watch{}, nil
	}

	rec, err := s.config.Driver.Get(ctx, id)
	if err != nil {
		return toolError("Failed to get watch: %v", err), Watch{}, nil
	}

	return result(newWatch(rec), false)
}

func (s *Server) handleAwait(ctx context.Context, _ *mcp.CallToolRequest, input AwaitInput) (*mcp.CallToolResult, Watch, error) {
	tx, err := fuel.NormalizeTransaction(input.Transaction)
	if err != nil {
		return toolError("%v", err), Watch{}, nil
	}

	if s.config.WatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.WatchTimeout)
		defer cancel()
	}

	s.logger.Debug("MCP await request", "transaction", tx)

	started := time.Now().UTC()
	outcome, err := s.config.Awaiter.AwaitTransactionStatus(ctx, tx)
	rec := worker.NewRecord(worker.Result{
		URL:         s.config.Awaiter.URL(),
		Transaction: tx,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		Outcome:     outcome,
		Err:         err,
	})

	s.record(context.WithoutCancel(ctx), rec)

	return result(newWatch(rec), rec.Result == storage.ResultError)
}

func (s *Server) record(ctx context.Context, rec *storage.Record) {
	if s.config.Recorder != nil {
		if !s.config.Recorder.Enqueue(worker.Job{Record: rec}) {
			s.logger.Warn("watch not recorded", "id", rec.ID.String())
		}
		return
	}

	if _, err := s.config.Driver.Put(ctx, rec); err != nil {
		s.logger.Error("storing watch", "id", rec.ID.String(), "error", err)
	}
}

func newWatch(rec *storage.Record) Watch {
	return Watch{
		ID:          rec.ID.String(),
		URL:         rec.URL,
		Transaction: rec.Transaction,
		Result:      rec.Result,
		Status:      rec.Status,
		Reason:      rec.Reason,
		Observed:    rec.Observed,
		StartedAt:   rec.StartedAt.Format(time.RFC3339Nano),
		CompletedAt: rec.CompletedAt.Format(time.RFC3339Nano),
		DurationMS:  rec.Duration().Milliseconds(),
	}
}

// result returns out as structured content and, for older clients, as
// serialized JSON text.
func result[T any](out T, isError bool) (*mcp.CallToolResult, T, error) {
	b, err := json.Marshal(out)
	if err != nil {
		var zero T
		return toolError("Failed to serialize result: %v", err), zero, nil
	}

	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, out, nil
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}
