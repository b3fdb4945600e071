package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/substream/pkg/fuel"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/worker"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WatchRequest is the body of POST /v1/watches.
type WatchRequest struct {
	// Transaction is the hex encoded transaction, with or without 0x.
	Transaction string `json:"transaction"`
}

// WatchListResponse is the body of GET /v1/watches.
type WatchListResponse struct {
	Count   int               `json:"count"`
	Watches []*storage.Record `json:"watches"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListWatches returns every recorded watch, most recent first.
func (s *Server) handleListWatches(c *fiber.Ctx) error {
	records, err := s.storer.List(c.UserContext())
	if err != nil {
		s.logger.Error("listing watches", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list watches"})
	}

	if records == nil {
		records = []*storage.Record{}
	}

	return c.JSON(WatchListResponse{
		Count:   len(records),
		Watches: records,
	})
}

// handleGetWatch returns a single recorded watch by its ID.
func (s *Server) handleGetWatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid watch id"})
	}

	record, err := s.storer.Get(c.UserContext(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "watch not found"})
		}
		s.logger.Error("getting watch", "id", id.String(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get watch"})
	}

	return c.JSON(record)
}

// handleCreateWatch submits a transaction, waits for its terminal status and
// records the result.
//
// Success and failure statuses answer 201 with the record. A watch that ends
// without a status answers 504 on timeout, 503 when the server is shutting
// down and 502 otherwise, still with the record.
func (s *Server) handleCreateWatch(c *fiber.Ctx) error {
	if s.awaiter == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "transaction submission is disabled"})
	}

	var req WatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	tx, err := fuel.NormalizeTransaction(req.Transaction)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	ctx, cancel := context.WithCancel(c.UserContext())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if s.config.WatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.WatchTimeout)
		defer cancel()
	}

	started := time.Now().UTC()
	outcome, err := s.awaiter.AwaitTransactionStatus(ctx, tx)
	record := worker.NewRecord(worker.Result{
		URL:         s.awaiter.URL(),
		Transaction: tx,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		Outcome:     outcome,
		Err:         err,
	})

	s.record(c.UserContext(), record)

	switch {
	case record.Result != storage.ResultError:
		return c.Status(fiber.StatusCreated).JSON(record)
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(record)
	case s.ctx.Err() != nil:
		return c.Status(fiber.StatusServiceUnavailable).JSON(record)
	default:
		return c.Status(fiber.StatusBadGateway).JSON(record)
	}
}

func (s *Server) record(ctx context.Context, record *storage.Record) {
	if s.recorder != nil {
		if !s.recorder.Enqueue(worker.Job{Record: record}) {
			s.logger.Warn("watch not recorded", "id", record.ID.String())
		}
		return
	}

	if _, err := s.storer.Put(ctx, record); err != nil {
		s.logger.Error("storing watch", "id", record.ID.String(), "error", err)
	}
}
