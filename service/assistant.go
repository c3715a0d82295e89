package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"vision-assist/archive"
	"vision-assist/citation"
	"vision-assist/gemini"
	"vision-assist/service/query"
)

// ErrEmptyQuery is returned for a query that is empty after trimming. No upstream call is
// made for it.
var ErrEmptyQuery = errors.New("no query provided")

// Asker is the upstream call, satisfied by *gemini.Client.
type Asker interface {
	Ask(ctx context.Context, query string) gemini.Result
}

// Archive stores answered exchanges, satisfied by *archive.Store.
type Archive interface {
	Record(ctx context.Context, exchange archive.Exchange) error
	Recent(ctx context.Context, size int) ([]archive.Exchange, error)
}

// Assistant answers single queries for the HTTP and lambda entry points.
type Assistant struct {
	asker   Asker
	archive Archive
	logger  *slog.Logger
	now     func() time.Time
}

// NewAssistant wires the upstream caller with an optional archive (nil disables it).
func NewAssistant(asker Asker, exchangeArchive Archive, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		asker:   asker,
		archive: exchangeArchive,
		logger:  logger,
		now:     time.Now,
	}
}

// Answer validates the query, asks upstream and shapes the reply. The only error is
// ErrEmptyQuery; upstream failures are reported in the response text and outcome.
func (a *Assistant) Answer(ctx context.Context, rawQuery string) (*query.ResponseBody, error) {
	userQuery := strings.TrimSpace(rawQuery)
	if userQuery == "" {
		return nil, ErrEmptyQuery
	}

	result := a.asker.Ask(ctx, userQuery)
	response := &query.ResponseBody{
		Query:     userQuery,
		Response:  result.Display(),
		Citations: citation.Dedupe(result.Sources),
		Outcome:   result.Outcome.String(),
	}

	a.logger.InfoContext(ctx, "query answered",
		slog.String("outcome", response.Outcome),
		slog.Int("attempts", result.Attempts),
		slog.Int("citations", len(response.Citations)))

	if a.archive != nil {
		err := a.archive.Record(ctx, archive.Exchange{
			Query:     response.Query,
			Response:  response.Response,
			Outcome:   response.Outcome,
			Citations: response.Citations,
			AskedAt:   a.now().UTC(),
		})
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to archive exchange", slog.Any("error", err))
		}
	}

	return response, nil
}

// HistoryEnabled reports whether an archive is attached.
func (a *Assistant) HistoryEnabled() bool {
	return a.archive != nil
}

// History returns up to size archived exchanges, newest first.
func (a *Assistant) History(ctx context.Context, size int) ([]archive.Exchange, error) {
	if a.archive == nil {
		return nil, errors.New("history is not enabled")
	}
	return a.archive.Recent(ctx, size)
}
