package collector

import (
	"context"
	"errors"

	"github.com/aluiziolira/go-scrape-fuel/client"
	"github.com/aluiziolira/go-scrape-fuel/parser"
	"github.com/aluiziolira/go-scrape-fuel/pipeline"
	"github.com/aluiziolira/go-scrape-fuel/session"
)

// kindOf maps an error to its manifest taxonomy label.
func kindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, parser.ErrTokenNotFound):
		return "token_not_found"
	}

	var (
		bootstrapErr session.ErrBootstrap
		authErr      client.ErrAuth
		rateErr      client.ErrRateLimited
		transientErr client.ErrTransient
		fatalErr     client.ErrFatalRequest
		writeErr     pipeline.ErrWrite
	)
	switch {
	case errors.As(err, &bootstrapErr):
		return "bootstrap"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &transientErr):
		return "server_error"
	case errors.As(err, &fatalErr):
		return "request"
	case errors.As(err, &writeErr):
		return "write"
	default:
		return "other"
	}
}
