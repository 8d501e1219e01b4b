// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestNewWorkflowRepository(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var pool *pgxpool.Pool

	repo := NewWorkflowRepository(pool, logger)
	if repo == nil {
		t.Fatal("expected workflow repository instance")
	}
	if repo.pool != pool {
		t.Fatal("expected pool reference to be preserved")
	}
	if repo.logger != logger {
		t.Fatal("expected logger reference to be preserved")
	}
}

func TestNewEventRepository(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var pool *pgxpool.Pool

	repo := NewEventRepository(pool, logger)
	if repo == nil {
		t.Fatal("expected event repository instance")
	}
	if repo.pool != pool {
		t.Fatal("expected pool reference to be preserved")
	}
	if repo.logger != logger {
		t.Fatal("expected logger reference to be preserved")
	}
}

func TestNewOutcomeRepositoryDefaultsLogger(t *testing.T) {
	repo := NewOutcomeRepository(nil, nil)
	if repo == nil {
		t.Fatal("expected outcome repository instance")
	}
	if repo.logger == nil {
		t.Fatal("expected default logger")
	}
}

func TestNewWeightsRepositoryDefaultsLogger(t *testing.T) {
	repo := NewWeightsRepository(nil, nil)
	if repo == nil {
		t.Fatal("expected weights repository instance")
	}
	if repo.logger == nil {
		t.Fatal("expected default logger")
	}
}
