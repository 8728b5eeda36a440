package events

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	guard := newPostgresGuardWithQuerier(mock, time.Hour, WithPendingWindow(time.Minute))
	ctx := context.Background()
	stateRows := func(state string) *pgxmock.Rows { return pgxmock.NewRows([]string{"state"}).AddRow(state) }

	mock.ExpectQuery("INSERT INTO processed_messages").WithArgs("+15550001111", "m-1", float64(60)).WillReturnRows(stateRows(""))
	dup, err := guard.IsDuplicate(ctx, "+15550001111", "m-1")
	if err != nil || dup {
		t.Fatalf("expected first delivery to be new, got dup=%v err=%v", dup, err)
	}

	mock.ExpectQuery("INSERT INTO processed_messages").WithArgs("+15550001111", "m-1", float64(60)).WillReturnRows(stateRows("pending"))
	if _, err := guard.IsDuplicate(ctx, "+15550001111", "m-1"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight for an unconfirmed claim, got %v", err)
	}

	mock.ExpectExec("INSERT INTO processed_messages").WithArgs("+15550001111", "m-1", float64(3600)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := guard.Confirm(ctx, "+15550001111", "m-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	mock.ExpectQuery("INSERT INTO processed_messages").WithArgs("+15550001111", "m-1", float64(60)).WillReturnRows(stateRows("done"))
	dup, err = guard.IsDuplicate(ctx, "+15550001111", "m-1")
	if err != nil || !dup {
		t.Fatalf("expected redelivery to be duplicate, got dup=%v err=%v", dup, err)
	}

	mock.ExpectQuery("INSERT INTO processed_messages").WithArgs("+15550001111", "m-3", float64(60)).WillReturnError(pgx.ErrNoRows)
	if _, err := guard.IsDuplicate(ctx, "+15550001111", "m-3"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight when the row vanished, got %v", err)
	}

	mock.ExpectExec("DELETE FROM processed_messages").WithArgs("+15550001111", "m-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := guard.Forget(ctx, "+15550001111", "m-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}

	mock.ExpectQuery("INSERT INTO processed_messages").WithArgs("+15550001111", "m-2", float64(60)).WillReturnError(errors.New("conn reset"))
	if _, err := guard.IsDuplicate(ctx, "+15550001111", "m-2"); err == nil || errors.Is(err, ErrInFlight) {
		t.Fatalf("expected a store error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
