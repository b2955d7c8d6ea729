package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/models"
	"alpha_gateway/services/pricestore"
)

type stubSource struct {
	series *models.DailySeries
	err    error
	calls  int
}

func (s *stubSource) DailySeries(ctx context.Context, symbol string) (*models.DailySeries, error) {
	s.calls++
	return s.series, s.err
}

func newStore(t *testing.T) *pricestore.SQLiteStore {
	t.Helper()
	s, err := pricestore.OpenSQLite(filepath.Join(t.TempDir(), "stocks.db"), applog.NewSilent())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var stored = []models.DailyBar{
	{Date: "2024-01-02", Close: 10},
	{Date: "2024-01-03", Close: 11},
	{Date: "2024-01-01", Close: 9},
}

func TestDaily_UpstreamSuccess(t *testing.T) {
	src := &stubSource{series: models.NewDailySeries("IBM", []models.DailyBar{{Date: "2024-01-01", Close: 1}}, "")}
	c := NewChain(src, newStore(t), applog.NewSilent())

	s, err := c.Daily(context.Background(), "ibm")
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if s.Note != "" || s.Count != 1 {
		t.Errorf("unexpected series %+v", s)
	}
}

func TestDaily_RecoverableFallsBackToLocal(t *testing.T) {
	for _, upstreamErr := range []error{
		apperror.NewQuota("limit"),
		apperror.NewTimeout(errors.New("slow")),
		apperror.NewUnreachable(errors.New("refused")),
	} {
		store := newStore(t)
		store.Upsert(context.Background(), "IBM", stored)
		c := NewChain(&stubSource{err: upstreamErr}, store, applog.NewSilent())

		s, err := c.Daily(context.Background(), "IBM")
		if err != nil {
			t.Fatalf("%v: Daily: %v", upstreamErr, err)
		}
		if s.Note != models.NoteLocalFallback {
			t.Errorf("note = %q", s.Note)
		}
		if s.Rows[0].Date != "2024-01-01" || s.Rows[2].Date != "2024-01-03" {
			t.Errorf("local rows must be ascending: %+v", s.Rows)
		}
	}
}

func TestDaily_EmptyLocalReturnsUpstreamError(t *testing.T) {
	c := NewChain(&stubSource{err: apperror.NewQuota("limit")}, newStore(t), applog.NewSilent())
	_, err := c.Daily(context.Background(), "IBM")
	if apperror.KindOf(err) != apperror.QuotaExceeded {
		t.Fatalf("expected original quota error, got %v", err)
	}
}

func TestDaily_NonRecoverablePropagates(t *testing.T) {
	store := newStore(t)
	store.Upsert(context.Background(), "IBM", stored)
	c := NewChain(&stubSource{err: apperror.NewUpstreamHTTP(500, "boom")}, store, applog.NewSilent())

	_, err := c.Daily(context.Background(), "IBM")
	if apperror.KindOf(err) != apperror.UpstreamHTTP {
		t.Fatalf("expected upstream http error, got %v", err)
	}
}

func TestDaily_EmptyUpstreamNeverSucceedsSilently(t *testing.T) {
	c := NewChain(&stubSource{series: models.NewDailySeries("IBM", nil, "")}, newStore(t), applog.NewSilent())
	_, err := c.Daily(context.Background(), "IBM")
	if apperror.KindOf(err) != apperror.NoHistory {
		t.Fatalf("expected NoHistory, got %v", err)
	}
}

func TestSave_RefusesSubstitutes(t *testing.T) {
	store := newStore(t)
	c := NewChain(&stubSource{}, store, applog.NewSilent())
	ctx := context.Background()

	if err := c.Save(ctx, models.NewDailySeries("IBM", stored, models.NoteIntradayFallback)); !errors.Is(err, ErrNotPersistable) {
		t.Errorf("intraday series should not be saved, got %v", err)
	}
	if err := c.Save(ctx, models.NewDailySeries("600519", stored, "")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	local, _ := c.Local(ctx, "600519.SHH", 10)
	if local.Count != 3 {
		t.Errorf("expected rows under normalized symbol, got %d", local.Count)
	}
}
