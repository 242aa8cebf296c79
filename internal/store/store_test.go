package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"autotrader/internal/risk"
	"autotrader/internal/strategy"
	"autotrader/pkg/exchanges/common"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cred := &Credential{
		UserID:       "u1",
		ExchangeType: common.ExchangeBinance,
		Name:         "main account",
		APIKey:       "api-key-123",
		APISecret:    "api-secret-456",
		Testnet:      true,
	}
	if err := db.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("save: %v", err)
	}
	if cred.ID == "" {
		t.Fatal("save did not assign an id")
	}

	got, err := db.GetCredential(ctx, cred.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.APIKey != "api-key-123" || got.APISecret != "api-secret-456" {
		t.Fatalf("key material mismatch: %+v", got)
	}
	if got.ExchangeType != common.ExchangeBinance || !got.Testnet || !got.Active {
		t.Fatalf("unexpected credential: %+v", got)
	}

	if _, err := db.GetCredential(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}
}

func TestUpdateAndDeactivateCredential(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cred := &Credential{UserID: "u1", ExchangeType: common.ExchangeBybit, Name: "x", APIKey: "k1", APISecret: "s1"}
	if err := db.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := db.UpdateCredential(ctx, cred.ID, "k2", "s2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := db.GetCredential(ctx, cred.ID)
	if got.APIKey != "k2" || got.APISecret != "s2" {
		t.Fatalf("update not applied: %+v", got)
	}
	if err := db.UpdateCredential(ctx, "missing", "k", "s"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing = %v, want ErrNotFound", err)
	}

	if err := db.DeactivateCredential(ctx, cred.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	list, err := db.ListCredentials(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("deactivated credential still listed: %+v", list)
	}
}

func TestListCredentialsScopedToUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, c := range []*Credential{
		{UserID: "u1", ExchangeType: common.ExchangeBinance, Name: "a", APIKey: "k1", APISecret: "s"},
		{UserID: "u1", ExchangeType: common.ExchangeBybit, Name: "b", APIKey: "k2", APISecret: "s"},
		{UserID: "u2", ExchangeType: common.ExchangeBinance, Name: "c", APIKey: "k3", APISecret: "s"},
	} {
		if err := db.SaveCredential(ctx, c); err != nil {
			t.Fatalf("save %s: %v", c.Name, err)
		}
	}

	list, err := db.ListCredentials(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list for u1 = %d entries, want 2", len(list))
	}
}

func TestRiskProfileActivation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := risk.DefaultProfile("u1")
	if err := db.SaveRiskProfile(ctx, &first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := risk.DefaultProfile("u1")
	second.Name = "tighter"
	second.DailyLossLimit = 500
	second.WeeklyLossLimit = 2500
	second.MonthlyLossLimit = 10000
	second.TotalLossLimit = 20000
	if err := db.SaveRiskProfile(ctx, &second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	active, err := db.GetActiveRiskProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != second.ID || active.DailyLossLimit != 500 {
		t.Fatalf("wrong active profile: %+v", active)
	}

	if err := db.DeactivateRiskProfile(ctx, "u1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := db.GetActiveRiskProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after deactivate = %v, want ErrNotFound", err)
	}
	if err := db.DeactivateRiskProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second deactivate = %v, want ErrNotFound", err)
	}
}

func TestSaveRiskProfileRejectsInvalid(t *testing.T) {
	db := openTestDB(t)
	bad := risk.DefaultProfile("u1")
	bad.WeeklyLossLimit = 100 // below 5x daily

	if err := db.SaveRiskProfile(context.Background(), &bad); err == nil {
		t.Fatal("invalid profile saved")
	}
	if _, err := db.GetActiveRiskProfile(context.Background(), "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected profile reached the table: %v", err)
	}
}

func TestProfileSourceFallsBackToDefault(t *testing.T) {
	db := openTestDB(t)
	src := ProfileSource{DB: db, UserID: "u1"}

	p, err := src.ActiveProfile(context.Background())
	if err != nil {
		t.Fatalf("active profile: %v", err)
	}
	if p.UserID != "u1" || p.DailyLossLimit != risk.DefaultProfile("u1").DailyLossLimit {
		t.Fatalf("fallback profile mismatch: %+v", p)
	}

	custom := risk.DefaultProfile("u1")
	custom.DailyLossLimit = 2000
	custom.WeeklyLossLimit = 10000
	custom.MonthlyLossLimit = 30000
	custom.TotalLossLimit = 60000
	if err := db.SaveRiskProfile(context.Background(), &custom); err != nil {
		t.Fatalf("save: %v", err)
	}
	p, err = src.ActiveProfile(context.Background())
	if err != nil {
		t.Fatalf("active profile after save: %v", err)
	}
	if p.DailyLossLimit != 2000 {
		t.Fatalf("stored profile not returned: %+v", p)
	}
}

func TestSyncDefinitionsUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	defs := []strategy.Definition{
		{Name: "grid one", Type: strategy.TypeGrid, Symbol: "BTCUSDT",
			Parameters: map[string]float64{"base_price": 50000}, AutoStart: true},
		{ID: "fixed-id", Name: "mr one", Type: strategy.TypeMeanReversion, Symbol: "ETHUSDT",
			Parameters: map[string]float64{"long_period": 20}},
	}
	if err := db.SyncDefinitions(ctx, defs); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if defs[0].ID == "" {
		t.Fatal("sync did not assign an id to the blank entry")
	}

	stored, err := db.ListDefinitions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored = %d definitions, want 2", len(stored))
	}

	// re-sync with changed parameters must update in place, not duplicate
	defs[1].Parameters["long_period"] = 30
	if err := db.SyncDefinitions(ctx, defs); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	stored, _ = db.ListDefinitions(ctx)
	if len(stored) != 2 {
		t.Fatalf("after re-sync = %d definitions, want 2", len(stored))
	}
	for _, def := range stored {
		if def.ID == "fixed-id" && def.Parameters["long_period"] != 30 {
			t.Fatalf("upsert did not apply new parameters: %+v", def)
		}
	}
}

func TestTradeLogWindows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, rec := range []*TradeRecord{
		{StrategyID: "s1", Symbol: "BTCUSDT", Side: "BUY", Quantity: 0.1, Price: 50000, PnL: -300},
		{StrategyID: "s1", Symbol: "BTCUSDT", Side: "SELL", Quantity: 0.1, Price: 50500, PnL: 120},
	} {
		if err := db.LogTrade(ctx, rec); err != nil {
			t.Fatalf("log trade: %v", err)
		}
	}

	pnl, err := db.PnLSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("pnl since: %v", err)
	}
	if pnl != -180 {
		t.Fatalf("total pnl = %v, want -180", pnl)
	}

	n, err := db.TradeCountSince(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if n != 2 {
		t.Fatalf("recent trades = %d, want 2", n)
	}

	future, err := db.PnLSince(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("pnl future window: %v", err)
	}
	if future != 0 {
		t.Fatalf("future window pnl = %v, want 0", future)
	}
}

func TestStatsSourceSnapshot(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.LogTrade(ctx, &TradeRecord{Symbol: "BTCUSDT", Side: "SELL", Quantity: 1, Price: 50000, PnL: -250}); err != nil {
		t.Fatalf("log trade: %v", err)
	}

	src := StatsSource{DB: db, Positions: func() (int, float64) { return 3, 12500 }}
	snap, err := src.AccountSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.DailyPnL != -250 || snap.TotalPnL != -250 {
		t.Fatalf("pnl windows = %+v, want -250", snap)
	}
	if snap.OpenPositions != 3 || snap.PositionValue != 12500 {
		t.Fatalf("position figures not merged: %+v", snap)
	}
}
