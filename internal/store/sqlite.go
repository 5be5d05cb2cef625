package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "synth-exchange/internal/errors"
	"synth-exchange/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore creates a new SQLite-based market store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Stock snapshots, one row per ticker
	CREATE TABLE IF NOT EXISTS stocks (
		ticker TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		industry TEXT NOT NULL,
		volatility REAL NOT NULL,
		current_price REAL NOT NULL,
		previous_close REAL NOT NULL,
		fundamental_value REAL NOT NULL,
		momentum REAL NOT NULL DEFAULT 0,
		wave_tick INTEGER NOT NULL DEFAULT 0,
		wave_duration INTEGER NOT NULL DEFAULT 0,
		wave_peak REAL NOT NULL DEFAULT 0,
		market_pressure REAL NOT NULL DEFAULT 0,
		pending_sell REAL NOT NULL DEFAULT 0,
		price_history TEXT NOT NULL DEFAULT '[]',
		daily_closes TEXT NOT NULL DEFAULT '[]',
		script_date INTEGER,
		script_bias TEXT,
		script_range REAL,
		script_target REAL,
		owner_id TEXT NOT NULL DEFAULT '',
		total_shares INTEGER NOT NULL DEFAULT 0,
		is_listed INTEGER NOT NULL DEFAULT 0,
		mm_position REAL NOT NULL DEFAULT 0,
		mm_rig_state TEXT NOT NULL DEFAULT 'none',
		mm_rig_progress INTEGER NOT NULL DEFAULT 0,
		mm_rig_cooldown INTEGER NOT NULL DEFAULT 0,
		mm_dip_cooldown INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	-- 5-minute candles, unique per (ticker, ts)
	CREATE TABLE IF NOT EXISTS candles (
		ticker TEXT NOT NULL,
		ts INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		UNIQUE(ticker, ts)
	);

	-- Open purchase lots
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		purchase_price REAL NOT NULL,
		purchased_at INTEGER NOT NULL
	);

	-- Settled trades
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		gross REAL NOT NULL,
		fee REAL NOT NULL,
		slippage REAL NOT NULL,
		profit_loss REAL NOT NULL,
		ts INTEGER NOT NULL
	);

	-- Process-wide key/value state
	CREATE TABLE IF NOT EXISTS market_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_candles_ticker_ts ON candles(ticker, ts);
	CREATE INDEX IF NOT EXISTS idx_lots_user_ticker ON lots(user_id, ticker, purchased_at);
	CREATE INDEX IF NOT EXISTS idx_trades_user_ts ON trades(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_trades_ticker_ts ON trades(ticker, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Stock Methods
// ============================================================================

const upsertStockSQL = `
	INSERT INTO stocks (ticker, name, industry, volatility, current_price, previous_close, fundamental_value,
		momentum, wave_tick, wave_duration, wave_peak, market_pressure, pending_sell, price_history, daily_closes,
		script_date, script_bias, script_range, script_target, owner_id, total_shares, is_listed,
		mm_position, mm_rig_state, mm_rig_progress, mm_rig_cooldown, mm_dip_cooldown, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticker) DO UPDATE SET
		name = excluded.name, industry = excluded.industry, volatility = excluded.volatility,
		current_price = excluded.current_price, previous_close = excluded.previous_close,
		fundamental_value = excluded.fundamental_value, momentum = excluded.momentum,
		wave_tick = excluded.wave_tick, wave_duration = excluded.wave_duration, wave_peak = excluded.wave_peak,
		market_pressure = excluded.market_pressure, pending_sell = excluded.pending_sell,
		price_history = excluded.price_history, daily_closes = excluded.daily_closes,
		script_date = excluded.script_date, script_bias = excluded.script_bias,
		script_range = excluded.script_range, script_target = excluded.script_target,
		owner_id = excluded.owner_id, total_shares = excluded.total_shares, is_listed = excluded.is_listed,
		mm_position = excluded.mm_position, mm_rig_state = excluded.mm_rig_state,
		mm_rig_progress = excluded.mm_rig_progress, mm_rig_cooldown = excluded.mm_rig_cooldown,
		mm_dip_cooldown = excluded.mm_dip_cooldown, updated_at = excluded.updated_at
`

func saveStock(ctx context.Context, q queryer, rec StockRecord) error {
	st := rec.Stock
	history, err := json.Marshal(st.PriceHistory)
	if err != nil {
		return fmt.Errorf("failed to encode price history: %w", err)
	}
	closes, err := json.Marshal(st.DailyCloses)
	if err != nil {
		return fmt.Errorf("failed to encode daily closes: %w", err)
	}

	var scriptDate sql.NullInt64
	var scriptBias sql.NullString
	var scriptRange, scriptTarget sql.NullFloat64
	if st.Script != nil {
		scriptDate = sql.NullInt64{Int64: st.Script.Date.Unix(), Valid: true}
		scriptBias = sql.NullString{String: string(st.Script.Bias), Valid: true}
		scriptRange = sql.NullFloat64{Float64: st.Script.RangeFactor, Valid: true}
		scriptTarget = sql.NullFloat64{Float64: st.Script.TargetClose, Valid: true}
	}

	isListed := 0
	if st.IsListed {
		isListed = 1
	}
	rigState := rec.Maker.RigState
	if rigState == "" {
		rigState = models.RigNone
	}
	var updated int64
	if !st.UpdatedAt.IsZero() {
		updated = st.UpdatedAt.UnixNano()
	}

	_, err = q.ExecContext(ctx, upsertStockSQL,
		st.Ticker, st.Name, st.Industry, st.Volatility, st.CurrentPrice, st.PreviousClose, st.FundamentalValue,
		st.Momentum, st.WaveTick, st.WaveDuration, st.WavePeak, st.MarketPressure, st.PendingSell,
		string(history), string(closes),
		scriptDate, scriptBias, scriptRange, scriptTarget, st.OwnerID, st.TotalShares, isListed,
		rec.Maker.Position, string(rigState), rec.Maker.RigProgress, rec.Maker.RigCooldown, rec.Maker.DipAttackCooldown,
		updated)
	if err != nil {
		return fmt.Errorf("failed to save stock %s: %w", st.Ticker, err)
	}
	return nil
}

// SaveStock upserts a stock snapshot.
func (s *SQLiteStore) SaveStock(ctx context.Context, rec StockRecord) error {
	return saveStock(ctx, s.db, rec)
}

// LoadStocks returns every persisted stock ordered by ticker.
func (s *SQLiteStore) LoadStocks(ctx context.Context) ([]StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, name, industry, volatility, current_price, previous_close, fundamental_value,
			momentum, wave_tick, wave_duration, wave_peak, market_pressure, pending_sell, price_history, daily_closes,
			script_date, script_bias, script_range, script_target, owner_id, total_shares, is_listed,
			mm_position, mm_rig_state, mm_rig_progress, mm_rig_cooldown, mm_dip_cooldown, updated_at
		FROM stocks ORDER BY ticker
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var out []StockRecord
	for rows.Next() {
		var rec StockRecord
		st := &rec.Stock
		var history, closes, rigState string
		var scriptDate sql.NullInt64
		var scriptBias sql.NullString
		var scriptRange, scriptTarget sql.NullFloat64
		var isListed int
		var updated int64

		if err := rows.Scan(&st.Ticker, &st.Name, &st.Industry, &st.Volatility, &st.CurrentPrice, &st.PreviousClose, &st.FundamentalValue,
			&st.Momentum, &st.WaveTick, &st.WaveDuration, &st.WavePeak, &st.MarketPressure, &st.PendingSell, &history, &closes,
			&scriptDate, &scriptBias, &scriptRange, &scriptTarget, &st.OwnerID, &st.TotalShares, &isListed,
			&rec.Maker.Position, &rigState, &rec.Maker.RigProgress, &rec.Maker.RigCooldown, &rec.Maker.DipAttackCooldown, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}

		if err := json.Unmarshal([]byte(history), &st.PriceHistory); err != nil {
			return nil, apperrors.NewDataError("price_history", st.Ticker, "failed to decode", err)
		}
		if err := json.Unmarshal([]byte(closes), &st.DailyCloses); err != nil {
			return nil, apperrors.NewDataError("daily_closes", st.Ticker, "failed to decode", err)
		}
		if scriptDate.Valid {
			st.Script = &models.DailyScript{
				Date:        time.Unix(scriptDate.Int64, 0),
				Bias:        models.Bias(scriptBias.String),
				RangeFactor: scriptRange.Float64,
				TargetClose: scriptTarget.Float64,
			}
		}
		st.IsListed = isListed == 1
		if updated != 0 {
			st.UpdatedAt = time.Unix(0, updated)
		}
		rec.Maker.RigState = models.RigState(rigState)
		out = append(out, rec)
	}

	return out, rows.Err()
}

// DeleteStock removes a stock together with its candles and lots.
func (s *SQLiteStore) DeleteStock(ctx context.Context, ticker string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM stocks WHERE ticker = ?",
		"DELETE FROM candles WHERE ticker = ?",
		"DELETE FROM lots WHERE ticker = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, ticker); err != nil {
			return fmt.Errorf("failed to delete stock %s: %w", ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// Candles Methods
// ============================================================================

const upsertCandleSQL = `
	INSERT INTO candles (ticker, ts, open, high, low, close)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticker, ts) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close
`

func upsertCandle(ctx context.Context, q queryer, c models.Candle) error {
	if _, err := q.ExecContext(ctx, upsertCandleSQL, c.Ticker, c.Timestamp.Unix(), c.Open, c.High, c.Low, c.Close); err != nil {
		return fmt.Errorf("failed to upsert candle: %w", err)
	}
	return nil
}

// UpsertCandle inserts or overwrites the candle keyed by (ticker, ts).
func (s *SQLiteStore) UpsertCandle(ctx context.Context, c models.Candle) error {
	return upsertCandle(ctx, s.db, c)
}

// SaveTick writes the post-tick stock snapshot and its candle together. It
// only updates an existing stock row; a ticker with no row fails with
// ErrDataNotFound and writes nothing.
func (s *SQLiteStore) SaveTick(ctx context.Context, rec StockRecord, c models.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM stocks WHERE ticker = ?", rec.Stock.Ticker).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewDataError("stock", rec.Stock.Ticker, "no stored row to update", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up stock %s: %w", rec.Stock.Ticker, err)
	}

	if err := saveStock(ctx, tx, rec); err != nil {
		return err
	}
	if err := upsertCandle(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetCandles retrieves candles for ticker in [from, to], oldest first.
func (s *SQLiteStore) GetCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close
		FROM candles
		WHERE ticker = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, ticker, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	return scanCandles(rows, ticker)
}

// RecentCandles returns the newest limit candles for ticker, oldest first.
func (s *SQLiteStore) RecentCandles(ctx context.Context, ticker string, limit int) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close FROM (
			SELECT ts, open, high, low, close FROM candles
			WHERE ticker = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	return scanCandles(rows, ticker)
}

func scanCandles(rows *sql.Rows, ticker string) ([]models.Candle, error) {
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		c := models.Candle{Ticker: ticker}
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = time.Unix(ts, 0)
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}
	return candles, nil
}

// ============================================================================
// Market State Methods
// ============================================================================

const marketStateKey = "market"

type marketStateJSON struct {
	Cycle          models.Cycle            `json:"cycle"`
	Volatility     models.VolatilityRegime `json:"volatility"`
	CycleDays      int                     `json:"cycle_days"`
	VolatilityDays int                     `json:"volatility_days"`
	TradingDay     int64                   `json:"trading_day,omitempty"`
}

// SaveMarketState persists the macro regime and the last opened trading day.
func (s *SQLiteStore) SaveMarketState(ctx context.Context, st MarketState) error {
	v := marketStateJSON{
		Cycle:          st.Macro.Cycle,
		Volatility:     st.Macro.Volatility,
		CycleDays:      st.Macro.CycleDays,
		VolatilityDays: st.Macro.VolatilityDays,
	}
	if !st.TradingDay.IsZero() {
		v.TradingDay = st.TradingDay.Unix()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode market state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, marketStateKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save market state: %w", err)
	}
	return nil
}

// LoadMarketState returns the persisted market state. ok is false when none exists.
func (s *SQLiteStore) LoadMarketState(ctx context.Context) (MarketState, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM market_state WHERE key = ?", marketStateKey).Scan(&data)
	if err == sql.ErrNoRows {
		return MarketState{}, false, nil
	}
	if err != nil {
		return MarketState{}, false, fmt.Errorf("failed to load market state: %w", err)
	}

	var v marketStateJSON
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return MarketState{}, false, fmt.Errorf("failed to decode market state: %w", err)
	}
	st := MarketState{Macro: models.MacroCycle{
		Cycle:          v.Cycle,
		Volatility:     v.Volatility,
		CycleDays:      v.CycleDays,
		VolatilityDays: v.VolatilityDays,
	}}
	if v.TradingDay != 0 {
		st.TradingDay = time.Unix(v.TradingDay, 0)
	}
	return st, true, nil
}

// ============================================================================
// Holdings Methods
// ============================================================================

// Lots returns the user's lots in ticker, oldest first.
func (s *SQLiteStore) Lots(ctx context.Context, userID, ticker string) ([]models.Lot, error) {
	return queryLots(ctx, s.db, `
		SELECT id, user_id, ticker, quantity, purchase_price, purchased_at FROM lots
		WHERE user_id = ? AND ticker = ? ORDER BY purchased_at, id
	`, userID, ticker)
}

// UserLots returns every lot of the user, oldest first.
func (s *SQLiteStore) UserLots(ctx context.Context, userID string) ([]models.Lot, error) {
	return queryLots(ctx, s.db, `
		SELECT id, user_id, ticker, quantity, purchase_price, purchased_at FROM lots
		WHERE user_id = ? ORDER BY ticker, purchased_at, id
	`, userID)
}

// Holders returns the distinct users with open lots.
func (s *SQLiteStore) Holders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM lots ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holders: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan holder: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func queryLots(ctx context.Context, q queryer, query string, args ...any) ([]models.Lot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		var l models.Lot
		var at int64
		if err := rows.Scan(&l.ID, &l.UserID, &l.Ticker, &l.Quantity, &l.PurchasePrice, &at); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		l.PurchasedAt = time.Unix(0, at)
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// ============================================================================
// Trades Methods
// ============================================================================

// Trades retrieves trades matching filter, newest first.
func (s *SQLiteStore) Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT id, user_id, ticker, side, quantity, price, gross, fee, slippage, profit_loss, ts FROM trades WHERE 1=1"
	args := []any{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, string(filter.Side))
	}
	if !filter.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, filter.Since.UnixNano())
	}

	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		var ts int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Ticker, &side, &t.Quantity, &t.Price, &t.Gross, &t.Fee, &t.Slippage, &t.ProfitLoss, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.OrderSide(side)
		t.Timestamp = time.Unix(0, ts)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UserVolumeSince sums the gross value the user traded since the given time.
func (s *SQLiteStore) UserVolumeSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT SUM(gross) FROM trades WHERE user_id = ? AND ts >= ?", userID, since.UnixNano()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to sum user volume: %w", err)
	}
	return v.Float64, nil
}

// UserTradeCountSince counts the user's trades since the given time.
func (s *SQLiteStore) UserTradeCountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades WHERE user_id = ? AND ts >= ?", userID, since.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count user trades: %w", err)
	}
	return n, nil
}

// StockVolumeSince sums the gross value traded in ticker since the given time.
func (s *SQLiteStore) StockVolumeSince(ctx context.Context, ticker string, since time.Time) (float64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT SUM(gross) FROM trades WHERE ticker = ? AND ts >= ?", ticker, since.UnixNano()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to sum stock volume: %w", err)
	}
	return v.Float64, nil
}

// ============================================================================
// Transactions
// ============================================================================

// InTx runs fn inside one database transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertLot(ctx context.Context, lot models.Lot) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO lots (id, user_id, ticker, quantity, purchase_price, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, lot.ID, lot.UserID, lot.Ticker, lot.Quantity, lot.PurchasePrice, lot.PurchasedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	return nil
}

func (t *sqliteTx) ConsumeLots(ctx context.Context, userID, ticker string, qty int64, cutoff time.Time) ([]models.LotFill, error) {
	lots, err := queryLots(ctx, t.tx, `
		SELECT id, user_id, ticker, quantity, purchase_price, purchased_at FROM lots
		WHERE user_id = ? AND ticker = ? AND purchased_at <= ? ORDER BY purchased_at, id
	`, userID, ticker, cutoff.UnixNano())
	if err != nil {
		return nil, err
	}

	fills, err := planFills(lots, qty)
	if err != nil {
		return nil, err
	}

	for i, f := range fills {
		if f.Quantity == lots[i].Quantity {
			_, err = t.tx.ExecContext(ctx, "DELETE FROM lots WHERE id = ?", f.LotID)
		} else {
			_, err = t.tx.ExecContext(ctx, "UPDATE lots SET quantity = quantity - ? WHERE id = ?", f.Quantity, f.LotID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to consume lot %s: %w", f.LotID, err)
		}
	}
	return fills, nil
}

func (t *sqliteTx) AppendTrade(ctx context.Context, tr models.Trade) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO trades (id, user_id, ticker, side, quantity, price, gross, fee, slippage, profit_loss, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tr.ID, tr.UserID, tr.Ticker, string(tr.Side), tr.Quantity, tr.Price, tr.Gross, tr.Fee, tr.Slippage, tr.ProfitLoss, tr.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

func (t *sqliteTx) SaveStock(ctx context.Context, rec StockRecord) error {
	return saveStock(ctx, t.tx, rec)
}

// planFills walks eligible lots oldest first and returns the fills needed to
// cover qty. fills[i] always corresponds to lots[i].
func planFills(lots []models.Lot, qty int64) ([]models.LotFill, error) {
	if qty <= 0 {
		return nil, apperrors.ErrInvalidQuantity
	}
	var available int64
	for _, l := range lots {
		available += l.Quantity
	}
	if available < qty {
		return nil, apperrors.ErrInsufficientShares
	}

	var fills []models.LotFill
	remaining := qty
	for _, l := range lots {
		if remaining == 0 {
			break
		}
		take := min(l.Quantity, remaining)
		fills = append(fills, models.LotFill{LotID: l.ID, Quantity: take, Price: l.PurchasePrice})
		remaining -= take
	}
	return fills, nil
}
