package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kiostrack/backend/internal/clock"
)

func TestStatisticsService_GetDashboard(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC) // 10:00 WIB
	clk := clock.NewWithNow(7, func() time.Time { return fixed })
	day := clk.DayStart(clk.Now())

	expectDashboardQueries := func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(stok_saat_ini\\), 0\\) FROM master_vouchers").
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(3, 42))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(terjual\\), 0\\) FROM voucher_daily_stocks").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(17))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(saldo_saat_ini\\), 0\\) FROM master_wallets").
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(2, "150000"))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM voucher_daily_stocks WHERE tanggal = \\$1").
			WithArgs(day).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM wallet_daily_stocks WHERE tanggal = \\$1").
			WithArgs(day).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	}

	t.Run("cache miss builds and stores the payload", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		service := NewStatisticsService(db, redisClient, clk, 60*time.Second)

		expected := &DashboardStats{
			TotalVoucher:        3,
			TotalStok:           42,
			TotalTerjual:        17,
			TotalWallet:         2,
			TotalSaldo:          decimal.RequireFromString("150000"),
			InputVoucherHariIni: 1,
			InputWalletHariIni:  2,
		}
		raw, _ := json.Marshal(expected)

		redisMock.ExpectGet(dashboardCacheKey).RedisNil()
		expectDashboardQueries(mock)
		redisMock.ExpectSet(dashboardCacheKey, raw, 60*time.Second).SetVal("OK")

		req := httptest.NewRequest("GET", "/statistics/dashboard", nil)
		w := httptest.NewRecorder()
		service.GetDashboard(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, float64(3), data["total_voucher"])
		assert.Equal(t, float64(17), data["total_terjual"])
		assert.Equal(t, "150000", data["total_saldo"])
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("cache hit skips the database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		service := NewStatisticsService(db, redisClient, clk, 60*time.Second)

		cached := &DashboardStats{TotalVoucher: 9, TotalSaldo: decimal.Zero}
		raw, _ := json.Marshal(cached)
		redisMock.ExpectGet(dashboardCacheKey).SetVal(string(raw))

		req := httptest.NewRequest("GET", "/statistics/dashboard", nil)
		w := httptest.NewRecorder()
		service.GetDashboard(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, true, resp["cached"])
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, float64(9), data["total_voucher"])
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("nil redis client still serves the dashboard", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewStatisticsService(db, nil, clk, 60*time.Second)

		expectDashboardQueries(mock)

		req := httptest.NewRequest("GET", "/statistics/dashboard", nil)
		w := httptest.NewRecorder()
		service.GetDashboard(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStatisticsService_GetVoucherStatistics(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	clk := clock.NewWithNow(7, func() time.Time { return fixed })

	t.Run("today window by default", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewStatisticsService(db, nil, clk, time.Minute)

		start, end := clk.TodayRange()
		mock.ExpectQuery("FROM voucher_transactions WHERE tanggal >= \\$1 AND tanggal <= \\$2").
			WithArgs(start, end).
			WillReturnRows(sqlmock.NewRows([]string{"masuk", "keluar", "count"}).AddRow(10, 4, 6))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(stok_saat_ini\\), 0\\) FROM master_vouchers").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42))

		req := httptest.NewRequest("GET", "/statistics/voucher", nil)
		w := httptest.NewRecorder()
		service.GetVoucherStatistics(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, float64(10), data["total_masuk"])
		assert.Equal(t, float64(4), data["total_keluar"])
		assert.Equal(t, float64(42), data["total_stok"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scope=history aggregates everything", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewStatisticsService(db, nil, clk, time.Minute)

		mock.ExpectQuery("FROM voucher_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"masuk", "keluar", "count"}).AddRow(100, 40, 60))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(stok_saat_ini\\), 0\\) FROM master_vouchers").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42))

		req := httptest.NewRequest("GET", "/statistics/voucher?scope=history", nil)
		w := httptest.NewRecorder()
		service.GetVoucherStatistics(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStatisticsService_GetWalletSummary(t *testing.T) {
	clk := testClock()
	day, _ := clk.ParseDay("2025-03-10")

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	service := NewStatisticsService(db, nil, clk, time.Minute)

	mock.ExpectQuery("SELECT DISTINCT ON \\(d.wallet_id\\)").
		WillReturnRows(sqlmock.NewRows([]string{
			"wallet_id", "nama_wallet", "tanggal", "saldo_awal", "masuk", "keluar", "sisa"}).
			AddRow(1, "DANA", day, "50000", "10000", "5000", "55000").
			AddRow(2, "OVO", day, "20000", "0", "8000", "12000"))

	req := httptest.NewRequest("GET", "/statistics/wallet-summary", nil)
	w := httptest.NewRecorder()
	service.GetWalletSummary(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	total := resp["total"].(map[string]interface{})
	assert.Equal(t, "67000", total["total_sisa"])
	assert.Equal(t, "13000", total["total_keluar"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatisticsService_GetDailyStatistics(t *testing.T) {
	clk := testClock()
	day, _ := clk.ParseDay("2025-03-10")

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	service := NewStatisticsService(db, nil, clk, time.Minute)

	mock.ExpectQuery("FROM voucher_daily_stocks WHERE tanggal = \\$1").
		WithArgs(day).
		WillReturnRows(sqlmock.NewRows([]string{"count", "masuk", "terjual"}).AddRow(2, 15, 8))
	mock.ExpectQuery("FROM wallet_daily_stocks WHERE tanggal = \\$1").
		WithArgs(day).
		WillReturnRows(sqlmock.NewRows([]string{"count", "masuk", "keluar"}).AddRow(1, "100000", "30000"))

	req := httptest.NewRequest("GET", "/statistics/daily?date=2025-03-10", nil)
	w := httptest.NewRecorder()
	service.GetDailyStatistics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "2025-03-10", data["tanggal"])
	voucher := data["voucher"].(map[string]interface{})
	assert.Equal(t, float64(8), voucher["total_terjual"])
	wallet := data["wallet"].(map[string]interface{})
	assert.Equal(t, "30000", wallet["total_keluar"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
