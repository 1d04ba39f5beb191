package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func walletDailyRouter(service *WalletDailyService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/wallet-daily", service.CreateDailyBalance)
	r.Put("/wallet-daily/{id}", service.UpdateDailyBalance)
	r.Delete("/wallet-daily/{id}", service.DeleteDailyBalance)
	return r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWalletDailyService_CreateDailyBalance(t *testing.T) {
	clk := testClock()
	day, err := clk.ParseDay("2025-03-10")
	assert.NoError(t, err)
	now := time.Now()

	t.Run("first entry derives keluar from decimal amounts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletDailyService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, saldo_saat_ini FROM master_wallets WHERE id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "saldo_saat_ini"}).AddRow(2, "50000"))
		mock.ExpectQuery("FROM wallet_daily_stocks\\s+WHERE wallet_id = \\$1 AND tanggal = \\$2").
			WithArgs(2, day).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery("SELECT sisa FROM wallet_daily_stocks\\s+WHERE wallet_id = \\$1 AND tanggal < \\$2").
			WithArgs(2, day).
			WillReturnRows(sqlmock.NewRows([]string{"sisa"}))
		// saldo_awal 50000 + masuk 100000 - sisa 120000 => keluar 30000
		mock.ExpectQuery("INSERT INTO wallet_daily_stocks").
			WithArgs(2, day, dec("50000"), dec("100000"), dec("30000"), dec("120000"), "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))
		mock.ExpectQuery("SELECT id FROM wallet_daily_stocks\\s+WHERE wallet_id = \\$1\\s+ORDER BY tanggal DESC, id DESC").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectExec("UPDATE master_wallets SET saldo_saat_ini = \\$1").
			WithArgs(dec("120000"), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]interface{}{
			"wallet_id": 2,
			"tanggal":   "2025-03-10",
			"sisa":      "120000",
			"masuk":     "100000",
		})
		req := httptest.NewRequest("POST", "/wallet-daily", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletDailyRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, "30000", data["keluar"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative sisa is rejected before any query", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletDailyService(db, clk)

		body, _ := json.Marshal(map[string]interface{}{
			"wallet_id": 2,
			"tanggal":   "2025-03-10",
			"sisa":      "-5",
		})
		req := httptest.NewRequest("POST", "/wallet-daily", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletDailyRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown wallet returns 404", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletDailyService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, saldo_saat_ini FROM master_wallets WHERE id = \\$1 FOR UPDATE").
			WithArgs(77).
			WillReturnRows(sqlmock.NewRows([]string{"id", "saldo_saat_ini"}))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]interface{}{
			"wallet_id": 77,
			"tanggal":   "2025-03-10",
			"sisa":      "1000",
		})
		req := httptest.NewRequest("POST", "/wallet-daily", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletDailyRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletDailyService_UpdateDailyBalance(t *testing.T) {
	clk := testClock()
	day, _ := clk.ParseDay("2025-03-10")
	now := time.Now()

	t.Run("saldo_awal correction keeps keluar and recomputes sisa", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletDailyService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM wallet_daily_stocks\\s+WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "tanggal", "saldo_awal", "masuk", "keluar", "sisa", "catatan"}).
				AddRow(3, 2, day, "50000", "100000", "30000", "120000", ""))
		// saldo_awal corrected to 60000: keluar stays 30000, sisa becomes 130000
		mock.ExpectQuery("UPDATE wallet_daily_stocks\\s+SET saldo_awal = \\$1").
			WithArgs(dec("60000"), dec("100000"), dec("30000"), dec("130000"), "", 3).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectQuery("SELECT id FROM wallet_daily_stocks\\s+WHERE wallet_id = \\$1\\s+ORDER BY tanggal DESC, id DESC").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectExec("UPDATE master_wallets SET saldo_saat_ini = \\$1").
			WithArgs(dec("130000"), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]interface{}{"saldo_awal": "60000"})
		req := httptest.NewRequest("PUT", "/wallet-daily/3", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletDailyRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, "130000", data["sisa"])
		assert.Equal(t, "30000", data["keluar"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletDailyService_DeleteDailyBalance(t *testing.T) {
	clk := testClock()
	day, _ := clk.ParseDay("2025-03-10")

	t.Run("snapshot falls back to the newest remaining day", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletDailyService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM wallet_daily_stocks\\s+WHERE id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "tanggal", "saldo_awal", "masuk", "keluar", "sisa", "catatan"}).
				AddRow(3, 2, day, "50000", "0", "0", "50000", ""))
		mock.ExpectExec("DELETE FROM wallet_daily_stocks WHERE id = \\$1").
			WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, sisa FROM wallet_daily_stocks\\s+WHERE wallet_id = \\$1").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "sisa"}).AddRow(1, "42000"))
		mock.ExpectExec("UPDATE master_wallets SET saldo_saat_ini = \\$1").
			WithArgs(dec("42000"), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := httptest.NewRequest("DELETE", "/wallet-daily/3", nil)
		w := httptest.NewRecorder()
		walletDailyRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
