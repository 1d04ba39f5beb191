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
	"github.com/stretchr/testify/assert"

	"github.com/kiostrack/backend/internal/clock"
)

func walletTxRouter(service *WalletTransactionService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/wallet-transactions", service.CreateTransaction)
	r.Delete("/wallet-transactions/{id}", service.DeleteTransaction)
	return r
}

func TestWalletTransactionService_CreateTransaction(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	clk := clock.NewWithNow(7, func() time.Time { return fixed })
	now := time.Now()

	t.Run("keluar subtracts from the balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletTransactionService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, saldo_saat_ini FROM master_wallets WHERE id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "saldo_saat_ini"}).AddRow(2, "100000"))
		mock.ExpectQuery("INSERT INTO wallet_transactions").
			WithArgs(2, "keluar", dec("25000"), "topup pelanggan", clk.Now()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(8, now))
		mock.ExpectExec("UPDATE master_wallets SET saldo_saat_ini = \\$1").
			WithArgs(dec("75000"), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]interface{}{
			"wallet_id":  2,
			"tipe":       "keluar",
			"jumlah":     "25000",
			"keterangan": "topup pelanggan",
		})
		req := httptest.NewRequest("POST", "/wallet-transactions", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletTxRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keluar beyond the balance is rejected with amounts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletTransactionService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, saldo_saat_ini FROM master_wallets WHERE id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "saldo_saat_ini"}).AddRow(2, "10000"))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]interface{}{
			"wallet_id": 2,
			"tipe":      "keluar",
			"jumlah":    "25000",
		})
		req := httptest.NewRequest("POST", "/wallet-transactions", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletTxRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Contains(t, resp.Error, "current 10000")
		assert.Contains(t, resp.Error, "requested 25000")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero jumlah is rejected", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletTransactionService(db, clk)

		body, _ := json.Marshal(map[string]interface{}{
			"wallet_id": 2,
			"tipe":      "masuk",
			"jumlah":    "0",
		})
		req := httptest.NewRequest("POST", "/wallet-transactions", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		walletTxRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWalletTransactionService_DeleteTransaction(t *testing.T) {
	clk := testClock()

	t.Run("deleting a keluar restores the balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewWalletTransactionService(db, clk)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT wallet_id, tipe, jumlah FROM wallet_transactions WHERE id = \\$1").
			WithArgs(8).
			WillReturnRows(sqlmock.NewRows([]string{"wallet_id", "tipe", "jumlah"}).AddRow(2, "keluar", "25000"))
		mock.ExpectQuery("SELECT id, saldo_saat_ini FROM master_wallets WHERE id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "saldo_saat_ini"}).AddRow(2, "75000"))
		mock.ExpectExec("DELETE FROM wallet_transactions WHERE id = \\$1").
			WithArgs(8).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE master_wallets SET saldo_saat_ini = \\$1").
			WithArgs(dec("100000"), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req := httptest.NewRequest("DELETE", "/wallet-transactions/8", nil)
		w := httptest.NewRecorder()
		walletTxRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
