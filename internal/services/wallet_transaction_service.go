package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/clock"
	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/models"
)

// WalletTransactionService records float movements against a master wallet
// and keeps saldo_saat_ini in step with them.
type WalletTransactionService struct {
	db        *sql.DB
	clock     *clock.Clock
	validator *ValidationHelper
	log       *logrus.Logger
}

func NewWalletTransactionService(db *sql.DB, clk *clock.Clock) *WalletTransactionService {
	return &WalletTransactionService{
		db:        db,
		clock:     clk,
		validator: NewValidationHelper(),
		log:       logging.GetLogger(),
	}
}

type walletTransactionCreateRequest struct {
	WalletID   int              `json:"wallet_id" validate:"required,gt=0"`
	Tipe       string           `json:"tipe" validate:"required,oneof=masuk keluar"`
	Jumlah     *decimal.Decimal `json:"jumlah" validate:"required"`
	Keterangan string           `json:"keterangan"`
	Tanggal    string           `json:"tanggal"`
}

// CreateTransaction records a float movement
// @Summary Record a wallet transaction
// @Description Record a masuk or keluar movement; keluar fails when the balance is insufficient
// @Tags wallet-transactions
// @Accept json
// @Produce json
// @Param transaction body walletTransactionCreateRequest true "Transaction input"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-transactions [post]
func (s *WalletTransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req walletTransactionCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "wallet_id, tipe, dan jumlah wajib diisi", http.StatusBadRequest, err)
		return
	}
	if !req.Jumlah.IsPositive() {
		SendServiceError(w, "jumlah harus lebih dari 0", &InvalidInputError{Field: "jumlah", Reason: "must be positive"})
		return
	}

	ts, err := s.clock.ParseTimestamp(req.Tanggal)
	if err != nil {
		SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "tanggal", Reason: err.Error()})
		return
	}

	txn, err := s.create(r.Context(), &req, ts)
	if err != nil {
		SendServiceError(w, "Gagal membuat transaksi", err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Transaksi berhasil dicatat",
		"data":    txn,
	})
}

func (s *WalletTransactionService) create(ctx context.Context, req *walletTransactionCreateRequest, ts time.Time) (*models.WalletTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	master, err := lockMasterWallet(tx, req.WalletID)
	if err != nil {
		return nil, err
	}

	var newBalance decimal.Decimal
	if req.Tipe == TransactionMasuk {
		newBalance = master.SaldoSaatIni.Add(*req.Jumlah)
	} else {
		if master.SaldoSaatIni.LessThan(*req.Jumlah) {
			return nil, &InsufficientBalanceError{
				Current:   master.SaldoSaatIni.String(),
				Requested: req.Jumlah.String(),
			}
		}
		newBalance = master.SaldoSaatIni.Sub(*req.Jumlah)
	}

	txn := &models.WalletTransaction{
		WalletID:   req.WalletID,
		Tipe:       req.Tipe,
		Jumlah:     *req.Jumlah,
		Keterangan: req.Keterangan,
		Tanggal:    ts,
	}
	err = tx.QueryRow(`
		INSERT INTO wallet_transactions (wallet_id, tipe, jumlah, keterangan, tanggal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		txn.WalletID, txn.Tipe, txn.Jumlah, txn.Keterangan, txn.Tanggal,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`UPDATE master_wallets SET saldo_saat_ini = $1, updated_at = now() WHERE id = $2`,
		newBalance, req.WalletID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"wallet_id": txn.WalletID,
		"tipe":      txn.Tipe,
		"jumlah":    txn.Jumlah.String(),
	}).Info("transaksi wallet dicatat")
	return txn, nil
}

// DeleteTransaction removes a transaction and reverses its balance effect
// @Summary Delete a wallet transaction
// @Description Deleting a masuk subtracts its amount back from the balance; deleting a keluar adds it back
// @Tags wallet-transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-transactions/{id} [delete]
func (s *WalletTransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	if err := s.delete(r.Context(), id); err != nil {
		SendServiceError(w, "Gagal menghapus transaksi", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Transaksi berhasil dihapus",
	})
}

func (s *WalletTransactionService) delete(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var walletID int
	var tipe string
	var jumlah decimal.Decimal
	err = tx.QueryRow(`SELECT wallet_id, tipe, jumlah FROM wallet_transactions WHERE id = $1`, id).
		Scan(&walletID, &tipe, &jumlah)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "wallet transaction"}
	}
	if err != nil {
		return err
	}

	master, err := lockMasterWallet(tx, walletID)
	if err != nil {
		return err
	}

	var newBalance decimal.Decimal
	if tipe == TransactionMasuk {
		newBalance = master.SaldoSaatIni.Sub(jumlah)
	} else {
		newBalance = master.SaldoSaatIni.Add(jumlah)
	}

	if _, err := tx.Exec(`DELETE FROM wallet_transactions WHERE id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE master_wallets SET saldo_saat_ini = $1, updated_at = now() WHERE id = $2`,
		newBalance, walletID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTransactions lists wallet transactions with filters
// @Summary List wallet transactions
// @Description Default scope is today's transactions; pass scope=history or a date range for more
// @Tags wallet-transactions
// @Produce json
// @Param wallet_id query int false "Filter by master wallet"
// @Param tipe query string false "Filter by type (masuk or keluar)"
// @Param tanggal_dari query string false "Range start (YYYY-MM-DD)"
// @Param tanggal_sampai query string false "Range end (YYYY-MM-DD)"
// @Param scope query string false "history to drop the today default"
// @Param sort query string false "asc or desc (default desc)"
// @Success 200 {object} map[string]interface{}
// @Router /wallet-transactions [get]
func (s *WalletTransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	where := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if v := q.Get("wallet_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			SendServiceError(w, "wallet_id tidak valid", &InvalidInputError{Field: "wallet_id", Reason: "must be an integer"})
			return
		}
		where = append(where, "t.wallet_id = "+arg(id))
	}
	if v := q.Get("tipe"); v != "" {
		if v != TransactionMasuk && v != TransactionKeluar {
			SendServiceError(w, "tipe tidak valid", &InvalidInputError{Field: "tipe", Reason: "must be masuk or keluar"})
			return
		}
		where = append(where, "t.tipe = "+arg(v))
	}

	from, to, err := transactionRange(s.clock, q.Get("tanggal_dari"), q.Get("tanggal_sampai"), q.Get("scope"))
	if err != nil {
		SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "tanggal", Reason: err.Error()})
		return
	}
	if from != nil {
		where = append(where, "t.tanggal >= "+arg(*from))
	}
	if to != nil {
		where = append(where, "t.tanggal <= "+arg(*to))
	}

	order := "DESC"
	if q.Get("sort") == "asc" {
		order = "ASC"
	}

	query := `
		SELECT t.id, t.wallet_id, t.tipe, t.jumlah, t.keterangan, t.tanggal, t.created_at,
		       m.id, m.nama_wallet, m.saldo_saat_ini
		FROM wallet_transactions t
		JOIN master_wallets m ON m.id = t.wallet_id`
	for i, c := range where {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY t.tanggal " + order + ", t.id " + order

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data transaksi", err)
		return
	}
	defer rows.Close()

	txns := []*models.WalletTransaction{}
	for rows.Next() {
		txn := &models.WalletTransaction{Wallet: &models.MasterWallet{}}
		if err := rows.Scan(&txn.ID, &txn.WalletID, &txn.Tipe, &txn.Jumlah, &txn.Keterangan,
			&txn.Tanggal, &txn.CreatedAt,
			&txn.Wallet.ID, &txn.Wallet.NamaWallet, &txn.Wallet.SaldoSaatIni); err != nil {
			SendServiceError(w, "Gagal mengambil data transaksi", err)
			return
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data transaksi", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    txns,
		"total":   len(txns),
	})
}
