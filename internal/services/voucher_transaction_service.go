package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/clock"
	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/models"
)

const (
	TransactionMasuk  = "masuk"
	TransactionKeluar = "keluar"
)

// VoucherTransactionService records individual stock movements against a
// master voucher and keeps the stok_saat_ini snapshot in step with them.
type VoucherTransactionService struct {
	db        *sql.DB
	clock     *clock.Clock
	validator *ValidationHelper
	log       *logrus.Logger
}

func NewVoucherTransactionService(db *sql.DB, clk *clock.Clock) *VoucherTransactionService {
	return &VoucherTransactionService{
		db:        db,
		clock:     clk,
		validator: NewValidationHelper(),
		log:       logging.GetLogger(),
	}
}

type voucherTransactionCreateRequest struct {
	VoucherID  int    `json:"voucher_id" validate:"required,gt=0"`
	Tipe       string `json:"tipe" validate:"required,oneof=masuk keluar"`
	Jumlah     int64  `json:"jumlah" validate:"required,gt=0"`
	Keterangan string `json:"keterangan"`
	Tanggal    string `json:"tanggal"`
}

// CreateTransaction records a stock movement
// @Summary Record a voucher transaction
// @Description Record a masuk or keluar movement; keluar fails when stock is insufficient
// @Tags voucher-transactions
// @Accept json
// @Produce json
// @Param transaction body voucherTransactionCreateRequest true "Transaction input"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /voucher-transactions [post]
func (s *VoucherTransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req voucherTransactionCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "voucher_id, tipe, dan jumlah wajib diisi", http.StatusBadRequest, err)
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

func (s *VoucherTransactionService) create(ctx context.Context, req *voucherTransactionCreateRequest, ts time.Time) (*models.VoucherTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	master, err := lockMasterVoucher(tx, req.VoucherID)
	if err != nil {
		return nil, err
	}

	newStock := master.StokSaatIni
	if req.Tipe == TransactionMasuk {
		newStock += req.Jumlah
	} else {
		if master.StokSaatIni < req.Jumlah {
			return nil, &InsufficientBalanceError{
				Current:   strconv.FormatInt(master.StokSaatIni, 10),
				Requested: strconv.FormatInt(req.Jumlah, 10),
			}
		}
		newStock -= req.Jumlah
	}

	txn := &models.VoucherTransaction{
		VoucherID:  req.VoucherID,
		Tipe:       req.Tipe,
		Jumlah:     req.Jumlah,
		Keterangan: req.Keterangan,
		Tanggal:    ts,
	}
	err = tx.QueryRow(`
		INSERT INTO voucher_transactions (voucher_id, tipe, jumlah, keterangan, tanggal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		txn.VoucherID, txn.Tipe, txn.Jumlah, txn.Keterangan, txn.Tanggal,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`UPDATE master_vouchers SET stok_saat_ini = $1, updated_at = now() WHERE id = $2`,
		newStock, req.VoucherID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"voucher_id": txn.VoucherID,
		"tipe":       txn.Tipe,
		"jumlah":     txn.Jumlah,
	}).Info("transaksi voucher dicatat")
	return txn, nil
}

// DeleteTransaction removes a transaction and reverses its stock effect
// @Summary Delete a voucher transaction
// @Description Deleting a masuk subtracts its amount back from stock; deleting a keluar adds it back
// @Tags voucher-transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /voucher-transactions/{id} [delete]
func (s *VoucherTransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
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

func (s *VoucherTransactionService) delete(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var voucherID int
	var tipe string
	var jumlah int64
	err = tx.QueryRow(`SELECT voucher_id, tipe, jumlah FROM voucher_transactions WHERE id = $1`, id).
		Scan(&voucherID, &tipe, &jumlah)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "voucher transaction"}
	}
	if err != nil {
		return err
	}

	master, err := lockMasterVoucher(tx, voucherID)
	if err != nil {
		return err
	}

	// Reversal: undo exactly what the transaction applied.
	newStock := master.StokSaatIni
	if tipe == TransactionMasuk {
		newStock -= jumlah
	} else {
		newStock += jumlah
	}

	if _, err := tx.Exec(`DELETE FROM voucher_transactions WHERE id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE master_vouchers SET stok_saat_ini = $1, updated_at = now() WHERE id = $2`,
		newStock, voucherID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTransactions lists voucher transactions with filters
// @Summary List voucher transactions
// @Description Default scope is today's transactions; pass scope=history or a date range for more
// @Tags voucher-transactions
// @Produce json
// @Param voucher_id query int false "Filter by master voucher"
// @Param tipe query string false "Filter by type (masuk or keluar)"
// @Param tanggal_dari query string false "Range start (YYYY-MM-DD)"
// @Param tanggal_sampai query string false "Range end (YYYY-MM-DD)"
// @Param scope query string false "history to drop the today default"
// @Param sort query string false "asc or desc (default desc)"
// @Success 200 {object} map[string]interface{}
// @Router /voucher-transactions [get]
func (s *VoucherTransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	where := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if v := q.Get("voucher_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			SendServiceError(w, "voucher_id tidak valid", &InvalidInputError{Field: "voucher_id", Reason: "must be an integer"})
			return
		}
		where = append(where, "t.voucher_id = "+arg(id))
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
		SELECT t.id, t.voucher_id, t.tipe, t.jumlah, t.keterangan, t.tanggal, t.created_at,
		       m.id, m.operator, m.jenis_paket, m.stok_saat_ini
		FROM voucher_transactions t
		JOIN master_vouchers m ON m.id = t.voucher_id`
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

	txns := []*models.VoucherTransaction{}
	for rows.Next() {
		txn := &models.VoucherTransaction{Voucher: &models.MasterVoucher{}}
		if err := rows.Scan(&txn.ID, &txn.VoucherID, &txn.Tipe, &txn.Jumlah, &txn.Keterangan,
			&txn.Tanggal, &txn.CreatedAt,
			&txn.Voucher.ID, &txn.Voucher.Operator, &txn.Voucher.PackageName, &txn.Voucher.StokSaatIni); err != nil {
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

// transactionRange resolves a listing window. Explicit bounds win; without
// any bound the window is today unless scope=history asks for everything.
func transactionRange(clk *clock.Clock, dari, sampai, scope string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if dari != "" {
		d, err := clk.ParseDay(dari)
		if err != nil {
			return nil, nil, err
		}
		from = &d
	}
	if sampai != "" {
		d, err := clk.ParseDay(sampai)
		if err != nil {
			return nil, nil, err
		}
		end := clk.DayEnd(d)
		to = &end
	}
	if from == nil && to == nil && scope != "history" {
		start, end := clk.TodayRange()
		from, to = &start, &end
	}
	return from, to, nil
}
