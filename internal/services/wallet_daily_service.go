package services

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/clock"
	"github.com/kiostrack/backend/internal/ledger"
	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/models"
)

// WalletDailyService is the wallet-float twin of VoucherDailyService: same
// reconciliation law, decimal rupiah amounts, keluar derived from
// saldo_awal + masuk - sisa.
type WalletDailyService struct {
	db        *sql.DB
	clock     *clock.Clock
	validator *ValidationHelper
	log       *logrus.Logger
}

func NewWalletDailyService(db *sql.DB, clk *clock.Clock) *WalletDailyService {
	return &WalletDailyService{
		db:        db,
		clock:     clk,
		validator: NewValidationHelper(),
		log:       logging.GetLogger(),
	}
}

type walletDailyCreateRequest struct {
	WalletID int              `json:"wallet_id" validate:"required,gt=0"`
	Tanggal  string           `json:"tanggal" validate:"required"`
	Sisa     *decimal.Decimal `json:"sisa" validate:"required"`
	Masuk    *decimal.Decimal `json:"masuk"`
	Catatan  *string          `json:"catatan"`
}

type walletDailyUpdateRequest struct {
	Sisa      *decimal.Decimal `json:"sisa"`
	Masuk     *decimal.Decimal `json:"masuk"`
	SaldoAwal *decimal.Decimal `json:"saldo_awal"`
	Catatan   *string          `json:"catatan"`
}

// CreateDailyBalance records a day's balance for a wallet
// @Summary Record daily wallet balance
// @Description Record closing balance for a wallet on a calendar day; opening balance and keluar are derived
// @Tags wallet-daily
// @Accept json
// @Produce json
// @Param record body walletDailyCreateRequest true "Daily balance input"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-daily [post]
func (s *WalletDailyService) CreateDailyBalance(w http.ResponseWriter, r *http.Request) {
	var req walletDailyCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "wallet_id, tanggal, dan sisa wajib diisi", http.StatusBadRequest, err)
		return
	}
	if req.Sisa.IsNegative() {
		SendServiceError(w, "sisa tidak boleh negatif", &InvalidInputError{Field: "sisa", Reason: "must not be negative"})
		return
	}
	if req.Masuk != nil && req.Masuk.IsNegative() {
		SendServiceError(w, "masuk tidak boleh negatif", &InvalidInputError{Field: "masuk", Reason: "must not be negative"})
		return
	}

	day, err := s.clock.ParseDay(req.Tanggal)
	if err != nil {
		SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "tanggal", Reason: err.Error()})
		return
	}

	rec, created, err := s.recordDay(r.Context(), req.WalletID, day, *req.Sisa, req.Masuk, req.Catatan)
	if err != nil {
		SendServiceError(w, "Gagal input harian wallet", err)
		return
	}

	status := http.StatusCreated
	message := "Input harian wallet berhasil"
	if !created {
		status = http.StatusOK
		message = "Data harian wallet berhasil diupdate"
	}
	WriteJSON(w, status, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    rec,
	})
}

func (s *WalletDailyService) recordDay(ctx context.Context, walletID int, day time.Time, sisa decimal.Decimal, masuk *decimal.Decimal, catatan *string) (*models.WalletDailyStock, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	master, err := lockMasterWallet(tx, walletID)
	if err != nil {
		return nil, false, err
	}

	existing, err := walletEntryForDay(tx, walletID, day)
	if err != nil {
		return nil, false, err
	}

	rec := &models.WalletDailyStock{WalletID: walletID, Tanggal: day}
	created := existing == nil

	var entry ledger.Entry[decimal.Decimal]
	if created {
		prev, err := walletClosingBefore(tx, walletID, day)
		if err != nil {
			return nil, false, err
		}
		opening := ledger.Opening(prev, master.SaldoSaatIni)
		inflow := decimal.Zero
		if masuk != nil {
			inflow = *masuk
		}
		entry = ledger.New(opening, inflow, sisa)
		if catatan != nil {
			rec.Catatan = *catatan
		}
		err = tx.QueryRow(`
			INSERT INTO wallet_daily_stocks (wallet_id, tanggal, saldo_awal, masuk, keluar, sisa, catatan)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at`,
			walletID, day, entry.Opening, entry.Inflow, entry.Outflow, entry.Closing, rec.Catatan,
		).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, false, &ConflictError{Message: "sudah ada input harian untuk wallet dan tanggal ini"}
			}
			return nil, false, err
		}
	} else {
		patch := ledger.Patch[decimal.Decimal]{Closing: &sisa}
		if masuk != nil {
			patch.Inflow = masuk
		}
		entry = ledger.Apply(existing.toLedger(), patch)
		rec.ID = existing.ID
		rec.Catatan = existing.Catatan
		if catatan != nil {
			rec.Catatan = *catatan
		}
		if err := updateWalletDailyRow(tx, rec.ID, entry, rec.Catatan, rec); err != nil {
			return nil, false, err
		}
	}

	rec.SaldoAwal = entry.Opening
	rec.Masuk = entry.Inflow
	rec.Keluar = entry.Outflow
	rec.Sisa = entry.Closing

	if ledger.Overdrawn(entry) {
		s.log.WithFields(logrus.Fields{
			"wallet_id": walletID,
			"tanggal":   day.Format("2006-01-02"),
			"keluar":    rec.Keluar.String(),
		}).Warn("keluar negatif: sisa melebihi saldo awal + masuk")
	}

	if err := propagateWalletSnapshot(tx, walletID, rec.ID, rec.Sisa); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// UpdateDailyBalance patches one daily record. Supplying saldo_awal is an
// opening correction: keluar is preserved and sisa recomputed. Otherwise
// saldo_awal is preserved and keluar re-solved from masuk/sisa.
// @Summary Update a daily wallet balance record
// @Tags wallet-daily
// @Accept json
// @Produce json
// @Param id path int true "Record ID"
// @Param record body walletDailyUpdateRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-daily/{id} [put]
func (s *WalletDailyService) UpdateDailyBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	var req walletDailyUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	for field, v := range map[string]*decimal.Decimal{"sisa": req.Sisa, "masuk": req.Masuk, "saldo_awal": req.SaldoAwal} {
		if v != nil && v.IsNegative() {
			SendServiceError(w, field+" tidak boleh negatif", &InvalidInputError{Field: field, Reason: "must not be negative"})
			return
		}
	}

	rec, err := s.updateDay(r.Context(), id, req)
	if err != nil {
		SendServiceError(w, "Gagal update data harian wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Data harian wallet berhasil diupdate",
		"data":    rec,
	})
}

func (s *WalletDailyService) updateDay(ctx context.Context, id int, req walletDailyUpdateRequest) (*models.WalletDailyStock, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := walletEntryByID(tx, id)
	if err != nil {
		return nil, err
	}

	patch := ledger.Patch[decimal.Decimal]{
		Opening: req.SaldoAwal,
		Inflow:  req.Masuk,
		Closing: req.Sisa,
	}
	entry := ledger.Apply(existing.toLedger(), patch)

	rec := &models.WalletDailyStock{
		ID:        existing.ID,
		WalletID:  existing.WalletID,
		Tanggal:   existing.Tanggal,
		SaldoAwal: entry.Opening,
		Masuk:     entry.Inflow,
		Keluar:    entry.Outflow,
		Sisa:      entry.Closing,
		Catatan:   existing.Catatan,
	}
	if req.Catatan != nil {
		rec.Catatan = *req.Catatan
	}

	if err := updateWalletDailyRow(tx, rec.ID, entry, rec.Catatan, rec); err != nil {
		return nil, err
	}

	if ledger.Overdrawn(entry) {
		s.log.WithFields(logrus.Fields{
			"wallet_id": rec.WalletID,
			"daily_id":  rec.ID,
			"keluar":    rec.Keluar.String(),
		}).Warn("keluar negatif: sisa melebihi saldo awal + masuk")
	}

	if err := propagateWalletSnapshot(tx, rec.WalletID, rec.ID, rec.Sisa); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteDailyBalance removes a daily record
// @Summary Delete a daily wallet balance record
// @Tags wallet-daily
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-daily/{id} [delete]
func (s *WalletDailyService) DeleteDailyBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	if err := s.deleteDay(r.Context(), id); err != nil {
		SendServiceError(w, "Gagal hapus data harian wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Data harian wallet berhasil dihapus",
	})
}

func (s *WalletDailyService) deleteDay(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := walletEntryByID(tx, id)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM wallet_daily_stocks WHERE id = $1`, id); err != nil {
		return err
	}

	var latestID int
	var latestSisa decimal.Decimal
	err = tx.QueryRow(`
		SELECT id, sisa FROM wallet_daily_stocks
		WHERE wallet_id = $1
		ORDER BY tanggal DESC, id DESC
		LIMIT 1`, existing.WalletID).Scan(&latestID, &latestSisa)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(`UPDATE master_wallets SET saldo_saat_ini = $1, updated_at = now() WHERE id = $2`,
			latestSisa, existing.WalletID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListDailyBalance lists daily wallet records, newest first
// @Summary List daily wallet balance records
// @Tags wallet-daily
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /wallet-daily [get]
func (s *WalletDailyService) ListDailyBalance(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT d.id, d.wallet_id, d.tanggal, d.saldo_awal, d.masuk, d.keluar, d.sisa, d.catatan,
		       d.created_at, d.updated_at,
		       m.id, m.nama_wallet, m.saldo_saat_ini
		FROM wallet_daily_stocks d
		JOIN master_wallets m ON m.id = d.wallet_id
		ORDER BY d.tanggal DESC, d.id DESC`)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data harian wallet", err)
		return
	}
	defer rows.Close()

	records := []*models.WalletDailyStock{}
	for rows.Next() {
		rec, err := scanWalletDailyJoined(rows)
		if err != nil {
			SendServiceError(w, "Gagal mengambil data harian wallet", err)
			return
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data harian wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    records,
		"total":   len(records),
	})
}

// GetDailyBalance returns one daily record with its master wallet
// @Summary Get a daily wallet balance record
// @Tags wallet-daily
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-daily/{id} [get]
func (s *WalletDailyService) GetDailyBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	row := s.db.QueryRowContext(r.Context(), `
		SELECT d.id, d.wallet_id, d.tanggal, d.saldo_awal, d.masuk, d.keluar, d.sisa, d.catatan,
		       d.created_at, d.updated_at,
		       m.id, m.nama_wallet, m.saldo_saat_ini
		FROM wallet_daily_stocks d
		JOIN master_wallets m ON m.id = d.wallet_id
		WHERE d.id = $1`, id)
	rec, err := scanWalletDailyJoined(row)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Data tidak ditemukan", &NotFoundError{Resource: "daily wallet record"})
		return
	}
	if err != nil {
		SendServiceError(w, "Gagal mengambil detail data", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    rec,
	})
}

// ListByWallet lists daily records for one wallet
// @Summary List daily records for a wallet
// @Tags wallet-daily
// @Produce json
// @Param wallet_id path int true "Master wallet ID"
// @Success 200 {object} map[string]interface{}
// @Router /wallet-daily/by-wallet/{wallet_id} [get]
func (s *WalletDailyService) ListByWallet(w http.ResponseWriter, r *http.Request) {
	walletID, err := strconv.Atoi(chi.URLParam(r, "wallet_id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "wallet_id", Reason: "must be an integer"})
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, wallet_id, tanggal, saldo_awal, masuk, keluar, sisa, catatan, created_at, updated_at
		FROM wallet_daily_stocks
		WHERE wallet_id = $1
		ORDER BY tanggal DESC, id DESC`, walletID)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data", err)
		return
	}
	defer rows.Close()

	records := []*models.WalletDailyStock{}
	for rows.Next() {
		rec := &models.WalletDailyStock{}
		if err := rows.Scan(&rec.ID, &rec.WalletID, &rec.Tanggal, &rec.SaldoAwal, &rec.Masuk,
			&rec.Keluar, &rec.Sisa, &rec.Catatan, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			SendServiceError(w, "Gagal mengambil data", err)
			return
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    records,
	})
}

// --- SQL helpers ---

type walletMasterRow struct {
	ID           int
	SaldoSaatIni decimal.Decimal
}

func lockMasterWallet(tx *sql.Tx, id int) (*walletMasterRow, error) {
	m := &walletMasterRow{}
	err := tx.QueryRow(`SELECT id, saldo_saat_ini FROM master_wallets WHERE id = $1 FOR UPDATE`, id).
		Scan(&m.ID, &m.SaldoSaatIni)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "master wallet"}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type walletDailyRow struct {
	ID        int
	WalletID  int
	Tanggal   time.Time
	SaldoAwal decimal.Decimal
	Masuk     decimal.Decimal
	Keluar    decimal.Decimal
	Sisa      decimal.Decimal
	Catatan   string
}

func (r *walletDailyRow) toLedger() ledger.Entry[decimal.Decimal] {
	return ledger.Entry[decimal.Decimal]{
		Opening: r.SaldoAwal,
		Inflow:  r.Masuk,
		Outflow: r.Keluar,
		Closing: r.Sisa,
	}
}

func walletEntryForDay(tx *sql.Tx, walletID int, day time.Time) (*walletDailyRow, error) {
	r := &walletDailyRow{}
	err := tx.QueryRow(`
		SELECT id, wallet_id, tanggal, saldo_awal, masuk, keluar, sisa, catatan
		FROM wallet_daily_stocks
		WHERE wallet_id = $1 AND tanggal = $2`, walletID, day).
		Scan(&r.ID, &r.WalletID, &r.Tanggal, &r.SaldoAwal, &r.Masuk, &r.Keluar, &r.Sisa, &r.Catatan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func walletEntryByID(tx *sql.Tx, id int) (*walletDailyRow, error) {
	r := &walletDailyRow{}
	err := tx.QueryRow(`
		SELECT id, wallet_id, tanggal, saldo_awal, masuk, keluar, sisa, catatan
		FROM wallet_daily_stocks
		WHERE id = $1`, id).
		Scan(&r.ID, &r.WalletID, &r.Tanggal, &r.SaldoAwal, &r.Masuk, &r.Keluar, &r.Sisa, &r.Catatan)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "daily wallet record"}
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func walletClosingBefore(tx *sql.Tx, walletID int, day time.Time) (*decimal.Decimal, error) {
	var sisa decimal.Decimal
	err := tx.QueryRow(`
		SELECT sisa FROM wallet_daily_stocks
		WHERE wallet_id = $1 AND tanggal < $2
		ORDER BY tanggal DESC, id DESC
		LIMIT 1`, walletID, day).Scan(&sisa)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sisa, nil
}

func updateWalletDailyRow(tx *sql.Tx, id int, e ledger.Entry[decimal.Decimal], catatan string, rec *models.WalletDailyStock) error {
	return tx.QueryRow(`
		UPDATE wallet_daily_stocks
		SET saldo_awal = $1, masuk = $2, keluar = $3, sisa = $4, catatan = $5, updated_at = now()
		WHERE id = $6
		RETURNING created_at, updated_at`,
		e.Opening, e.Inflow, e.Outflow, e.Closing, catatan, id).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func propagateWalletSnapshot(tx *sql.Tx, walletID, writtenID int, sisa decimal.Decimal) error {
	var latestID int
	err := tx.QueryRow(`
		SELECT id FROM wallet_daily_stocks
		WHERE wallet_id = $1
		ORDER BY tanggal DESC, id DESC
		LIMIT 1`, walletID).Scan(&latestID)
	if err != nil {
		return err
	}
	if latestID != writtenID {
		return nil
	}
	_, err = tx.Exec(`UPDATE master_wallets SET saldo_saat_ini = $1, updated_at = now() WHERE id = $2`,
		sisa, walletID)
	return err
}

func scanWalletDailyJoined(row rowScanner) (*models.WalletDailyStock, error) {
	rec := &models.WalletDailyStock{Wallet: &models.MasterWallet{}}
	err := row.Scan(&rec.ID, &rec.WalletID, &rec.Tanggal, &rec.SaldoAwal, &rec.Masuk, &rec.Keluar,
		&rec.Sisa, &rec.Catatan, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.Wallet.ID, &rec.Wallet.NamaWallet, &rec.Wallet.SaldoSaatIni)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
