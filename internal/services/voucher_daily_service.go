package services

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/clock"
	"github.com/kiostrack/backend/internal/ledger"
	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/models"
)

// VoucherDailyService maintains the per-day voucher stock ledger and keeps
// the master's stok_saat_ini snapshot equal to the latest day's closing
// stock. Every mutation runs as one transaction: the derived-field
// computation, the daily row write and the master update commit together.
type VoucherDailyService struct {
	db        *sql.DB
	clock     *clock.Clock
	validator *ValidationHelper
	log       *logrus.Logger
}

func NewVoucherDailyService(db *sql.DB, clk *clock.Clock) *VoucherDailyService {
	return &VoucherDailyService{
		db:        db,
		clock:     clk,
		validator: NewValidationHelper(),
		log:       logging.GetLogger(),
	}
}

type voucherDailyCreateRequest struct {
	VoucherID int     `json:"voucher_id" validate:"required,gt=0"`
	Tanggal   string  `json:"tanggal" validate:"required"`
	Sisa      *int64  `json:"sisa" validate:"required,gte=0"`
	Masuk     *int64  `json:"masuk" validate:"omitempty,gte=0"`
	Catatan   *string `json:"catatan"`
}

type voucherDailyUpdateRequest struct {
	Sisa     *int64  `json:"sisa" validate:"omitempty,gte=0"`
	Masuk    *int64  `json:"masuk" validate:"omitempty,gte=0"`
	StokAwal *int64  `json:"stok_awal" validate:"omitempty,gte=0"`
	Catatan  *string `json:"catatan"`
}

// CreateDailyStock records a day's stock for a voucher SKU
// @Summary Record daily voucher stock
// @Description Record closing stock for a voucher on a calendar day; opening stock and units sold are derived
// @Tags voucher-daily
// @Accept json
// @Produce json
// @Param record body voucherDailyCreateRequest true "Daily stock input"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /voucher-daily [post]
func (s *VoucherDailyService) CreateDailyStock(w http.ResponseWriter, r *http.Request) {
	var req voucherDailyCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "voucher_id, tanggal, dan sisa wajib diisi", http.StatusBadRequest, err)
		return
	}

	day, err := s.clock.ParseDay(req.Tanggal)
	if err != nil {
		SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "tanggal", Reason: err.Error()})
		return
	}

	rec, created, err := s.recordDay(r.Context(), req.VoucherID, day, *req.Sisa, req.Masuk, req.Catatan)
	if err != nil {
		SendServiceError(w, "Gagal input harian", err)
		return
	}

	status := http.StatusCreated
	message := "Input harian berhasil"
	if !created {
		status = http.StatusOK
		message = "Data harian berhasil diupdate"
	}
	WriteJSON(w, status, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    rec,
	})
}

// recordDay is the reconciliation write path. The first write for
// (voucher, day) inserts a row whose opening stock chains from the latest
// earlier entry (master snapshot when no history). A second write for the
// same day is an update: opening is preserved and supplied fields replace
// the stored ones. Either way the master snapshot is re-derived from the
// latest entry afterwards, inside the same transaction.
func (s *VoucherDailyService) recordDay(ctx context.Context, voucherID int, day time.Time, sisa int64, masuk *int64, catatan *string) (*models.VoucherDailyStock, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	master, err := lockMasterVoucher(tx, voucherID)
	if err != nil {
		return nil, false, err
	}

	existing, err := voucherEntryForDay(tx, voucherID, day)
	if err != nil {
		return nil, false, err
	}

	rec := &models.VoucherDailyStock{VoucherID: voucherID, Tanggal: day}
	created := existing == nil

	var entry ledger.Entry[ledger.Units]
	if created {
		prev, err := voucherClosingBefore(tx, voucherID, day)
		if err != nil {
			return nil, false, err
		}
		opening := ledger.Opening(prev, ledger.Units(master.StokSaatIni))
		inflow := ledger.Units(0)
		if masuk != nil {
			inflow = ledger.Units(*masuk)
		}
		entry = ledger.New(opening, inflow, ledger.Units(sisa))
		if catatan != nil {
			rec.Catatan = *catatan
		}
		err = tx.QueryRow(`
			INSERT INTO voucher_daily_stocks (voucher_id, tanggal, stok_awal, masuk, terjual, sisa, catatan)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at`,
			voucherID, day, int64(entry.Opening), int64(entry.Inflow), int64(entry.Outflow), int64(entry.Closing), rec.Catatan,
		).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, false, &ConflictError{Message: "record untuk voucher dan tanggal ini sudah ada"}
			}
			return nil, false, err
		}
	} else {
		patch := ledger.Patch[ledger.Units]{}
		closing := ledger.Units(sisa)
		patch.Closing = &closing
		if masuk != nil {
			inflow := ledger.Units(*masuk)
			patch.Inflow = &inflow
		}
		entry = ledger.Apply(existing.toLedger(), patch)
		rec.ID = existing.ID
		rec.Catatan = existing.Catatan
		if catatan != nil {
			rec.Catatan = *catatan
		}
		if err := updateVoucherDailyRow(tx, rec.ID, entry, rec.Catatan, rec); err != nil {
			return nil, false, err
		}
	}

	rec.StokAwal = int64(entry.Opening)
	rec.Masuk = int64(entry.Inflow)
	rec.Terjual = int64(entry.Outflow)
	rec.Sisa = int64(entry.Closing)

	if ledger.Overdrawn(entry) {
		s.log.WithFields(logrus.Fields{
			"voucher_id": voucherID,
			"tanggal":    day.Format("2006-01-02"),
			"terjual":    rec.Terjual,
		}).Warn("terjual negatif: sisa melebihi stok awal + masuk")
	}

	if err := propagateVoucherSnapshot(tx, voucherID, rec.ID, rec.Sisa); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// UpdateDailyStock patches one daily record
// @Summary Update a daily voucher stock record
// @Tags voucher-daily
// @Accept json
// @Produce json
// @Param id path int true "Record ID"
// @Param record body voucherDailyUpdateRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /voucher-daily/{id} [put]
func (s *VoucherDailyService) UpdateDailyStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	var req voucherDailyUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	rec, err := s.updateDay(r.Context(), id, req)
	if err != nil {
		SendServiceError(w, "Gagal update data harian", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Data harian berhasil diupdate",
		"data":    rec,
	})
}

func (s *VoucherDailyService) updateDay(ctx context.Context, id int, req voucherDailyUpdateRequest) (*models.VoucherDailyStock, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := voucherEntryByID(tx, id)
	if err != nil {
		return nil, err
	}

	patch := ledger.Patch[ledger.Units]{}
	if req.StokAwal != nil {
		v := ledger.Units(*req.StokAwal)
		patch.Opening = &v
	}
	if req.Masuk != nil {
		v := ledger.Units(*req.Masuk)
		patch.Inflow = &v
	}
	if req.Sisa != nil {
		v := ledger.Units(*req.Sisa)
		patch.Closing = &v
	}
	entry := ledger.Apply(existing.toLedger(), patch)

	rec := &models.VoucherDailyStock{
		ID:        existing.ID,
		VoucherID: existing.VoucherID,
		Tanggal:   existing.Tanggal,
		StokAwal:  int64(entry.Opening),
		Masuk:     int64(entry.Inflow),
		Terjual:   int64(entry.Outflow),
		Sisa:      int64(entry.Closing),
		Catatan:   existing.Catatan,
	}
	if req.Catatan != nil {
		rec.Catatan = *req.Catatan
	}

	if err := updateVoucherDailyRow(tx, rec.ID, entry, rec.Catatan, rec); err != nil {
		return nil, err
	}

	if ledger.Overdrawn(entry) {
		s.log.WithFields(logrus.Fields{
			"voucher_id": rec.VoucherID,
			"daily_id":   rec.ID,
			"terjual":    rec.Terjual,
		}).Warn("terjual negatif: sisa melebihi stok awal + masuk")
	}

	if err := propagateVoucherSnapshot(tx, rec.VoucherID, rec.ID, rec.Sisa); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteDailyStock removes a daily record
// @Summary Delete a daily voucher stock record
// @Description Removes the record and re-derives the master snapshot from the newest remaining day
// @Tags voucher-daily
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /voucher-daily/{id} [delete]
func (s *VoucherDailyService) DeleteDailyStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	if err := s.deleteDay(r.Context(), id); err != nil {
		SendServiceError(w, "Gagal hapus data harian", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Data harian berhasil dihapus",
	})
}

func (s *VoucherDailyService) deleteDay(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := voucherEntryByID(tx, id)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM voucher_daily_stocks WHERE id = $1`, id); err != nil {
		return err
	}

	// Snapshot follows the newest remaining day. With no history left the
	// master keeps its last known value.
	var latestID int
	var latestSisa int64
	err = tx.QueryRow(`
		SELECT id, sisa FROM voucher_daily_stocks
		WHERE voucher_id = $1
		ORDER BY tanggal DESC, id DESC
		LIMIT 1`, existing.VoucherID).Scan(&latestID, &latestSisa)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(`UPDATE master_vouchers SET stok_saat_ini = $1, updated_at = now() WHERE id = $2`,
			latestSisa, existing.VoucherID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListDailyStock lists daily records, newest first
// @Summary List daily voucher stock records
// @Tags voucher-daily
// @Produce json
// @Param operator query string false "Filter by operator name (substring match)"
// @Param date query string false "Filter by day (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Router /voucher-daily [get]
func (s *VoucherDailyService) ListDailyStock(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT d.id, d.voucher_id, d.tanggal, d.stok_awal, d.masuk, d.terjual, d.sisa, d.catatan,
		       d.created_at, d.updated_at,
		       m.id, m.operator, m.jenis_paket, m.stok_saat_ini
		FROM voucher_daily_stocks d
		JOIN master_vouchers m ON m.id = d.voucher_id`
	conds := []string{}
	args := []interface{}{}

	if op := r.URL.Query().Get("operator"); op != "" {
		args = append(args, "%"+op+"%")
		conds = append(conds, "m.operator ILIKE $"+strconv.Itoa(len(args)))
	}
	if date := r.URL.Query().Get("date"); date != "" {
		day, err := s.clock.ParseDay(date)
		if err != nil {
			SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "date", Reason: err.Error()})
			return
		}
		args = append(args, day)
		conds = append(conds, "d.tanggal = $"+strconv.Itoa(len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY d.tanggal DESC, d.id DESC"

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data harian", err)
		return
	}
	defer rows.Close()

	records := []*models.VoucherDailyStock{}
	for rows.Next() {
		rec, err := scanVoucherDailyJoined(rows)
		if err != nil {
			SendServiceError(w, "Gagal mengambil data harian", err)
			return
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data harian", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    records,
		"total":   len(records),
	})
}

// GetDailyStock returns one daily record with its master voucher
// @Summary Get a daily voucher stock record
// @Tags voucher-daily
// @Produce json
// @Param id path int true "Record ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /voucher-daily/{id} [get]
func (s *VoucherDailyService) GetDailyStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	row := s.db.QueryRowContext(r.Context(), `
		SELECT d.id, d.voucher_id, d.tanggal, d.stok_awal, d.masuk, d.terjual, d.sisa, d.catatan,
		       d.created_at, d.updated_at,
		       m.id, m.operator, m.jenis_paket, m.stok_saat_ini
		FROM voucher_daily_stocks d
		JOIN master_vouchers m ON m.id = d.voucher_id
		WHERE d.id = $1`, id)
	rec, err := scanVoucherDailyJoined(row)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Data tidak ditemukan", &NotFoundError{Resource: "daily stock record"})
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

// ListByVoucher lists daily records for one voucher SKU
// @Summary List daily records for a voucher
// @Tags voucher-daily
// @Produce json
// @Param voucher_id path int true "Master voucher ID"
// @Success 200 {object} map[string]interface{}
// @Router /voucher-daily/by-voucher/{voucher_id} [get]
func (s *VoucherDailyService) ListByVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.Atoi(chi.URLParam(r, "voucher_id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "voucher_id", Reason: "must be an integer"})
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, voucher_id, tanggal, stok_awal, masuk, terjual, sisa, catatan, created_at, updated_at
		FROM voucher_daily_stocks
		WHERE voucher_id = $1
		ORDER BY tanggal DESC, id DESC`, voucherID)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data", err)
		return
	}
	defer rows.Close()

	records := []*models.VoucherDailyStock{}
	for rows.Next() {
		rec := &models.VoucherDailyStock{}
		if err := rows.Scan(&rec.ID, &rec.VoucherID, &rec.Tanggal, &rec.StokAwal, &rec.Masuk,
			&rec.Terjual, &rec.Sisa, &rec.Catatan, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
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

type voucherMasterRow struct {
	ID          int
	StokSaatIni int64
}

func lockMasterVoucher(tx *sql.Tx, id int) (*voucherMasterRow, error) {
	m := &voucherMasterRow{}
	err := tx.QueryRow(`SELECT id, stok_saat_ini FROM master_vouchers WHERE id = $1 FOR UPDATE`, id).
		Scan(&m.ID, &m.StokSaatIni)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "master voucher"}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type voucherDailyRow struct {
	ID        int
	VoucherID int
	Tanggal   time.Time
	StokAwal  int64
	Masuk     int64
	Terjual   int64
	Sisa      int64
	Catatan   string
}

func (r *voucherDailyRow) toLedger() ledger.Entry[ledger.Units] {
	return ledger.Entry[ledger.Units]{
		Opening: ledger.Units(r.StokAwal),
		Inflow:  ledger.Units(r.Masuk),
		Outflow: ledger.Units(r.Terjual),
		Closing: ledger.Units(r.Sisa),
	}
}

func voucherEntryForDay(tx *sql.Tx, voucherID int, day time.Time) (*voucherDailyRow, error) {
	r := &voucherDailyRow{}
	err := tx.QueryRow(`
		SELECT id, voucher_id, tanggal, stok_awal, masuk, terjual, sisa, catatan
		FROM voucher_daily_stocks
		WHERE voucher_id = $1 AND tanggal = $2`, voucherID, day).
		Scan(&r.ID, &r.VoucherID, &r.Tanggal, &r.StokAwal, &r.Masuk, &r.Terjual, &r.Sisa, &r.Catatan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func voucherEntryByID(tx *sql.Tx, id int) (*voucherDailyRow, error) {
	r := &voucherDailyRow{}
	err := tx.QueryRow(`
		SELECT id, voucher_id, tanggal, stok_awal, masuk, terjual, sisa, catatan
		FROM voucher_daily_stocks
		WHERE id = $1`, id).
		Scan(&r.ID, &r.VoucherID, &r.Tanggal, &r.StokAwal, &r.Masuk, &r.Terjual, &r.Sisa, &r.Catatan)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "daily stock record"}
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// voucherClosingBefore finds the closing stock of the latest entry strictly
// before day. Nil when no earlier history exists.
func voucherClosingBefore(tx *sql.Tx, voucherID int, day time.Time) (*ledger.Units, error) {
	var sisa int64
	err := tx.QueryRow(`
		SELECT sisa FROM voucher_daily_stocks
		WHERE voucher_id = $1 AND tanggal < $2
		ORDER BY tanggal DESC, id DESC
		LIMIT 1`, voucherID, day).Scan(&sisa)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := ledger.Units(sisa)
	return &u, nil
}

func updateVoucherDailyRow(tx *sql.Tx, id int, e ledger.Entry[ledger.Units], catatan string, rec *models.VoucherDailyStock) error {
	return tx.QueryRow(`
		UPDATE voucher_daily_stocks
		SET stok_awal = $1, masuk = $2, terjual = $3, sisa = $4, catatan = $5, updated_at = now()
		WHERE id = $6
		RETURNING created_at, updated_at`,
		int64(e.Opening), int64(e.Inflow), int64(e.Outflow), int64(e.Closing), catatan, id).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// propagateVoucherSnapshot re-derives the latest entry for the voucher and,
// when the just-written row is that entry, copies its closing stock onto
// the master snapshot. Ordering: day descending, then id descending.
func propagateVoucherSnapshot(tx *sql.Tx, voucherID, writtenID int, sisa int64) error {
	var latestID int
	err := tx.QueryRow(`
		SELECT id FROM voucher_daily_stocks
		WHERE voucher_id = $1
		ORDER BY tanggal DESC, id DESC
		LIMIT 1`, voucherID).Scan(&latestID)
	if err != nil {
		return err
	}
	if latestID != writtenID {
		return nil
	}
	_, err = tx.Exec(`UPDATE master_vouchers SET stok_saat_ini = $1, updated_at = now() WHERE id = $2`,
		sisa, voucherID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVoucherDailyJoined(row rowScanner) (*models.VoucherDailyStock, error) {
	rec := &models.VoucherDailyStock{Voucher: &models.MasterVoucher{}}
	err := row.Scan(&rec.ID, &rec.VoucherID, &rec.Tanggal, &rec.StokAwal, &rec.Masuk, &rec.Terjual,
		&rec.Sisa, &rec.Catatan, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.Voucher.ID, &rec.Voucher.Operator, &rec.Voucher.PackageName, &rec.Voucher.StokSaatIni)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
