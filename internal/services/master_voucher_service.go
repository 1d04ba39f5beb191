package services

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/models"
)

// MasterVoucherService manages the voucher SKU catalog.
type MasterVoucherService struct {
	db        *sql.DB
	validator *ValidationHelper
	log       *logrus.Logger
}

func NewMasterVoucherService(db *sql.DB) *MasterVoucherService {
	return &MasterVoucherService{
		db:        db,
		validator: NewValidationHelper(),
		log:       logging.GetLogger(),
	}
}

type masterVoucherCreateRequest struct {
	Operator    string `json:"operator" validate:"required,max=100"`
	PackageName string `json:"jenis_paket" validate:"required,max=150"`
	StokAwal    *int64 `json:"stok_awal" validate:"omitempty,gte=0"`
}

type masterVoucherUpdateRequest struct {
	Operator    *string `json:"operator" validate:"omitempty,max=100"`
	PackageName *string `json:"jenis_paket" validate:"omitempty,max=150"`
}

// CreateVoucher adds a voucher SKU to the catalog
// @Summary Create a master voucher
// @Tags master-vouchers
// @Accept json
// @Produce json
// @Param voucher body masterVoucherCreateRequest true "Voucher input"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /master-vouchers [post]
func (s *MasterVoucherService) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req masterVoucherCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "operator dan jenis_paket wajib diisi", http.StatusBadRequest, err)
		return
	}

	var stok int64
	if req.StokAwal != nil {
		stok = *req.StokAwal
	}
	v := &models.MasterVoucher{Operator: req.Operator, PackageName: req.PackageName, StokSaatIni: stok}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO master_vouchers (operator, jenis_paket, stok_saat_ini)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		v.Operator, v.PackageName, v.StokSaatIni,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Voucher dengan operator dan jenis paket ini sudah ada",
				&ConflictError{Message: "duplicate voucher"})
			return
		}
		SendServiceError(w, "Gagal membuat voucher", err)
		return
	}

	s.log.WithFields(logrus.Fields{"voucher_id": v.ID, "operator": v.Operator}).Info("master voucher dibuat")
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Voucher berhasil dibuat",
		"data":    v,
	})
}

// ListVouchers lists the catalog with per-SKU transaction counts
// @Summary List master vouchers
// @Tags master-vouchers
// @Produce json
// @Param operator query string false "Filter by operator name (partial match)"
// @Success 200 {object} map[string]interface{}
// @Router /master-vouchers [get]
func (s *MasterVoucherService) ListVouchers(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT m.id, m.operator, m.jenis_paket, m.stok_saat_ini, m.created_at, m.updated_at,
		       COUNT(t.id) AS transaksi
		FROM master_vouchers m
		LEFT JOIN voucher_transactions t ON t.voucher_id = m.id`
	args := []interface{}{}
	if op := r.URL.Query().Get("operator"); op != "" {
		query += ` WHERE m.operator ILIKE $1`
		args = append(args, "%"+op+"%")
	}
	query += `
		GROUP BY m.id
		ORDER BY m.operator ASC, m.jenis_paket ASC`

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data voucher", err)
		return
	}
	defer rows.Close()

	type voucherWithCount struct {
		models.MasterVoucher
		JumlahTransaksi int `json:"jumlah_transaksi"`
	}
	vouchers := []*voucherWithCount{}
	for rows.Next() {
		v := &voucherWithCount{}
		if err := rows.Scan(&v.ID, &v.Operator, &v.PackageName, &v.StokSaatIni,
			&v.CreatedAt, &v.UpdatedAt, &v.JumlahTransaksi); err != nil {
			SendServiceError(w, "Gagal mengambil data voucher", err)
			return
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data voucher", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    vouchers,
		"total":   len(vouchers),
	})
}

// GetVoucher returns one SKU with its recent transactions
// @Summary Get a master voucher
// @Tags master-vouchers
// @Produce json
// @Param id path int true "Voucher ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /master-vouchers/{id} [get]
func (s *MasterVoucherService) GetVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	v := &models.MasterVoucher{}
	err = s.db.QueryRowContext(r.Context(), `
		SELECT id, operator, jenis_paket, stok_saat_ini, created_at, updated_at
		FROM master_vouchers WHERE id = $1`, id).
		Scan(&v.ID, &v.Operator, &v.PackageName, &v.StokSaatIni, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Voucher tidak ditemukan", &NotFoundError{Resource: "master voucher"})
		return
	}
	if err != nil {
		SendServiceError(w, "Gagal mengambil detail voucher", err)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, voucher_id, tipe, jumlah, keterangan, tanggal, created_at
		FROM voucher_transactions
		WHERE voucher_id = $1
		ORDER BY tanggal DESC, id DESC
		LIMIT 50`, id)
	if err != nil {
		SendServiceError(w, "Gagal mengambil detail voucher", err)
		return
	}
	defer rows.Close()

	txns := []*models.VoucherTransaction{}
	for rows.Next() {
		t := &models.VoucherTransaction{}
		if err := rows.Scan(&t.ID, &t.VoucherID, &t.Tipe, &t.Jumlah, &t.Keterangan,
			&t.Tanggal, &t.CreatedAt); err != nil {
			SendServiceError(w, "Gagal mengambil detail voucher", err)
			return
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil detail voucher", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"voucher":   v,
			"transaksi": txns,
		},
	})
}

// UpdateVoucher changes the catalog fields of a SKU. Stock is never set
// here; it only moves through daily records and transactions.
// @Summary Update a master voucher
// @Tags master-vouchers
// @Accept json
// @Produce json
// @Param id path int true "Voucher ID"
// @Param voucher body masterVoucherUpdateRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /master-vouchers/{id} [put]
func (s *MasterVoucherService) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	var req masterVoucherUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Data tidak valid", http.StatusBadRequest, err)
		return
	}

	v := &models.MasterVoucher{}
	err = s.db.QueryRowContext(r.Context(), `
		UPDATE master_vouchers
		SET operator = COALESCE($1, operator),
		    jenis_paket = COALESCE($2, jenis_paket),
		    updated_at = now()
		WHERE id = $3
		RETURNING id, operator, jenis_paket, stok_saat_ini, created_at, updated_at`,
		req.Operator, req.PackageName, id).
		Scan(&v.ID, &v.Operator, &v.PackageName, &v.StokSaatIni, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Voucher tidak ditemukan", &NotFoundError{Resource: "master voucher"})
		return
	}
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Voucher dengan operator dan jenis paket ini sudah ada",
				&ConflictError{Message: "duplicate voucher"})
			return
		}
		SendServiceError(w, "Gagal update voucher", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Voucher berhasil diupdate",
		"data":    v,
	})
}

// DeleteVoucher removes a SKU and, through FK cascade, its daily records
// and transactions
// @Summary Delete a master voucher
// @Tags master-vouchers
// @Produce json
// @Param id path int true "Voucher ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /master-vouchers/{id} [delete]
func (s *MasterVoucherService) DeleteVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	res, err := s.db.ExecContext(r.Context(), `DELETE FROM master_vouchers WHERE id = $1`, id)
	if err != nil {
		SendServiceError(w, "Gagal menghapus voucher", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		SendServiceError(w, "Voucher tidak ditemukan", &NotFoundError{Resource: "master voucher"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Voucher berhasil dihapus",
	})
}
