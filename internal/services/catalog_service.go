package services

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiostrack/backend/internal/models"
)

// CatalogService serves the small lookup tables: operators for classifying
// voucher SKUs and wallet types for the shop's e-wallet accounts. Both are
// deactivated rather than deleted so history keeps its labels.
type CatalogService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db, validator: NewValidationHelper()}
}

type operatorCreateRequest struct {
	Nama string `json:"nama" validate:"required,max=50"`
	Kode string `json:"kode" validate:"omitempty,max=10"`
}

type operatorUpdateRequest struct {
	Nama  *string `json:"nama" validate:"omitempty,max=50"`
	Kode  *string `json:"kode" validate:"omitempty,max=10"`
	Aktif *bool   `json:"aktif"`
}

type walletTypeCreateRequest struct {
	Nama    string `json:"nama" validate:"required,max=50"`
	NomorHP string `json:"nomor_hp" validate:"omitempty,max=20"`
}

type walletTypeUpdateRequest struct {
	Nama    *string `json:"nama" validate:"omitempty,max=50"`
	NomorHP *string `json:"nomor_hp" validate:"omitempty,max=20"`
	Aktif   *bool   `json:"aktif"`
}

// operatorCode derives a code from the name: uppercase, spaces stripped,
// capped at 10 characters. The cap counts runes so a non-ASCII name is
// never cut mid-character.
func operatorCode(nama string) string {
	code := strings.ToUpper(strings.ReplaceAll(nama, " ", ""))
	if runes := []rune(code); len(runes) > 10 {
		code = string(runes[:10])
	}
	return code
}

// CreateOperator adds a mobile operator
// @Summary Create an operator
// @Tags catalog
// @Accept json
// @Produce json
// @Param operator body operatorCreateRequest true "Operator input"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} services.ErrorResponse
// @Router /operators [post]
func (s *CatalogService) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req operatorCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "nama wajib diisi", http.StatusBadRequest, err)
		return
	}

	kode := req.Kode
	if kode == "" {
		kode = operatorCode(req.Nama)
	}

	op := &models.Operator{Nama: req.Nama, Kode: kode, Aktif: true}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO operators (nama, kode, aktif)
		VALUES ($1, $2, true)
		RETURNING id, created_at`, op.Nama, op.Kode).
		Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Nama atau kode operator sudah digunakan", &ConflictError{Message: "duplicate operator"})
			return
		}
		SendServiceError(w, "Gagal membuat operator", err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Operator berhasil dibuat",
		"data":    op,
	})
}

// ListOperators lists active operators
// @Summary List operators
// @Tags catalog
// @Produce json
// @Param all query bool false "Include deactivated operators"
// @Success 200 {object} map[string]interface{}
// @Router /operators [get]
func (s *CatalogService) ListOperators(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, nama, kode, aktif, created_at FROM operators`
	if r.URL.Query().Get("all") != "true" {
		query += ` WHERE aktif = true`
	}
	query += ` ORDER BY nama ASC`

	rows, err := s.db.QueryContext(r.Context(), query)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data operator", err)
		return
	}
	defer rows.Close()

	operators := []*models.Operator{}
	for rows.Next() {
		op := &models.Operator{}
		if err := rows.Scan(&op.ID, &op.Nama, &op.Kode, &op.Aktif, &op.CreatedAt); err != nil {
			SendServiceError(w, "Gagal mengambil data operator", err)
			return
		}
		operators = append(operators, op)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data operator", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    operators,
		"total":   len(operators),
	})
}

// UpdateOperator patches an operator's fields, including reactivation
// @Summary Update an operator
// @Tags catalog
// @Accept json
// @Produce json
// @Param id path int true "Operator ID"
// @Param operator body operatorUpdateRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /operators/{id} [put]
func (s *CatalogService) UpdateOperator(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	var req operatorUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Data tidak valid", http.StatusBadRequest, err)
		return
	}

	op := &models.Operator{}
	err = s.db.QueryRowContext(r.Context(), `
		UPDATE operators
		SET nama = COALESCE($1, nama),
		    kode = COALESCE($2, kode),
		    aktif = COALESCE($3, aktif)
		WHERE id = $4
		RETURNING id, nama, kode, aktif, created_at`,
		req.Nama, req.Kode, req.Aktif, id).
		Scan(&op.ID, &op.Nama, &op.Kode, &op.Aktif, &op.CreatedAt)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Operator tidak ditemukan", &NotFoundError{Resource: "operator"})
		return
	}
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Nama atau kode operator sudah digunakan", &ConflictError{Message: "duplicate operator"})
			return
		}
		SendServiceError(w, "Gagal update operator", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Operator berhasil diupdate",
		"data":    op,
	})
}

// DeactivateOperator soft-deletes an operator
// @Summary Deactivate an operator
// @Tags catalog
// @Produce json
// @Param id path int true "Operator ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /operators/{id} [delete]
func (s *CatalogService) DeactivateOperator(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	res, err := s.db.ExecContext(r.Context(), `UPDATE operators SET aktif = false WHERE id = $1`, id)
	if err != nil {
		SendServiceError(w, "Gagal menonaktifkan operator", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		SendServiceError(w, "Operator tidak ditemukan", &NotFoundError{Resource: "operator"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Operator berhasil dinonaktifkan",
	})
}

// CreateWalletType registers an e-wallet provider
// @Summary Create a wallet type
// @Tags catalog
// @Accept json
// @Produce json
// @Param walletType body walletTypeCreateRequest true "Wallet type input"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} services.ErrorResponse
// @Router /wallet-types [post]
func (s *CatalogService) CreateWalletType(w http.ResponseWriter, r *http.Request) {
	var req walletTypeCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "nama wajib diisi", http.StatusBadRequest, err)
		return
	}

	wt := &models.WalletType{Nama: req.Nama, NomorHP: req.NomorHP, Aktif: true}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO wallet_types (nama, nomor_hp, aktif)
		VALUES ($1, $2, true)
		RETURNING id, created_at`, wt.Nama, wt.NomorHP).
		Scan(&wt.ID, &wt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Jenis wallet dengan nama ini sudah ada", &ConflictError{Message: "duplicate wallet type"})
			return
		}
		SendServiceError(w, "Gagal membuat jenis wallet", err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Jenis wallet berhasil dibuat",
		"data":    wt,
	})
}

// ListWalletTypes lists active wallet types
// @Summary List wallet types
// @Tags catalog
// @Produce json
// @Param all query bool false "Include deactivated wallet types"
// @Success 200 {object} map[string]interface{}
// @Router /wallet-types [get]
func (s *CatalogService) ListWalletTypes(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, nama, nomor_hp, aktif, created_at FROM wallet_types`
	if r.URL.Query().Get("all") != "true" {
		query += ` WHERE aktif = true`
	}
	query += ` ORDER BY nama ASC`

	rows, err := s.db.QueryContext(r.Context(), query)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data jenis wallet", err)
		return
	}
	defer rows.Close()

	types := []*models.WalletType{}
	for rows.Next() {
		wt := &models.WalletType{}
		if err := rows.Scan(&wt.ID, &wt.Nama, &wt.NomorHP, &wt.Aktif, &wt.CreatedAt); err != nil {
			SendServiceError(w, "Gagal mengambil data jenis wallet", err)
			return
		}
		types = append(types, wt)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data jenis wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    types,
		"total":   len(types),
	})
}

// UpdateWalletType patches a wallet type's fields, including reactivation
// @Summary Update a wallet type
// @Tags catalog
// @Accept json
// @Produce json
// @Param id path int true "Wallet type ID"
// @Param walletType body walletTypeUpdateRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /wallet-types/{id} [put]
func (s *CatalogService) UpdateWalletType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	var req walletTypeUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Data tidak valid", http.StatusBadRequest, err)
		return
	}

	wt := &models.WalletType{}
	err = s.db.QueryRowContext(r.Context(), `
		UPDATE wallet_types
		SET nama = COALESCE($1, nama),
		    nomor_hp = COALESCE($2, nomor_hp),
		    aktif = COALESCE($3, aktif)
		WHERE id = $4
		RETURNING id, nama, nomor_hp, aktif, created_at`,
		req.Nama, req.NomorHP, req.Aktif, id).
		Scan(&wt.ID, &wt.Nama, &wt.NomorHP, &wt.Aktif, &wt.CreatedAt)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Jenis wallet tidak ditemukan", &NotFoundError{Resource: "wallet type"})
		return
	}
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Jenis wallet dengan nama ini sudah ada", &ConflictError{Message: "duplicate wallet type"})
			return
		}
		SendServiceError(w, "Gagal update jenis wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Jenis wallet berhasil diupdate",
		"data":    wt,
	})
}

// DeactivateWalletType soft-deletes a wallet type
// @Summary Deactivate a wallet type
// @Tags catalog
// @Produce json
// @Param id path int true "Wallet type ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet-types/{id} [delete]
func (s *CatalogService) DeactivateWalletType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	res, err := s.db.ExecContext(r.Context(), `UPDATE wallet_types SET aktif = false WHERE id = $1`, id)
	if err != nil {
		SendServiceError(w, "Gagal menonaktifkan jenis wallet", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		SendServiceError(w, "Jenis wallet tidak ditemukan", &NotFoundError{Resource: "wallet type"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Jenis wallet berhasil dinonaktifkan",
	})
}
