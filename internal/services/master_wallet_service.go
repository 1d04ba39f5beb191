package services

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/logging"
	"github.com/kiostrack/backend/internal/models"
)

// MasterWalletService manages the e-wallet account catalog.
type MasterWalletService struct {
	db        *sql.DB
	validator *ValidationHelper
	log       *logrus.Logger
}

func NewMasterWalletService(db *sql.DB) *MasterWalletService {
	return &MasterWalletService{
		db:        db,
		validator: NewValidationHelper(),
		log:       logging.GetLogger(),
	}
}

type masterWalletCreateRequest struct {
	NamaWallet string           `json:"nama_wallet" validate:"required,max=100"`
	SaldoAwal  *decimal.Decimal `json:"saldo_awal"`
}

type masterWalletUpdateRequest struct {
	NamaWallet *string `json:"nama_wallet" validate:"omitempty,max=100"`
}

// CreateWallet registers an e-wallet account
// @Summary Create a master wallet
// @Tags master-wallets
// @Accept json
// @Produce json
// @Param wallet body masterWalletCreateRequest true "Wallet input"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /master-wallets [post]
func (s *MasterWalletService) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req masterWalletCreateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "nama_wallet wajib diisi", http.StatusBadRequest, err)
		return
	}

	saldo := decimal.Zero
	if req.SaldoAwal != nil {
		if req.SaldoAwal.IsNegative() {
			SendServiceError(w, "saldo_awal tidak boleh negatif", &InvalidInputError{Field: "saldo_awal", Reason: "must not be negative"})
			return
		}
		saldo = *req.SaldoAwal
	}

	wallet := &models.MasterWallet{NamaWallet: req.NamaWallet, SaldoSaatIni: saldo}
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO master_wallets (nama_wallet, saldo_saat_ini)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		wallet.NamaWallet, wallet.SaldoSaatIni,
	).Scan(&wallet.ID, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Wallet dengan nama ini sudah ada", &ConflictError{Message: "duplicate wallet"})
			return
		}
		SendServiceError(w, "Gagal membuat wallet", err)
		return
	}

	s.log.WithFields(logrus.Fields{"wallet_id": wallet.ID, "nama": wallet.NamaWallet}).Info("master wallet dibuat")
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Wallet berhasil dibuat",
		"data":    wallet,
	})
}

// ListWallets lists wallets with per-wallet transaction counts
// @Summary List master wallets
// @Tags master-wallets
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /master-wallets [get]
func (s *MasterWalletService) ListWallets(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT m.id, m.nama_wallet, m.saldo_saat_ini, m.created_at, m.updated_at,
		       COUNT(t.id) AS transaksi
		FROM master_wallets m
		LEFT JOIN wallet_transactions t ON t.wallet_id = m.id
		GROUP BY m.id
		ORDER BY m.nama_wallet ASC`)
	if err != nil {
		SendServiceError(w, "Gagal mengambil data wallet", err)
		return
	}
	defer rows.Close()

	type walletWithCount struct {
		models.MasterWallet
		JumlahTransaksi int `json:"jumlah_transaksi"`
	}
	wallets := []*walletWithCount{}
	for rows.Next() {
		m := &walletWithCount{}
		if err := rows.Scan(&m.ID, &m.NamaWallet, &m.SaldoSaatIni,
			&m.CreatedAt, &m.UpdatedAt, &m.JumlahTransaksi); err != nil {
			SendServiceError(w, "Gagal mengambil data wallet", err)
			return
		}
		wallets = append(wallets, m)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil data wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    wallets,
		"total":   len(wallets),
	})
}

// GetWallet returns one wallet with its recent transactions
// @Summary Get a master wallet
// @Tags master-wallets
// @Produce json
// @Param id path int true "Wallet ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /master-wallets/{id} [get]
func (s *MasterWalletService) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	wallet := &models.MasterWallet{}
	err = s.db.QueryRowContext(r.Context(), `
		SELECT id, nama_wallet, saldo_saat_ini, created_at, updated_at
		FROM master_wallets WHERE id = $1`, id).
		Scan(&wallet.ID, &wallet.NamaWallet, &wallet.SaldoSaatIni, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Wallet tidak ditemukan", &NotFoundError{Resource: "master wallet"})
		return
	}
	if err != nil {
		SendServiceError(w, "Gagal mengambil detail wallet", err)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, wallet_id, tipe, jumlah, keterangan, tanggal, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY tanggal DESC, id DESC
		LIMIT 50`, id)
	if err != nil {
		SendServiceError(w, "Gagal mengambil detail wallet", err)
		return
	}
	defer rows.Close()

	txns := []*models.WalletTransaction{}
	for rows.Next() {
		t := &models.WalletTransaction{}
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Tipe, &t.Jumlah, &t.Keterangan,
			&t.Tanggal, &t.CreatedAt); err != nil {
			SendServiceError(w, "Gagal mengambil detail wallet", err)
			return
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil detail wallet", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"wallet":    wallet,
			"transaksi": txns,
		},
	})
}

// UpdateWallet renames a wallet. The balance only moves through daily
// records and transactions.
// @Summary Update a master wallet
// @Tags master-wallets
// @Accept json
// @Produce json
// @Param id path int true "Wallet ID"
// @Param wallet body masterWalletUpdateRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /master-wallets/{id} [put]
func (s *MasterWalletService) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	var req masterWalletUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Data tidak valid", http.StatusBadRequest, err)
		return
	}

	wallet := &models.MasterWallet{}
	err = s.db.QueryRowContext(r.Context(), `
		UPDATE master_wallets
		SET nama_wallet = COALESCE($1, nama_wallet), updated_at = now()
		WHERE id = $2
		RETURNING id, nama_wallet, saldo_saat_ini, created_at, updated_at`,
		req.NamaWallet, id).
		Scan(&wallet.ID, &wallet.NamaWallet, &wallet.SaldoSaatIni, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err == sql.ErrNoRows {
		SendServiceError(w, "Wallet tidak ditemukan", &NotFoundError{Resource: "master wallet"})
		return
	}
	if err != nil {
		if isUniqueViolation(err) {
			SendServiceError(w, "Wallet dengan nama ini sudah ada", &ConflictError{Message: "duplicate wallet"})
			return
		}
		SendServiceError(w, "Gagal update wallet", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Wallet berhasil diupdate",
		"data":    wallet,
	})
}

// DeleteWallet removes a wallet and, through FK cascade, its daily records
// and transactions
// @Summary Delete a master wallet
// @Tags master-wallets
// @Produce json
// @Param id path int true "Wallet ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} services.ErrorResponse
// @Router /master-wallets/{id} [delete]
func (s *MasterWalletService) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendServiceError(w, "ID tidak valid", &InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	res, err := s.db.ExecContext(r.Context(), `DELETE FROM master_wallets WHERE id = $1`, id)
	if err != nil {
		SendServiceError(w, "Gagal menghapus wallet", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		SendServiceError(w, "Wallet tidak ditemukan", &NotFoundError{Resource: "master wallet"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Wallet berhasil dihapus",
	})
}
