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
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func masterVoucherRouter(service *MasterVoucherService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/master-vouchers", service.CreateVoucher)
	r.Get("/master-vouchers", service.ListVouchers)
	r.Get("/master-vouchers/{id}", service.GetVoucher)
	r.Put("/master-vouchers/{id}", service.UpdateVoucher)
	r.Delete("/master-vouchers/{id}", service.DeleteVoucher)
	return r
}

func TestMasterVoucherService_CreateVoucher(t *testing.T) {
	now := time.Now()

	t.Run("creates a SKU", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectQuery("INSERT INTO master_vouchers").
			WithArgs("Telkomsel", "5GB 30 hari", int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

		body, _ := json.Marshal(map[string]interface{}{
			"operator":    "Telkomsel",
			"jenis_paket": "5GB 30 hari",
			"stok_awal":   10,
		})
		req := httptest.NewRequest("POST", "/master-vouchers", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, "Telkomsel", data["operator"])
		assert.Equal(t, float64(10), data["stok_saat_ini"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate natural key returns 409", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectQuery("INSERT INTO master_vouchers").
			WithArgs("Telkomsel", "5GB 30 hari", int64(0)).
			WillReturnError(&pq.Error{Code: "23505"})

		body, _ := json.Marshal(map[string]interface{}{
			"operator":    "Telkomsel",
			"jenis_paket": "5GB 30 hari",
		})
		req := httptest.NewRequest("POST", "/master-vouchers", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing operator fails validation", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		body, _ := json.Marshal(map[string]interface{}{"jenis_paket": "5GB"})
		req := httptest.NewRequest("POST", "/master-vouchers", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMasterVoucherService_ListVouchers(t *testing.T) {
	now := time.Now()

	t.Run("lists with transaction counts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectQuery("LEFT JOIN voucher_transactions t ON t.voucher_id = m.id").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "operator", "jenis_paket", "stok_saat_ini", "created_at", "updated_at", "transaksi"}).
				AddRow(1, "Telkomsel", "5GB", 10, now, now, 4).
				AddRow(2, "XL", "10GB", 3, now, now, 0))

		req := httptest.NewRequest("GET", "/master-vouchers", nil)
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(2), resp["total"])
		first := resp["data"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, float64(4), first["jumlah_transaksi"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("operator filter is applied", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectQuery("WHERE m.operator ILIKE \\$1").
			WithArgs("%telkom%").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "operator", "jenis_paket", "stok_saat_ini", "created_at", "updated_at", "transaksi"}))

		req := httptest.NewRequest("GET", "/master-vouchers?operator=telkom", nil)
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMasterVoucherService_GetVoucher(t *testing.T) {
	now := time.Now()

	t.Run("returns the SKU with recent transactions", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectQuery("FROM master_vouchers WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "operator", "jenis_paket", "stok_saat_ini", "created_at", "updated_at"}).
				AddRow(1, "Telkomsel", "5GB", 10, now, now))
		mock.ExpectQuery("FROM voucher_transactions\\s+WHERE voucher_id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "voucher_id", "tipe", "jumlah", "keterangan", "tanggal", "created_at"}).
				AddRow(20, 1, "masuk", 5, "restock", now, now))

		req := httptest.NewRequest("GET", "/master-vouchers/1", nil)
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &resp)
		data := resp["data"].(map[string]interface{})
		assert.NotNil(t, data["voucher"])
		assert.Len(t, data["transaksi"], 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing SKU returns 404", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectQuery("FROM master_vouchers WHERE id = \\$1").
			WithArgs(9).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		req := httptest.NewRequest("GET", "/master-vouchers/9", nil)
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMasterVoucherService_DeleteVoucher(t *testing.T) {
	t.Run("deletes an existing SKU", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectExec("DELETE FROM master_vouchers WHERE id = \\$1").
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest("DELETE", "/master-vouchers/1", nil)
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing SKU returns 404", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewMasterVoucherService(db)

		mock.ExpectExec("DELETE FROM master_vouchers WHERE id = \\$1").
			WithArgs(9).
			WillReturnResult(sqlmock.NewResult(0, 0))

		req := httptest.NewRequest("DELETE", "/master-vouchers/9", nil)
		w := httptest.NewRecorder()
		masterVoucherRouter(service).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
