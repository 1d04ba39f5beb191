package models

import (
	"time"
)

// MasterVoucher is a tracked voucher SKU. StokSaatIni is a denormalized
// snapshot kept equal to the closing stock of the latest daily record.
type MasterVoucher struct {
	ID          int       `json:"id" db:"id"`
	Operator    string    `json:"operator" db:"operator"`
	PackageName string    `json:"jenis_paket" db:"jenis_paket"`
	StokSaatIni int64     `json:"stok_saat_ini" db:"stok_saat_ini"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// VoucherDailyStock is one reconciled day for a voucher SKU.
// Invariant: Sisa = StokAwal + Masuk - Terjual. Terjual is always derived.
type VoucherDailyStock struct {
	ID        int            `json:"id" db:"id"`
	VoucherID int            `json:"voucher_id" db:"voucher_id"`
	Tanggal   time.Time      `json:"tanggal" db:"tanggal"`
	StokAwal  int64          `json:"stok_awal" db:"stok_awal"`
	Masuk     int64          `json:"masuk" db:"masuk"`
	Terjual   int64          `json:"terjual" db:"terjual"`
	Sisa      int64          `json:"sisa" db:"sisa"`
	Catatan   string         `json:"catatan,omitempty" db:"catatan"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
	Voucher   *MasterVoucher `json:"voucher,omitempty"`
}

// VoucherTransaction is a discrete stock movement. Deleting one reverses
// its effect on the master snapshot.
type VoucherTransaction struct {
	ID         int            `json:"id" db:"id"`
	VoucherID  int            `json:"voucher_id" db:"voucher_id"`
	Tipe       string         `json:"tipe" db:"tipe"` // masuk or keluar
	Jumlah     int64          `json:"jumlah" db:"jumlah"`
	Keterangan string         `json:"keterangan,omitempty" db:"keterangan"`
	Tanggal    time.Time      `json:"tanggal" db:"tanggal"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	Voucher    *MasterVoucher `json:"voucher,omitempty"`
}
