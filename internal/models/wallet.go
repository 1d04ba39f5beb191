package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MasterWallet is an e-wallet float account. SaldoSaatIni mirrors the
// closing balance of the latest daily record, same mechanism as vouchers
// but with decimal rupiah amounts.
type MasterWallet struct {
	ID           int             `json:"id" db:"id"`
	NamaWallet   string          `json:"nama_wallet" db:"nama_wallet"`
	SaldoSaatIni decimal.Decimal `json:"saldo_saat_ini" db:"saldo_saat_ini"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// WalletDailyStock is one reconciled day for a wallet.
// Invariant: Sisa = SaldoAwal + Masuk - Keluar. Keluar is always derived.
type WalletDailyStock struct {
	ID        int             `json:"id" db:"id"`
	WalletID  int             `json:"wallet_id" db:"wallet_id"`
	Tanggal   time.Time       `json:"tanggal" db:"tanggal"`
	SaldoAwal decimal.Decimal `json:"saldo_awal" db:"saldo_awal"`
	Masuk     decimal.Decimal `json:"masuk" db:"masuk"`
	Keluar    decimal.Decimal `json:"keluar" db:"keluar"`
	Sisa      decimal.Decimal `json:"sisa" db:"sisa"`
	Catatan   string          `json:"catatan,omitempty" db:"catatan"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	Wallet    *MasterWallet   `json:"wallet,omitempty"`
}

// WalletTransaction is a discrete balance movement with reversal on delete.
type WalletTransaction struct {
	ID         int             `json:"id" db:"id"`
	WalletID   int             `json:"wallet_id" db:"wallet_id"`
	Tipe       string          `json:"tipe" db:"tipe"` // masuk or keluar
	Jumlah     decimal.Decimal `json:"jumlah" db:"jumlah"`
	Keterangan string          `json:"keterangan,omitempty" db:"keterangan"`
	Tanggal    time.Time       `json:"tanggal" db:"tanggal"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	Wallet     *MasterWallet   `json:"wallet,omitempty"`
}
