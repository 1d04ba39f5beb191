package models

import "time"

// Operator is a mobile network operator used to classify voucher SKUs.
// Deactivated instead of deleted so old daily records keep their labels.
type Operator struct {
	ID        int       `json:"id" db:"id"`
	Nama      string    `json:"nama" db:"nama"`
	Kode      string    `json:"kode" db:"kode"`
	Aktif     bool      `json:"aktif" db:"aktif"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WalletType is an e-wallet provider entry (DANA, OVO, GoPay, ...) with
// the registered phone number for the shop's account.
type WalletType struct {
	ID        int       `json:"id" db:"id"`
	Nama      string    `json:"nama" db:"nama"`
	NomorHP   string    `json:"nomor_hp,omitempty" db:"nomor_hp"`
	Aktif     bool      `json:"aktif" db:"aktif"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
