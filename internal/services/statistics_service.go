package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kiostrack/backend/internal/clock"
	"github.com/kiostrack/backend/internal/logging"
)

const dashboardCacheKey = "kiostrack:statistics:dashboard"

// StatisticsService aggregates the ledgers into dashboard and summary
// figures. The dashboard payload is cached in Redis; everything else is
// computed per request. A nil Redis client disables caching.
type StatisticsService struct {
	db       *sql.DB
	redis    *redis.Client
	clock    *clock.Clock
	cacheTTL time.Duration
	log      *logrus.Logger
}

func NewStatisticsService(db *sql.DB, rdb *redis.Client, clk *clock.Clock, cacheTTL time.Duration) *StatisticsService {
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &StatisticsService{
		db:       db,
		redis:    rdb,
		clock:    clk,
		cacheTTL: cacheTTL,
		log:      logging.GetLogger(),
	}
}

// DashboardStats is the landing-page overview.
type DashboardStats struct {
	TotalVoucher        int             `json:"total_voucher"`
	TotalStok           int64           `json:"total_stok"`
	TotalTerjual        int64           `json:"total_terjual"`
	TotalWallet         int             `json:"total_wallet"`
	TotalSaldo          decimal.Decimal `json:"total_saldo"`
	InputVoucherHariIni int             `json:"input_voucher_hari_ini"`
	InputWalletHariIni  int             `json:"input_wallet_hari_ini"`
}

// GetDashboard returns the overview, served from Redis when fresh
// @Summary Dashboard overview
// @Tags statistics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /statistics/dashboard [get]
func (s *StatisticsService) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cached := s.cachedDashboard(ctx); cached != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    cached,
			"cached":  true,
		})
		return
	}

	stats, err := s.buildDashboard(ctx)
	if err != nil {
		SendServiceError(w, "Gagal mengambil statistik dashboard", err)
		return
	}
	s.cacheDashboard(ctx, stats)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	})
}

func (s *StatisticsService) cachedDashboard(ctx context.Context) *DashboardStats {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, dashboardCacheKey).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.WithError(err).Warn("gagal membaca cache dashboard")
		}
		return nil
	}
	stats := &DashboardStats{}
	if err := json.Unmarshal([]byte(raw), stats); err != nil {
		return nil
	}
	return stats
}

func (s *StatisticsService) cacheDashboard(ctx context.Context, stats *DashboardStats) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, dashboardCacheKey, raw, s.cacheTTL).Err(); err != nil {
		s.log.WithError(err).Warn("gagal menyimpan cache dashboard")
	}
}

func (s *StatisticsService) buildDashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(stok_saat_ini), 0) FROM master_vouchers`).
		Scan(&stats.TotalVoucher, &stats.TotalStok)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(terjual), 0) FROM voucher_daily_stocks`).
		Scan(&stats.TotalTerjual)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(saldo_saat_ini), 0) FROM master_wallets`).
		Scan(&stats.TotalWallet, &stats.TotalSaldo)
	if err != nil {
		return nil, err
	}

	day := s.clock.DayStart(s.clock.Now())
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voucher_daily_stocks WHERE tanggal = $1`, day).
		Scan(&stats.InputVoucherHariIni)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wallet_daily_stocks WHERE tanggal = $1`, day).
		Scan(&stats.InputWalletHariIni)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetVoucherStatistics sums voucher transactions over a window
// @Summary Voucher transaction statistics
// @Description masuk/keluar totals from the transaction ledger, today by default
// @Tags statistics
// @Produce json
// @Param tanggal_dari query string false "Range start (YYYY-MM-DD)"
// @Param tanggal_sampai query string false "Range end (YYYY-MM-DD)"
// @Param scope query string false "history for all time"
// @Success 200 {object} map[string]interface{}
// @Router /statistics/voucher [get]
func (s *StatisticsService) GetVoucherStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := transactionRange(s.clock, q.Get("tanggal_dari"), q.Get("tanggal_sampai"), q.Get("scope"))
	if err != nil {
		SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "tanggal", Reason: err.Error()})
		return
	}

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN tipe = 'masuk' THEN jumlah ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tipe = 'keluar' THEN jumlah ELSE 0 END), 0),
			COUNT(*)
		FROM voucher_transactions`
	args := []interface{}{}
	query, args = appendRange(query, args, from, to)

	var masuk, keluar int64
	var total int
	if err := s.db.QueryRowContext(r.Context(), query, args...).Scan(&masuk, &keluar, &total); err != nil {
		SendServiceError(w, "Gagal mengambil statistik voucher", err)
		return
	}

	var totalStok int64
	if err := s.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(stok_saat_ini), 0) FROM master_vouchers`).Scan(&totalStok); err != nil {
		SendServiceError(w, "Gagal mengambil statistik voucher", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"total_masuk":      masuk,
			"total_keluar":     keluar,
			"jumlah_transaksi": total,
			"total_stok":       totalStok,
		},
	})
}

// GetWalletStatistics sums wallet transactions over a window
// @Summary Wallet transaction statistics
// @Description masuk/keluar totals from the transaction ledger, today by default
// @Tags statistics
// @Produce json
// @Param tanggal_dari query string false "Range start (YYYY-MM-DD)"
// @Param tanggal_sampai query string false "Range end (YYYY-MM-DD)"
// @Param scope query string false "history for all time"
// @Success 200 {object} map[string]interface{}
// @Router /statistics/wallet [get]
func (s *StatisticsService) GetWalletStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := transactionRange(s.clock, q.Get("tanggal_dari"), q.Get("tanggal_sampai"), q.Get("scope"))
	if err != nil {
		SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "tanggal", Reason: err.Error()})
		return
	}

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN tipe = 'masuk' THEN jumlah ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN tipe = 'keluar' THEN jumlah ELSE 0 END), 0),
			COUNT(*)
		FROM wallet_transactions`
	args := []interface{}{}
	query, args = appendRange(query, args, from, to)

	var masuk, keluar decimal.Decimal
	var total int
	if err := s.db.QueryRowContext(r.Context(), query, args...).Scan(&masuk, &keluar, &total); err != nil {
		SendServiceError(w, "Gagal mengambil statistik wallet", err)
		return
	}

	var totalSaldo decimal.Decimal
	if err := s.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(saldo_saat_ini), 0) FROM master_wallets`).Scan(&totalSaldo); err != nil {
		SendServiceError(w, "Gagal mengambil statistik wallet", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"total_masuk":      masuk,
			"total_keluar":     keluar,
			"jumlah_transaksi": total,
			"total_saldo":      totalSaldo,
		},
	})
}

// appendRange adds tanggal bounds to an aggregate query.
func appendRange(query string, args []interface{}, from, to *time.Time) (string, []interface{}) {
	clause := " WHERE "
	if from != nil {
		args = append(args, *from)
		query += clause + "tanggal >= $1"
		clause = " AND "
	}
	if to != nil {
		args = append(args, *to)
		if len(args) == 1 {
			query += clause + "tanggal <= $1"
		} else {
			query += clause + "tanggal <= $2"
		}
	}
	return query, args
}

// VoucherSummaryRow is one SKU's rollup across all daily records.
type VoucherSummaryRow struct {
	VoucherID    int    `json:"voucher_id"`
	Operator     string `json:"operator"`
	PackageName  string `json:"jenis_paket"`
	TotalMasuk   int64  `json:"total_masuk"`
	TotalTerjual int64  `json:"total_terjual"`
	StokSaatIni  int64  `json:"stok_saat_ini"`
	JumlahHari   int    `json:"jumlah_hari"`
}

// GetVoucherSummary rolls up daily records per SKU
// @Summary Per-voucher daily rollup
// @Tags statistics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /statistics/voucher-summary [get]
func (s *StatisticsService) GetVoucherSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT m.id, m.operator, m.jenis_paket,
		       COALESCE(SUM(d.masuk), 0), COALESCE(SUM(d.terjual), 0),
		       m.stok_saat_ini, COUNT(d.id)
		FROM master_vouchers m
		LEFT JOIN voucher_daily_stocks d ON d.voucher_id = m.id
		GROUP BY m.id
		ORDER BY m.operator ASC, m.jenis_paket ASC`)
	if err != nil {
		SendServiceError(w, "Gagal mengambil ringkasan voucher", err)
		return
	}
	defer rows.Close()

	summary := []*VoucherSummaryRow{}
	var grandMasuk, grandTerjual, grandStok int64
	for rows.Next() {
		row := &VoucherSummaryRow{}
		if err := rows.Scan(&row.VoucherID, &row.Operator, &row.PackageName,
			&row.TotalMasuk, &row.TotalTerjual, &row.StokSaatIni, &row.JumlahHari); err != nil {
			SendServiceError(w, "Gagal mengambil ringkasan voucher", err)
			return
		}
		grandMasuk += row.TotalMasuk
		grandTerjual += row.TotalTerjual
		grandStok += row.StokSaatIni
		summary = append(summary, row)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil ringkasan voucher", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    summary,
		"total": map[string]interface{}{
			"total_masuk":   grandMasuk,
			"total_terjual": grandTerjual,
			"total_stok":    grandStok,
		},
	})
}

// WalletSummaryRow is the latest reconciled day per wallet.
type WalletSummaryRow struct {
	WalletID   int             `json:"wallet_id"`
	NamaWallet string          `json:"nama_wallet"`
	Tanggal    time.Time       `json:"tanggal"`
	SaldoAwal  decimal.Decimal `json:"saldo_awal"`
	Masuk      decimal.Decimal `json:"masuk"`
	Keluar     decimal.Decimal `json:"keluar"`
	Sisa       decimal.Decimal `json:"sisa"`
}

// GetWalletSummary returns the latest daily row per wallet with totals
// @Summary Latest reconciled day per wallet
// @Tags statistics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /statistics/wallet-summary [get]
func (s *StatisticsService) GetWalletSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT DISTINCT ON (d.wallet_id)
		       d.wallet_id, m.nama_wallet, d.tanggal, d.saldo_awal, d.masuk, d.keluar, d.sisa
		FROM wallet_daily_stocks d
		JOIN master_wallets m ON m.id = d.wallet_id
		ORDER BY d.wallet_id, d.tanggal DESC, d.id DESC`)
	if err != nil {
		SendServiceError(w, "Gagal mengambil ringkasan wallet", err)
		return
	}
	defer rows.Close()

	summary := []*WalletSummaryRow{}
	totalSisa, totalMasuk, totalKeluar := decimal.Zero, decimal.Zero, decimal.Zero
	for rows.Next() {
		row := &WalletSummaryRow{}
		if err := rows.Scan(&row.WalletID, &row.NamaWallet, &row.Tanggal,
			&row.SaldoAwal, &row.Masuk, &row.Keluar, &row.Sisa); err != nil {
			SendServiceError(w, "Gagal mengambil ringkasan wallet", err)
			return
		}
		totalSisa = totalSisa.Add(row.Sisa)
		totalMasuk = totalMasuk.Add(row.Masuk)
		totalKeluar = totalKeluar.Add(row.Keluar)
		summary = append(summary, row)
	}
	if err := rows.Err(); err != nil {
		SendServiceError(w, "Gagal mengambil ringkasan wallet", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    summary,
		"total": map[string]interface{}{
			"total_sisa":   totalSisa,
			"total_masuk":  totalMasuk,
			"total_keluar": totalKeluar,
		},
	})
}

// GetDailyStatistics sums both daily ledgers for one day
// @Summary Combined daily ledger sums for a day
// @Tags statistics
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD, default today)"
// @Success 200 {object} map[string]interface{}
// @Router /statistics/daily [get]
func (s *StatisticsService) GetDailyStatistics(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := s.clock.ParseDay(v)
		if err != nil {
			SendServiceError(w, "Format tanggal tidak valid", &InvalidInputError{Field: "date", Reason: err.Error()})
			return
		}
		day = d
	} else {
		day = s.clock.DayStart(s.clock.Now())
	}

	var vCount int
	var vMasuk, vTerjual int64
	err := s.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*), COALESCE(SUM(masuk), 0), COALESCE(SUM(terjual), 0)
		FROM voucher_daily_stocks WHERE tanggal = $1`, day).
		Scan(&vCount, &vMasuk, &vTerjual)
	if err != nil {
		SendServiceError(w, "Gagal mengambil statistik harian", err)
		return
	}

	var wCount int
	var wMasuk, wKeluar decimal.Decimal
	err = s.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*), COALESCE(SUM(masuk), 0), COALESCE(SUM(keluar), 0)
		FROM wallet_daily_stocks WHERE tanggal = $1`, day).
		Scan(&wCount, &wMasuk, &wKeluar)
	if err != nil {
		SendServiceError(w, "Gagal mengambil statistik harian", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"tanggal": day.Format("2006-01-02"),
			"voucher": map[string]interface{}{
				"jumlah_input":  vCount,
				"total_masuk":   vMasuk,
				"total_terjual": vTerjual,
			},
			"wallet": map[string]interface{}{
				"jumlah_input": wCount,
				"total_masuk":  wMasuk,
				"total_keluar": wKeluar,
			},
		},
	})
}
