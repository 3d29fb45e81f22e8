package immich

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jepsonc/immich-monitor/internal/config"
	"github.com/jepsonc/immich-monitor/internal/database"
)

// Quoted identifiers are deliberate: the Immich schema uses case-sensitive
// camelCase column names.
const (
	uploadStatsQuery = `
		SELECT
			COUNT(*) AS total_assets,
			COUNT(CASE WHEN "createdAt" > NOW() - INTERVAL '1 hour' THEN 1 END) AS last_1h,
			COUNT(CASE WHEN "createdAt" > NOW() - INTERVAL '24 hours' THEN 1 END) AS last_24h,
			COUNT(CASE WHEN "createdAt" > NOW() - INTERVAL '7 days' THEN 1 END) AS last_7d,
			COUNT(CASE WHEN "createdAt" > NOW() - INTERVAL '30 days' THEN 1 END) AS last_30d,
			MAX("createdAt") AS last_upload
		FROM asset
		WHERE "deletedAt" IS NULL`

	activeUsersQuery = `
		SELECT COUNT(DISTINCT "ownerId") AS active_users_24h
		FROM asset
		WHERE "createdAt" > NOW() - INTERVAL '24 hours'
		AND "deletedAt" IS NULL`

	allUsersQuery = `
		SELECT
			COUNT(*) AS total_users,
			SUM(CASE WHEN "isAdmin" = true THEN 1 ELSE 0 END) AS admin_users
		FROM "user"`
)

// activeWindow is how recently an upload must have happened for the
// library to count as active.
const activeWindow = 120 * time.Minute

type uploadRow struct {
	TotalAssets int64      `gorm:"column:total_assets"`
	Last1h      int64      `gorm:"column:last_1h"`
	Last24h     int64      `gorm:"column:last_24h"`
	Last7d      int64      `gorm:"column:last_7d"`
	Last30d     int64      `gorm:"column:last_30d"`
	LastUpload  *time.Time `gorm:"column:last_upload"`
}

type activeUsersRow struct {
	ActiveUsers24h int64 `gorm:"column:active_users_24h"`
}

type allUsersRow struct {
	TotalUsers int64 `gorm:"column:total_users"`
	AdminUsers int64 `gorm:"column:admin_users"`
}

// Aggregator computes upload and user metrics from the Immich database.
type Aggregator struct {
	cfg    *config.Config
	logger *logrus.Logger
	log    *logrus.Entry
}

func NewAggregator(logger *logrus.Logger, cfg *config.Config) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		logger: logger,
		log:    logger.WithField("component", "immich_aggregator"),
	}
}

// Collect opens a database connection, runs the three metric queries and
// derives the health fields. Every failure is folded into the result; the
// caller always gets something serializable.
func (a *Aggregator) Collect(ctx context.Context) Result {
	start := time.Now()
	log := a.log.WithField("operation", "collect")

	db, err := database.Open(a.logger, a.cfg)
	if err != nil {
		return Result{Err: &Error{Kind: KindConnection, Message: err.Error()}}
	}
	defer database.Close(db)

	var uploads uploadRow
	if err := db.WithContext(ctx).Raw(uploadStatsQuery).Scan(&uploads).Error; err != nil {
		log.WithError(err).Error("Upload stats query failed")
		return Result{Err: &Error{Kind: KindQuery, Message: err.Error()}}
	}

	var active activeUsersRow
	if err := db.WithContext(ctx).Raw(activeUsersQuery).Scan(&active).Error; err != nil {
		log.WithError(err).Error("Active users query failed")
		return Result{Err: &Error{Kind: KindQuery, Message: err.Error()}}
	}

	var users allUsersRow
	if err := db.WithContext(ctx).Raw(allUsersQuery).Scan(&users).Error; err != nil {
		log.WithError(err).Error("User stats query failed")
		return Result{Err: &Error{Kind: KindQuery, Message: err.Error()}}
	}

	metrics := buildMetrics(uploads, active, users, time.Now().UTC())

	log.WithFields(logrus.Fields{
		"total_assets": metrics.TotalAssets,
		"duration":     time.Since(start),
	}).Debug("Collected upload metrics")

	return Result{Metrics: metrics}
}

// buildMetrics derives the response payload from the scanned rows. Pure so
// the derivation rules are testable without Postgres.
func buildMetrics(uploads uploadRow, active activeUsersRow, users allUsersRow, now time.Time) *Metrics {
	m := &Metrics{
		TotalAssets: uploads.TotalAssets,
		Uploads: UploadStats{
			Last1h:      uploads.Last1h,
			Last24h:     uploads.Last24h,
			Last7d:      uploads.Last7d,
			Last30d:     uploads.Last30d,
			RatePerHour: round1(float64(uploads.Last24h) / 24),
		},
		Users: UserStats{
			Total:     users.TotalUsers,
			Admins:    users.AdminUsers,
			Active24h: active.ActiveUsers24h,
		},
	}

	if uploads.LastUpload != nil {
		ts := uploads.LastUpload.Format(time.RFC3339)
		minutes := int64(now.Sub(*uploads.LastUpload).Minutes())
		m.LastUpload = LastUpload{Timestamp: &ts, MinutesAgo: &minutes}
		m.Health.IsActive = now.Sub(*uploads.LastUpload) < activeWindow
	}
	m.Health.Alert = !m.Health.IsActive

	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
