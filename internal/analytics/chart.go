package analytics

import (
	"time"

	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ChartPoint struct {
	Label  string                     `json:"label"` // day, week start or month start
	Counts map[models.EventType]int64 `json:"counts"`
	Total  int64                      `json:"total"`
}

type ChartResponse struct {
	BrandID     *uint                      `json:"brand_id"`
	BranchID    *uint                      `json:"branch_id"`
	Period      string                     `json:"period"` // daily | weekly | monthly
	From        string                     `json:"from"`
	To          string                     `json:"to"`
	Points      []ChartPoint               `json:"points"`
	GrandTotals map[models.EventType]int64 `json:"grand_totals"`
	Total       int64                      `json:"total"`
}

const maxChartBuckets = 366

var now = time.Now

// GET /api/analytics/chart?brand_id=1&period=daily&count=7
func ChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sc, err := resolveScope(c)
		if err != nil {
			return err
		}

		period := c.Query("period", "daily")
		count := c.QueryInt("count", 0)
		if c.Query("count") != "" && (count <= 0 || count > maxChartBuckets) {
			return fiber.NewError(fiber.StatusBadRequest, "count is invalid")
		}
		if count == 0 {
			switch period {
			case "weekly":
				count = 8
			case "monthly":
				count = 12
			default:
				count = 7
			}
		}
		if period != "weekly" && period != "monthly" {
			period = "daily"
		}

		buckets := bucketStarts(period, count, now())
		start := buckets[0]
		end := nextBucket(period, buckets[len(buckets)-1])

		type row struct {
			Type       models.EventType
			OccurredAt time.Time
		}
		var rows []row
		err = sc.apply(database.DB.Model(&models.AnalyticsEvent{})).
			Select("type, occurred_at").
			Where("occurred_at >= ? AND occurred_at < ?", start.UTC(), end.UTC()).
			Scan(&rows).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not aggregate events")
		}

		loc := start.Location()
		index := make(map[int64]int, len(buckets))
		points := make([]ChartPoint, len(buckets))
		for i, b := range buckets {
			index[b.Unix()] = i
			points[i] = ChartPoint{Label: b.Format(dateLayout), Counts: map[models.EventType]int64{}}
		}

		grand := map[models.EventType]int64{}
		var total int64
		for _, r := range rows {
			i, ok := index[bucketOf(period, r.OccurredAt.In(loc)).Unix()]
			if !ok {
				continue
			}
			points[i].Counts[r.Type]++
			points[i].Total++
			grand[r.Type]++
			total++
		}

		return c.JSON(ChartResponse{
			BrandID:     sc.brandID,
			BranchID:    sc.branchID,
			Period:      period,
			From:        start.Format(dateLayout),
			To:          end.AddDate(0, 0, -1).Format(dateLayout),
			Points:      points,
			GrandTotals: grand,
			Total:       total,
		})
	}
}

// bucketStarts returns count consecutive bucket starts ending with the one
// that contains ref.
func bucketStarts(period string, count int, ref time.Time) []time.Time {
	last := bucketOf(period, ref)
	out := make([]time.Time, count)
	for i := count - 1; i >= 0; i-- {
		out[i] = last
		last = prevBucket(period, last)
	}
	return out
}

func bucketOf(period string, t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case "weekly":
		// weeks start on Monday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "monthly":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

func nextBucket(period string, b time.Time) time.Time {
	switch period {
	case "weekly":
		return b.AddDate(0, 0, 7)
	case "monthly":
		return b.AddDate(0, 1, 0)
	default:
		return b.AddDate(0, 0, 1)
	}
}

func prevBucket(period string, b time.Time) time.Time {
	switch period {
	case "weekly":
		return b.AddDate(0, 0, -7)
	case "monthly":
		return b.AddDate(0, -1, 0)
	default:
		return b.AddDate(0, 0, -1)
	}
}
