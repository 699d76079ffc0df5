package analytics

import (
	"time"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TrackRequest struct {
	EventType models.EventType     `json:"eventType" validate:"required"`
	PageURL   string               `json:"pageUrl" validate:"required,max=1000"`
	SessionID string               `json:"sessionId" validate:"required,max=100"`
	Timestamp *time.Time           `json:"timestamp" validate:"required"`
	Metadata  models.EventMetadata `json:"metadata"`
}

const maxClockSkew = 5 * time.Minute

// POST /api/analytics/track
func TrackHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body TrackRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		if !body.EventType.Valid() {
			return &validation.Error{
				Message: "Validation failed",
				Fields:  map[string]string{"eventType": "oneof"},
			}
		}

		ev := FromRequest(c, body.EventType)
		ev.PageURL = body.PageURL
		ev.SessionID = body.SessionID
		ev.Metadata = datatypes.NewJSONType(body.Metadata)

		ev.OccurredAt = *body.Timestamp
		if ev.OccurredAt.After(time.Now().Add(maxClockSkew)) {
			ev.OccurredAt = time.Now()
		}

		ev.BrandID, ev.BranchID = ResolvePage(database.DB, body.PageURL)

		RecordAsync(ev)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
	}
}

type SummaryResponse struct {
	BrandID        *uint                      `json:"brand_id"`
	BranchID       *uint                      `json:"branch_id"`
	From           string                     `json:"from"`
	To             string                     `json:"to"`
	Total          int64                      `json:"total"`
	UniqueSessions int64                      `json:"unique_sessions"`
	ByType         map[models.EventType]int64 `json:"by_type"`
}

// GET /api/analytics/summary?brand_id=1&branch_id=2&from=2024-01-01&to=2024-01-31
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := resolveScope(c)
		if err != nil {
			return err
		}

		from, to, err := dateRange(c.Query("from"), c.Query("to"))
		if err != nil {
			return err
		}

		base := func() *gorm.DB {
			return scope.apply(database.DB.Model(&models.AnalyticsEvent{})).
				Where("occurred_at >= ? AND occurred_at < ?", from.UTC(), to.AddDate(0, 0, 1).UTC())
		}

		type row struct {
			Type  models.EventType
			Count int64
		}
		var rows []row
		if err := base().Select("type, COUNT(*) AS count").Group("type").Scan(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not aggregate events")
		}

		resp := SummaryResponse{
			BrandID:  scope.brandID,
			BranchID: scope.branchID,
			From:     from.Format(dateLayout),
			To:       to.Format(dateLayout),
			ByType:   make(map[models.EventType]int64, len(models.EventTypes)),
		}
		for _, t := range models.EventTypes {
			resp.ByType[t] = 0
		}
		for _, r := range rows {
			resp.ByType[r.Type] = r.Count
			resp.Total += r.Count
		}

		if err := base().Distinct("session_id").Where("session_id <> ''").Count(&resp.UniqueSessions).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not aggregate events")
		}

		return c.JSON(resp)
	}
}

// scope is the brand or branch an analytics query is restricted to, after
// the access check passed.
type scope struct {
	brandID  *uint
	branchID *uint
}

func (s scope) apply(q *gorm.DB) *gorm.DB {
	if s.branchID != nil {
		return q.Where("branch_id = ?", *s.branchID)
	}
	return q.Where("brand_id = ?", *s.brandID)
}

func resolveScope(c *fiber.Ctx) (scope, error) {
	if branchID := c.QueryInt("branch_id"); branchID > 0 {
		res, branch, err := access.BranchResource(uint(branchID))
		if err != nil {
			return scope{}, err
		}
		if _, err := access.Check(c, res); err != nil {
			return scope{}, err
		}
		return scope{brandID: &branch.BrandID, branchID: &branch.ID}, nil
	}

	brandID := c.QueryInt("brand_id")
	if brandID <= 0 {
		return scope{}, fiber.NewError(fiber.StatusBadRequest, "brand_id or branch_id is required")
	}
	res, brand, err := access.BrandResource(uint(brandID))
	if err != nil {
		return scope{}, err
	}
	if _, err := access.Check(c, res); err != nil {
		return scope{}, err
	}
	return scope{brandID: &brand.ID}, nil
}

const dateLayout = "2006-01-02"

// dateRange parses inclusive day bounds, defaulting to the last 30 days.
func dateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from := to.AddDate(0, 0, -29)

	if toStr != "" {
		t, err := time.ParseInLocation(dateLayout, toStr, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		to = t
	}
	if fromStr != "" {
		f, err := time.ParseInLocation(dateLayout, fromStr, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		from = f
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from must not be after to")
	}
	return from, to, nil
}
