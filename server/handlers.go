package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"river/db"
	"river/feeds"
	"river/models"
	"river/river"
	"river/urls"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const (
	latestCount       = 200
	latestThresholdMs = 2000

	invalidLimitMessage = "Invalid limit; expected integer in range 1..200."
)

type handlers struct {
	config *ServerConfig
}

type addFeedRequest struct {
	Url   string `json:"url"`
	Title string `json:"title"`
}

type latestPerformance struct {
	ItemCount             int   `json:"itemCount"`
	DurationMilliseconds  int64 `json:"durationMilliseconds"`
	ThresholdMilliseconds int64 `json:"thresholdMilliseconds"`
	MeetsTarget           bool  `json:"meetsTarget"`
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Message: message})
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) listFeeds(c *fiber.Ctx) error {
	list, err := h.config.Feeds.ListFeeds(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *handlers) addFeed(c *fiber.Ctx) error {
	var req addFeedRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	feed, err := feeds.Subscribe(c.UserContext(), h.config.Feeds, req.Url, req.Title)
	switch {
	case errors.Is(err, urls.ErrInvalidURL):
		return badRequest(c, "Invalid feed URL.")
	case errors.Is(err, db.ErrDuplicateFeed):
		return c.Status(fiber.StatusConflict).JSON(models.ErrorResponse{Message: "Feed URL already exists."})
	case err != nil:
		return err
	}

	c.Location("/api/feeds/" + feed.Id)
	return c.Status(fiber.StatusCreated).JSON(feed)
}

func (h *handlers) deleteFeed(c *fiber.Ctx) error {
	err := feeds.Unsubscribe(c.UserContext(), h.config.Feeds, c.Params("id"))
	if errors.Is(err, db.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Message: "Feed not found."})
	}
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) refresh(c *fiber.Ctx) error {
	result, err := h.config.Refresher.RefreshAllFeeds(c.UserContext())
	if err != nil {
		log.WithFields(log.Fields{
			"error":     err,
			"processed": result.ProcessedFeedCount,
		}).Error("Manual refresh failed")
		return err
	}
	return c.JSON(result)
}

func (h *handlers) listItems(c *fiber.Ctx) error {
	start, ok := parseDate(c.Query("start_date"))
	if !ok {
		return badRequest(c, "Invalid start_date; expected ISO-8601 UTC.")
	}
	end, ok := parseDate(c.Query("end_date"))
	if !ok {
		return badRequest(c, "Invalid end_date; expected ISO-8601 UTC.")
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := parseLimit(raw)
		if err != nil {
			return badRequest(c, invalidLimitMessage)
		}
		limit = parsed
	}

	page, err := h.config.River.QueryItems(c.UserContext(), river.Filter{
		FeedIDs:   river.ParseFeedIDs(c.Query("feed_ids")),
		StartDate: start,
		EndDate:   end,
		Cursor:    c.Query("cursor"),
		Limit:     limit,
	})
	switch {
	case errors.Is(err, river.ErrInvalidDateRange):
		return badRequest(c, "Invalid date range; end_date must be on or after start_date.")
	case errors.Is(err, river.ErrInvalidLimit):
		return badRequest(c, invalidLimitMessage)
	case errors.Is(err, river.ErrInvalidCursor):
		return badRequest(c, "Invalid cursor.")
	case err != nil:
		return err
	}

	return c.JSON(page)
}

func (h *handlers) getItem(c *fiber.Ctx) error {
	item, err := h.config.River.GetItem(c.UserContext(), c.Params("id"))
	if errors.Is(err, river.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Message: "Item not found."})
	}
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *handlers) latest200(c *fiber.Ctx) error {
	start := time.Now()
	items, err := h.config.River.Latest(c.UserContext(), latestCount)
	if err != nil {
		return err
	}
	elapsed := time.Since(start).Milliseconds()

	return c.JSON(latestPerformance{
		ItemCount:             len(items),
		DurationMilliseconds:  elapsed,
		ThresholdMilliseconds: latestThresholdMs,
		MeetsTarget:           elapsed < latestThresholdMs,
	})
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDate accepts ISO-8601 timestamps; values without a zone are taken as UTC.
// An empty value is valid and means no bound.
func parseDate(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

// parseLimit only accepts plain digits, so signs and whitespace are rejected
func parseLimit(raw string) (int, error) {
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, river.ErrInvalidLimit
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, river.ErrInvalidLimit
	}
	return n, nil
}
