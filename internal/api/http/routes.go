package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
)

// Config holds transport settings for the sensor routes.
type Config struct {
	// APIKeyHash is the bcrypt hash of the ingestion key. Empty rejects all ingestion.
	APIKeyHash string
	// QueryTimeout bounds read requests; zero means no extra deadline.
	QueryTimeout time.Duration
	// BaseURL prefixes the links of the API index.
	BaseURL string
	Logger  *slog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *sensor.Service, cfg Config) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{service: service, cfg: cfg}

	app.Get("/", h.index)

	sensors := app.Group("/sensors")
	sensors.Get("/", h.latestAll)
	sensors.Post("/", requireAPIKey(cfg.APIKeyHash, cfg.Logger), h.ingest)
	sensors.Get("/sensor/avg/hour/:name", h.hourlyOne)
	sensors.Get("/sensor/avg/day/:name", h.dailyOne)
	sensors.Get("/sensor/:name", h.latestOne)
	sensors.Get("/avg/hour/all", h.hourlyAll)
	sensors.Get("/avg/day/all", h.dailyAll)
}

type handlers struct {
	service *sensor.Service
	cfg     Config
}

func (h *handlers) queryContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.cfg.QueryTimeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.cfg.QueryTimeout)
}

func (h *handlers) index(c *fiber.Ctx) error {
	link := func(path string, methods ...string) fiber.Map {
		return fiber.Map{"href": h.cfg.BaseURL + path, "requestTypes": methods}
	}
	return c.JSON(fiber.Map{
		"msg": "IoT dashboard API",
		"links": fiber.Map{
			"self":          link("/", fiber.MethodGet),
			"sensors":       link("/sensors", fiber.MethodGet, fiber.MethodPost),
			"sensor":        link("/sensors/sensor/{name}", fiber.MethodGet),
			"sensorHourAvg": link("/sensors/sensor/avg/hour/{name}", fiber.MethodGet),
			"sensorDayAvg":  link("/sensors/sensor/avg/day/{name}?days={n}", fiber.MethodGet),
			"allHourAvg":    link("/sensors/avg/hour/all", fiber.MethodGet),
			"allDayAvg":     link("/sensors/avg/day/all?days={n}", fiber.MethodGet),
		},
	})
}

func (h *handlers) latestAll(c *fiber.Ctx) error {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	lvs, err := h.service.LatestAll(ctx)
	if err != nil {
		return err
	}
	return c.JSON(sensor.LatestAllPayload(lvs))
}

func (h *handlers) latestOne(c *fiber.Ctx) error {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	lv, err := h.service.Latest(ctx, c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(sensor.LatestPayload(lv))
}

func (h *handlers) hourlyOne(c *fiber.Ctx) error {
	return h.hourly(c, c.Params("name"))
}

func (h *handlers) hourlyAll(c *fiber.Ctx) error {
	return h.hourly(c, "")
}

func (h *handlers) hourly(c *fiber.Ctx, name string) error {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	res, err := h.service.HourlyAverages(ctx, namesFor(name), h.service.Now())
	if err != nil {
		return err
	}
	return c.JSON(sensor.HourlyPayload(name, res))
}

func (h *handlers) dailyOne(c *fiber.Ctx) error {
	return h.daily(c, c.Params("name"))
}

func (h *handlers) dailyAll(c *fiber.Ctx) error {
	return h.daily(c, "")
}

func (h *handlers) daily(c *fiber.Ctx, name string) error {
	var q daysQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	res, err := h.service.DailyAverages(ctx, namesFor(name), q.Days, h.service.Now())
	if err != nil {
		return err
	}
	return c.JSON(sensor.DailyPayload(name, q.Days, res))
}

func (h *handlers) ingest(c *fiber.Ctx) error {
	var items []ingestItem
	if err := c.BodyParser(&items); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be a JSON array of {sensorName, value}")
	}

	batch := make([]sensor.Candidate, len(items))
	for i, it := range items {
		batch[i] = it.toCandidate()
	}

	ingest := h.service.Ingest
	if c.QueryBool("atomic") {
		ingest = h.service.IngestAtomic
	}

	stored, err := ingest(c.UserContext(), batch)
	if err != nil {
		code, msg := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			h.cfg.Logger.Error("ingest failed", "stored", stored, "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"msg": msg, "stored": stored})
	}
	return c.JSON(fiber.Map{
		"msg":    fmt.Sprintf("Stored %d reading(s).", stored),
		"stored": stored,
	})
}

// namesFor turns an optional sensor name into the name set to aggregate;
// nil means every known sensor.
func namesFor(name string) []string {
	if name == "" {
		return nil
	}
	return []string{name}
}

// ingestItem is one element of the POST /sensors body.
type ingestItem struct {
	SensorName string   `json:"sensorName"`
	Value      *float64 `json:"value"`
}

// toCandidate maps a missing value to NaN so it is rejected at its position in the batch.
func (it ingestItem) toCandidate() sensor.Candidate {
	v := math.NaN()
	if it.Value != nil {
		v = *it.Value
	}
	return sensor.Candidate{SensorName: it.SensorName, Value: v}
}

// daysQuery holds the query parameters of the daily endpoints.
type daysQuery struct {
	Days int `query:"days"`
}

// bind parses days and clamps it to [1, 30]; a missing value means one day.
func (q *daysQuery) bind(c *fiber.Ctx) error {
	if err := c.QueryParser(q); err != nil {
		return fmt.Errorf("days must be an integer")
	}
	q.Days = sensor.Day.ClampCount(q.Days)
	return nil
}

// requireAPIKey compares the Authorization header against a bcrypt hash.
func requireAPIKey(hash string, logger *slog.Logger) fiber.Handler {
	if hash == "" {
		logger.Warn("API_KEY is not set; ingestion is disabled")
	}
	return func(c *fiber.Ctx) error {
		key := c.Get(fiber.HeaderAuthorization)
		if hash == "" || key == "" {
			return sensor.ErrAuth
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return sensor.ErrAuth
		}
		return c.Next()
	}
}
