package api

import (
	"github.com/ethpandaops/trendsync/pkg/harvest"
	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

type pushResponse struct {
	Pipelines string `json:"pipelines"`
	Results   any    `json:"results"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type handler struct {
	router       *tasks.Router
	appName      string
	defaultTable string
	log          logrus.FieldLogger
}

// push accepts {"message":{"data":"<base64 JSON>"}} and routes the decoded message
func (h *handler) push(c fiber.Ctx) error {
	raw, err := tasks.DecodeEnvelope(c.Body())
	if err != nil {
		return h.fail(c, err)
	}

	req, err := tasks.ParseRequest(raw, h.defaultTable)
	if err != nil {
		return h.fail(c, err)
	}

	result, err := h.router.Route(c.Context(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(pushResponse{Pipelines: h.appName, Results: result})
}

func (h *handler) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) fail(c fiber.Ctx, err error) error {
	kind := tasks.ErrorKind(err)

	observability.RecordError("api", kind)
	h.log.WithError(err).WithField("kind", kind).Warn("Push request failed")

	return c.Status(statusFor(kind)).JSON(errorResponse{Error: kind, Message: err.Error()})
}

// statusFor maps an error kind onto an HTTP status. Pub/Sub redelivers on any non-2xx.
func statusFor(kind string) int {
	switch kind {
	case "UnsupportedRequest", harvest.KindInvalidRange:
		return fiber.StatusBadRequest
	case harvest.KindUnknownTable:
		return fiber.StatusNotFound
	case harvest.KindProviderExhausted, harvest.KindProviderPermanent, harvest.KindProviderTransient:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
