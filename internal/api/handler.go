package api

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/service"
)

// Registry is the read side of the entity registry the handlers need.
type Registry interface {
	Descriptor(entityType string) (*metadata.Descriptor, error)
	EntityTypes() []string
}

type Handler struct {
	svc     *service.Service
	reg     Registry
	setters service.Setters
	logger  *zap.Logger
}

func NewHandler(svc *service.Service, reg Registry, setters service.Setters, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, reg: reg, setters: setters, logger: logger}
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "entities": len(h.reg.EntityTypes())})
}

type fieldMeta struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Target string   `json:"target,omitempty"`
	Values []string `json:"values,omitempty"`
}

type entityMeta struct {
	Entity     string                      `json:"entity"`
	IDField    string                      `json:"idField"`
	IDStrategy metadata.IDStrategy         `json:"idStrategy"`
	Storage    metadata.Storage            `json:"storage"`
	Fields     []fieldMeta                 `json:"fields"`
	Dynamic    []metadata.DynamicAttribute `json:"dynamic,omitempty"`
}

// Meta handles GET /api/_meta
func (h *Handler) Meta(c *fiber.Ctx) error {
	types := h.reg.EntityTypes()
	out := make([]entityMeta, 0, len(types))
	for _, t := range types {
		desc, err := h.reg.Descriptor(t)
		if err != nil {
			return err
		}
		m := entityMeta{
			Entity:     desc.EntityType,
			IDField:    desc.IDField,
			IDStrategy: desc.IDStrategy,
			Storage:    desc.Storage,
			Dynamic:    desc.Dynamic,
		}
		for _, p := range desc.Paths() {
			m.Fields = append(m.Fields, fieldMeta{Name: p.Name, Kind: p.Kind.String(), Target: p.Target, Values: p.Values})
		}
		out = append(out, m)
	}
	return c.JSON(fiber.Map{"data": out})
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	desc, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	cfg, err := ParseListConfig(c, desc, h.idStrategy)
	if err != nil {
		return err
	}
	result, err := h.svc.FindAll(c.UserContext(), desc.EntityType, cfg)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, len(result.Data))
	for i, e := range result.Data {
		rows[i] = desc.ToMap(e)
	}
	body := fiber.Map{"data": rows, "orderBy": result.OrderBy}
	if result.Paging != nil {
		body["paging"] = result.Paging
	}
	return c.JSON(body)
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	desc, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	id := parseID(desc, c.Params("id"))
	entity, found, err := h.svc.FindByID(c.UserContext(), desc.EntityType, id)
	if err != nil {
		return err
	}
	if !found {
		return NotFoundError(desc.EntityType, c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": desc.ToMap(entity)})
}

// Create handles POST /api/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	desc, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	body, err := h.parseBody(c, desc)
	if err != nil {
		return err
	}
	saved, err := h.write(c, desc, body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": desc.ToMap(saved)})
}

// Update handles PUT /api/:entity/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	desc, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	body, err := h.parseBody(c, desc)
	if err != nil {
		return err
	}
	delete(body, desc.IDField)
	body[h.svc.IDAttribute()] = parseID(desc, c.Params("id"))
	saved, err := h.write(c, desc, body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": desc.ToMap(saved)})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	desc, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), desc.EntityType, parseID(desc, c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) write(c *fiber.Ctx, desc *metadata.Descriptor, body map[string]any) (any, error) {
	entity, err := h.svc.FindOrCreateAndSetProperties(c.UserContext(), desc.EntityType, h.setters, body)
	if err != nil {
		return nil, err
	}
	return h.svc.SaveGraph(c.UserContext(), entity)
}

func (h *Handler) parseBody(c *fiber.Ctx, desc *metadata.Descriptor) (map[string]any, error) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil || body == nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	if err := coerceProps(desc, body, h.reg.Descriptor, 0); err != nil {
		return nil, err
	}
	if desc.IDStrategy == metadata.IDSequence {
		for _, key := range []string{desc.IDField, h.svc.IDAttribute()} {
			if f, ok := body[key].(float64); ok && f == math.Trunc(f) {
				body[key] = int64(f)
			}
		}
	}
	return body, nil
}

func (h *Handler) resolveEntity(c *fiber.Ctx) (*metadata.Descriptor, error) {
	return h.reg.Descriptor(c.Params("entity"))
}

func (h *Handler) idStrategy(entityType string) metadata.IDStrategy {
	desc, err := h.reg.Descriptor(entityType)
	if err != nil {
		return ""
	}
	return desc.IDStrategy
}

// parseID converts a path id to the representation the descriptor's id
// strategy produces.
func parseID(desc *metadata.Descriptor, raw string) any {
	if desc.IDStrategy == metadata.IDSequence {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return raw
}
