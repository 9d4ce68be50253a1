package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/repository"
	"github.com/iliyamo/biodata-connect/internal/service"
)

// BiodataHandler serves owner editing, the public catalogue and the
// contact endpoint.
type BiodataHandler struct {
	Biodata     *repository.BiodataRepo
	Connections *service.ConnectionService
}

func NewBiodataHandler(b *repository.BiodataRepo, conns *service.ConnectionService) *BiodataHandler {
	return &BiodataHandler{Biodata: b, Connections: conns}
}

type biodataReq struct {
	FullName       string `json:"full_name"`
	Gender         string `json:"gender"`
	DateOfBirth    string `json:"date_of_birth"` // YYYY-MM-DD
	MaritalStatus  string `json:"marital_status"`
	Religion       string `json:"religion"`
	Occupation     string `json:"occupation"`
	Education      string `json:"education"`
	District       string `json:"district"`
	About          string `json:"about"`
	Email          string `json:"email"`
	OwnMobile      string `json:"own_mobile"`
	GuardianMobile string `json:"guardian_mobile"`
}

func (req biodataReq) toModel() (*model.Biodata, string) {
	b := &model.Biodata{
		FullName:       strings.TrimSpace(req.FullName),
		Gender:         strings.ToLower(strings.TrimSpace(req.Gender)),
		MaritalStatus:  strings.TrimSpace(req.MaritalStatus),
		Religion:       strings.TrimSpace(req.Religion),
		Occupation:     strings.TrimSpace(req.Occupation),
		Education:      strings.TrimSpace(req.Education),
		District:       strings.TrimSpace(req.District),
		About:          strings.TrimSpace(req.About),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		OwnMobile:      strings.TrimSpace(req.OwnMobile),
		GuardianMobile: strings.TrimSpace(req.GuardianMobile),
	}
	if b.FullName == "" {
		return nil, "full_name required"
	}
	if b.Gender != "male" && b.Gender != "female" {
		return nil, "gender must be male or female"
	}
	if b.Email != "" && !strings.Contains(b.Email, "@") {
		return nil, "invalid email"
	}
	if s := strings.TrimSpace(req.DateOfBirth); s != "" {
		dob, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, "date_of_birth must be YYYY-MM-DD"
		}
		b.DateOfBirth = &dob
	}
	return b, ""
}

// GetMine returns the caller's own biodata with every field.
func (h *BiodataHandler) GetMine(c echo.Context) error {
	b, err := h.Biodata.GetByUserID(c.Request().Context(), principal(c).UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no biodata yet", "code": "not_found"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// SaveMine creates or updates the caller's biodata.  A new biodata waits in
// Pending until an admin activates it.
func (h *BiodataHandler) SaveMine(c echo.Context) error {
	var req biodataReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	in, msg := req.toModel()
	if in == nil {
		return badRequest(c, msg)
	}
	b, err := h.Biodata.SaveForUser(c.Request().Context(), principal(c).UserID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// List returns a page of Active biodata in the public projection.
func (h *BiodataHandler) List(c echo.Context) error {
	page, limit, offset := paging(c)
	items, total, err := h.Biodata.ListActive(c.Request().Context(), model.BiodataFilter{
		Gender:   strings.ToLower(strings.TrimSpace(c.QueryParam("gender"))),
		Religion: strings.TrimSpace(c.QueryParam("religion")),
		District: strings.TrimSpace(c.QueryParam("district")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": limit,
	})
}

// Get returns one Active biodata in the public projection.
func (h *BiodataHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	b, err := h.Biodata.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && b.Status != model.BiodataActive) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "biodata not found", "code": "not_found"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b.Public())
}

// Contact returns the contact projection when the caller owns the biodata
// or bought a connection to it.
func (h *BiodataHandler) Contact(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	contact, err := h.Connections.GetBiodataContact(c.Request().Context(), principal(c).UserID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, contact)
}
