package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
	"github.com/aldoetobex/insurance-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup
type SignupRequest struct {
	FirstName     string `json:"first_name" validate:"required,min=1,max=80"`
	LastName      string `json:"last_name" validate:"required,min=1,max=80"`
	Email         string `json:"email" validate:"required,email,max=120"`
	Username      string `json:"username" validate:"required,min=3,max=60"`
	Password      string `json:"password" validate:"required,min=6,max=72"`
	ContactNumber string `json:"contact_number" validate:"omitempty,phone"`
	DateOfBirth   string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	// Defaults to Client
	Role string `json:"role" validate:"omitempty,oneof=Client Agent Writer"`
}

// Request body for /login. Username also accepts the account email.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=120"`
	Password string `json:"password" validate:"required"`
}

// Standard auth response
type AuthResponse struct {
	Token  string      `json:"token"`
	Role   models.Role `json:"role"`
	UserID uint        `json:"user_id"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID            uint        `json:"user_id"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Email         string      `json:"email"`
	Username      string      `json:"username"`
	ContactNumber string      `json:"contact_number"`
	Role          models.Role `json:"role"`
	CreatedAt     time.Time   `json:"created_at"`
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a new user (Client, Agent or Writer)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email or username already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Role == "" {
		in.Role = string(models.RoleClient)
	}

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var dob *time.Time
	if in.DateOfBirth != "" {
		d, _ := time.Parse("2006-01-02", in.DateOfBirth) // checked by the datetime tag
		dob = &d
	}

	var taken int64
	if err := h.db.WithContext(c.UserContext()).Model(&models.User{}).
		Where("email = ? OR username = ?", in.Email, in.Username).
		Count(&taken).Error; err != nil {
		return apperr.Persistence("check user", err)
	}
	if taken > 0 {
		return fiber.NewError(fiber.StatusConflict, "email or username already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	u := models.User{
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		DateOfBirth:   dob,
		Email:         in.Email,
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		Username:      in.Username,
		PasswordHash:  string(hash),
		Role:          models.Role(in.Role),
	}
	if err := h.db.WithContext(c.UserContext()).Create(&u).Error; err != nil {
		// lost a race on the unique index
		return fiber.NewError(fiber.StatusConflict, "email or username already exists")
	}

	token, err := IssueToken(u.ID, u.Role)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Role: u.Role, UserID: u.ID})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate with username or email and receive a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Username = strings.TrimSpace(in.Username)

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	err := h.db.WithContext(c.UserContext()).
		Where("username = ? OR email = ?", in.Username, strings.ToLower(in.Username)).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrUnauthorized
		}
		return apperr.Persistence("load user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, err := IssueToken(u.ID, u.Role)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(AuthResponse{Token: token, Role: u.Role, UserID: u.ID})
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Return the profile of the authenticated user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	var u models.User
	if err := h.db.WithContext(c.UserContext()).First(&u, MustUserID(c)).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	return c.JSON(UserProfileResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Username:      u.Username,
		ContactNumber: u.ContactNumber,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
	})
}
