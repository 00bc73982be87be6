package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/pkg/apperr"
	"github.com/d60-Lab/review-feed/pkg/auth"
)

// RegisterInput 注册参数（birth_date 格式 DD/MM/YYYY）
type RegisterInput struct {
	Username     string `validate:"required,min=3"`
	Email        string `validate:"required,email"`
	Password     string `validate:"required,min=6"`
	BirthDate    string `validate:"required,ddmmyyyy"`
	FullName     string
	Phone        string
	ProfilePhoto string
	CNPJ         string
	UserType     string
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, username string) (string, error)
}

type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userService struct {
	users    repository.UserRepository
	tokens   TokenIssuer
	validate *validator.Validate
	now      func() time.Time
}

var dateShape = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

func NewUserService(users repository.UserRepository, tokens TokenIssuer) UserService {
	v := validator.New()
	_ = v.RegisterValidation("ddmmyyyy", func(fl validator.FieldLevel) bool {
		return dateShape.MatchString(fl.Field().String())
	})
	return &userService{users: users, tokens: tokens, validate: v, now: time.Now}
}

var fieldMessages = map[string]string{
	"Username.required":  "Username é obrigatório",
	"Username.min":       "Username deve ter pelo menos 3 caracteres",
	"Email.required":     "Email é obrigatório",
	"Email.email":        "Email inválido",
	"Password.required":  "Senha é obrigatória",
	"Password.min":       "Senha deve ter pelo menos 6 caracteres",
	"BirthDate.required": "Data de nascimento é obrigatória",
	"BirthDate.ddmmyyyy": "Formato de data inválido. Use DD/MM/YYYY",
}

func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		if msg, ok := fieldMessages[ves[0].Field()+"."+ves[0].Tag()]; ok {
			return msg
		}
		return "Campo inválido: " + ves[0].Field()
	}
	return "Dados inválidos"
}

// parseBirthDate expects an already shape-checked DD/MM/YYYY string.
func parseBirthDate(s string) (time.Time, error) {
	parts := strings.Split(s, "/")
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])
	if month < 1 || month > 12 {
		return time.Time{}, apperr.Validation("Mês inválido. Use 01-12")
	}
	if day < 1 || day > 31 {
		return time.Time{}, apperr.Validation("Dia inválido. Use 01-31")
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, apperr.Validation("Data de nascimento inválida")
	}
	return t, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Validation(validationMessage(err))
	}
	birth, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Erro ao processar senha", err)
	}
	userType := strings.TrimSpace(in.UserType)
	if userType == "" {
		userType = model.UserTypeStandard
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		Password:     hash,
		FullName:     optional(in.FullName),
		BirthDate:    &birth,
		Phone:        optional(in.Phone),
		ProfilePhoto: optional(in.ProfilePhoto),
		CNPJ:         optional(in.CNPJ),
		UserType:     userType,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.Wrap(apperr.KindDuplicateKey, duplicateMessage(repository.Constraint(err)), err)
		}
		return nil, fromStore(err, msgUserNotFound)
	}
	return u, nil
}

func duplicateMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "email"):
		return msgEmailTaken
	case strings.Contains(constraint, "username"):
		return msgUsernameTaken
	default:
		return "Email ou username já está em uso"
	}
}

func (s *userService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.Auth(msgInvalidCredential)
		}
		return "", nil, fromStore(err, msgUserNotFound)
	}
	if !auth.CheckPassword(u.Password, password) {
		return "", nil, apperr.Auth(msgInvalidCredential)
	}
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindInternal, "Erro ao gerar token", err)
	}
	return token, u, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	return u, nil
}
