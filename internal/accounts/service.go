package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
)

type Service struct {
	store  *Store
	issuer *auth.Issuer
	clock  ids.Clock
	id     ids.IDGen
}

func NewService(conn *sql.DB, issuer *auth.Issuer, clock ids.Clock, idgen ids.IDGen) *Service {
	return &Service{
		store:  NewStore(conn),
		issuer: issuer,
		clock:  clock,
		id:     idgen,
	}
}

func (s *Service) Directory() notify.Directory { return s.store }

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	acct, err := s.store.GetByEmail(ctx, normEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("login lookup: %w", err)
	}
	// same message for unknown email and bad password
	if acct == nil || !auth.CheckPassword(acct.PasswordHash, req.Password) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if acct.Disabled {
		return nil, apperr.Forbidden("account disabled")
	}

	tok, exp, err := s.issuer.Issue(actorOf(acct), s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &LoginResponse{Token: tok, ExpiresAt: exp, Account: *acct}, nil
}

func actorOf(a *Account) auth.Actor {
	return auth.Actor{ID: a.ID, Role: a.Role, Name: a.Name, Email: a.Email}
}

// Register creates a self-service account. Self-registration always yields
// the user role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, []notify.Event, error) {
	acct, err := s.create(ctx, req.Name, req.Email, req.Password, auth.RoleUser)
	if err != nil {
		return nil, nil, err
	}
	meta := notify.RegistrationMeta{AccountID: acct.ID, Name: acct.Name, Email: acct.Email, Role: acct.Role}
	events := []notify.Event{
		{
			Type:    notify.TypeRegistration,
			Message: fmt.Sprintf("Welcome %s, your account has been created.", acct.Name),
			ToUser:  acct.ID,
			Meta:    meta,
		},
		{
			Type:    notify.TypeRegistration,
			Message: fmt.Sprintf("New account registered: %s (%s).", acct.Name, acct.Email),
			ToRoles: []string{auth.RoleSuperAdmin},
			Meta:    meta,
			Email: &notify.EmailSpec{
				Subject: "New account: " + acct.Name,
				Admin:   true,
				Roles:   []string{auth.RoleSuperAdmin},
			},
		},
	}
	return acct, events, nil
}

func (s *Service) create(ctx context.Context, name, email, password, role string) (*Account, error) {
	name = strings.TrimSpace(name)
	email = normEmail(email)
	if name == "" || email == "" {
		return nil, apperr.Invalid("name and email are required")
	}
	if !auth.ValidRole(role) {
		return nil, apperr.Invalidf("unknown role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock.Now()
	acct := &Account{
		ID:           s.id.NewULID(now),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, acct); err != nil {
		if db.IsDuplicateKey(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acct == nil {
		return nil, apperr.NotFound("account not found")
	}
	return acct, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, req ProfileUpdate) (*Account, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		acct.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		acct.Email = normEmail(*req.Email)
	}
	if req.Password != nil {
		if acct.PasswordHash, err = auth.HashPassword(*req.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}
	return acct, s.save(ctx, acct)
}

func (s *Service) save(ctx context.Context, acct *Account) error {
	if acct.Name == "" || acct.Email == "" {
		return apperr.Invalid("name and email must not be empty")
	}
	// rows affected is not checked: mysql reports 0 for an unchanged row
	if _, err := s.store.Update(ctx, acct); err != nil {
		if db.IsDuplicateKey(err) {
			return apperr.Conflict("email already registered")
		}
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, role *string, p db.Page) (ListResult, error) {
	items, total, err := s.store.List(ctx, role, p)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total, NextOffset: db.NextOffset(total, p)}, nil
}

// Create is the administrative path; the caller picks the role.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Account, error) {
	role := req.Role
	if role == "" {
		role = auth.RoleUser
	}
	return s.create(ctx, req.Name, req.Email, req.Password, role)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Account, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		acct.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		acct.Email = normEmail(*req.Email)
	}
	if req.Role != nil {
		if !auth.ValidRole(*req.Role) {
			return nil, apperr.Invalidf("unknown role %q", *req.Role)
		}
		acct.Role = *req.Role
	}
	if req.Disabled != nil {
		acct.Disabled = *req.Disabled
	}
	return acct, s.save(ctx, acct)
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if actor.ID == id {
		return apperr.Conflict("cannot delete your own account")
	}
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

// SeedAdmin creates the first superadmin. It is a no-op when the email is
// already registered.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string) (*Account, bool, error) {
	existing, err := s.store.GetByEmail(ctx, normEmail(email))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	acct, err := s.create(ctx, name, email, password, auth.RoleSuperAdmin)
	return acct, err == nil, err
}
