package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-po/internal/auth"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// UserStore persists new accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *auth.User) error
}

// UserCLI provisions accounts without going through the HTTP API.
type UserCLI struct {
	store UserStore
	hash  func(string) (string, error)
}

// NewUserCLI constructs the user helper.
func NewUserCLI(store UserStore) (*UserCLI, error) {
	if store == nil {
		return nil, errors.New("user cli: store required")
	}
	return &UserCLI{store: store, hash: auth.HashPassword}, nil
}

// UserSpec describes one account, as a flag set or as an entry of a seed file.
type UserSpec struct {
	Email    string `yaml:"email" json:"email"`
	Name     string `yaml:"name" json:"name"`
	Role     string `yaml:"role" json:"role"`
	Password string `yaml:"password" json:"-"`
}

// UserAddOptions defines flags for the user-add command. When SeedFile is set
// the accounts listed in that YAML file are created instead of User.
type UserAddOptions struct {
	User       UserSpec
	SeedFile   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CreatedUser is the JSON output for one provisioned account.
type CreatedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type seedFile struct {
	Users []UserSpec `yaml:"users"`
}

// AddCommand creates the requested accounts. It stops at the first failure.
func (c *UserCLI) AddCommand(ctx context.Context, opts UserAddOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	specs := []UserSpec{opts.User}
	if opts.SeedFile != "" {
		raw, err := os.ReadFile(opts.SeedFile)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "user-add: %v\n", err)
			return 1
		}
		var seed seedFile
		if err := yaml.Unmarshal(raw, &seed); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "user-add: parse %s: %v\n", opts.SeedFile, err)
			return 1
		}
		specs = seed.Users
	}
	if len(specs) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "user-add: no users to create")
		return 1
	}

	created := make([]CreatedUser, 0, len(specs))
	for _, spec := range specs {
		u, err := c.build(spec)
		if err == nil {
			err = c.store.CreateUser(ctx, u)
		}
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "user-add: %s: %v\n", spec.Email, err)
			return 1
		}
		created = append(created, CreatedUser{ID: u.ID, Email: u.Email, Role: string(u.Role)})
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(created); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "user-add: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	for _, u := range created {
		_, _ = fmt.Fprintf(opts.Stdout, "created %s (%s) id=%s\n", u.Email, u.Role, u.ID)
	}
	return 0
}

func (c *UserCLI) build(spec UserSpec) (*auth.User, error) {
	var v shared.ValidationError
	addr, err := mail.ParseAddress(strings.TrimSpace(spec.Email))
	if err != nil {
		v.Add("email", "invalid email")
	}
	role, ok := shared.ParseRole(spec.Role)
	if !ok {
		v.Add("role", fmt.Sprintf("unknown role %q", spec.Role))
	}
	if len(spec.Password) < 8 {
		v.Add("password", "at least 8 characters")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	hash, err := c.hash(spec.Password)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = addr.Address
	}
	return &auth.User{
		Email:        strings.ToLower(addr.Address),
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}, nil
}
