package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"ticketbridge/internal/db"
)

type Store struct {
	db *db.DB
}

func NewStore(conn *db.DB) *Store {
	return &Store{db: conn}
}

var ErrOperatorNotFound = errors.New("operator not found")

func (s *Store) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	q := s.db.Rebind(`SELECT username, password_hash, role, created_at FROM ` + db.OperatorsTable + ` WHERE username = ?`)
	o := &Operator{}
	if err := s.db.QueryRowContext(ctx, q, username).Scan(&o.Username, &o.PasswordHash, &o.Role, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}
	return o, nil
}

func (s *Store) Create(ctx context.Context, username, password string, role Role) (*Operator, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	o := &Operator{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	q := s.db.Rebind(`INSERT INTO ` + db.OperatorsTable + ` (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, o.Username, o.PasswordHash, string(o.Role), o.CreatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

type operatorsFile struct {
	Operators []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Role     Role   `yaml:"role"`
	} `yaml:"operators"`
}

// SeedFromFile creates the operators listed in a YAML file. Existing usernames are
// left untouched; a missing role defaults to operator.
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var f operatorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	created := 0
	for _, o := range f.Operators {
		if o.Username == "" || o.Password == "" {
			continue
		}
		if _, err := s.GetByUsername(ctx, o.Username); err == nil {
			continue
		} else if !errors.Is(err, ErrOperatorNotFound) {
			return created, err
		}
		role := o.Role
		if role == "" {
			role = RoleOperator
		}
		if _, err := s.Create(ctx, o.Username, o.Password, role); err != nil {
			return created, fmt.Errorf("seed operator %s: %w", o.Username, err)
		}
		created++
	}
	return created, nil
}
