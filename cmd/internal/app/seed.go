package app

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"tdp/cmd/identity"
	"tdp/cmd/identity/ids"
	"tdp/cmd/internal/features"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Features []struct {
		Name        string  `yaml:"name"`
		Description *string `yaml:"description"`
	} `yaml:"features"`
	Admin struct {
		DisplayName *string  `yaml:"displayName"`
		Features    []string `yaml:"features"`
	} `yaml:"admin"`
}

func parseSeed(raw []byte) (seedFile, error) {
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return seedFile{}, fmt.Errorf("seed: parse: %w", err)
	}
	return sf, nil
}

// hasher is the part of password.Config seeding needs.
type hasher interface {
	Hash(password string) (string, error)
}

// Seed creates the default features and admin user. Running it again changes nothing.
func Seed(ctx context.Context, log *slog.Logger, cfg Config, users identity.Store, store features.Store, h hasher) error {
	sf, err := parseSeed(seedYAML)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(existing))
	for _, f := range existing {
		byName[f.Name] = f.ID
	}

	created := 0
	for _, sfe := range sf.Features {
		if _, ok := byName[sfe.Name]; ok {
			continue
		}
		id, err := ids.NewULID(now)
		if err != nil {
			return err
		}
		f, err := store.Create(ctx, features.Feature{ID: id, Name: sfe.Name, Description: sfe.Description, CreatedAt: now})
		if identity.IsConflict(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed: feature %s: %w", sfe.Name, err)
		}
		byName[f.Name] = f.ID
		created++
	}

	adminID, err := ensureAdmin(ctx, cfg, users, h, sf.Admin.DisplayName, now)
	if err != nil {
		return err
	}
	for _, name := range sf.Admin.Features {
		fid, ok := byName[name]
		if !ok {
			// Lost a create race; reload.
			list, err := store.List(ctx)
			if err != nil {
				return err
			}
			for _, f := range list {
				byName[f.Name] = f.ID
			}
			if fid, ok = byName[name]; !ok {
				return fmt.Errorf("seed: admin feature %s missing", name)
			}
		}
		if err := store.Assign(ctx, adminID, fid, now); err != nil {
			return fmt.Errorf("seed: assign %s: %w", name, err)
		}
	}

	log.InfoContext(ctx, "seed.done", "features_created", created, "admin_email", cfg.SeedAdminEmail)
	return nil
}

func ensureAdmin(ctx context.Context, cfg Config, users identity.Store, h hasher, displayName *string, now time.Time) (string, error) {
	ua, err := users.GetUserAuthByEmail(ctx, cfg.SeedAdminEmail)
	if err == nil {
		return ua.User.ID, nil
	}
	if !identity.IsNotFound(err) {
		return "", err
	}

	hash, err := h.Hash(cfg.SeedAdminPassword)
	if err != nil {
		return "", fmt.Errorf("seed: admin password: %w", err)
	}
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Email:        cfg.SeedAdminEmail,
		PasswordHash: hash,
		DisplayName:  displayName,
		Now:          now,
	})
	if identity.IsConflict(err) {
		ua, err := users.GetUserAuthByEmail(ctx, cfg.SeedAdminEmail)
		if err != nil {
			return "", err
		}
		return ua.User.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("seed: admin user: %w", err)
	}
	return u.ID, nil
}
