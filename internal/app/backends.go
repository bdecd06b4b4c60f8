package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clinic-trash/internal/auth"
	"clinic-trash/internal/config"
	"clinic-trash/internal/database"
	"clinic-trash/internal/model"
	"clinic-trash/internal/repository"
	"clinic-trash/internal/service"
	"clinic-trash/internal/store"
)

type auditStore interface {
	service.AuditLog
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// backends is the storage wiring the engine runs on.
type backends struct {
	records    *store.Registry
	trash      service.TrashStore
	audit      auditStore
	principals auth.PrincipalSource
	health     func(ctx context.Context) error
	close      func()
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	logger.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, database.Options{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	pool := db.Pool
	logger.Info("database ready")
	return &backends{
		records:    store.NewClinicRegistry(store.NewPostgresBackend(pool)),
		trash:      repository.NewTrashRepository(pool),
		audit:      repository.NewAuditRepository(pool),
		principals: repository.NewUserRepository(pool),
		health:     db.Health,
		close:      db.Close,
	}, nil
}

// devAdmin is seeded into memory runs so the API can be exercised locally.
var devAdmin = model.Principal{ID: "dev-admin", DisplayName: "Local Admin", Role: "admin"}

func openMemory(cfg *config.Config, logger *slog.Logger) *backends {
	logger.Warn("using in-memory storage, data is lost on restart")

	users := repository.NewMemoryUserStore(devAdmin)
	if token, err := auth.NewTokenValidator(cfg.JWTSecret).IssueToken(devAdmin, 12*time.Hour); err == nil {
		logger.Info("development token issued", "principal_id", devAdmin.ID, "token", token)
	}

	records := store.NewClinicRegistry(store.NewMemoryBackend())
	seedSamples(records, logger)

	return &backends{
		records:    records,
		trash:      repository.NewMemoryTrashStore(),
		audit:      repository.NewMemoryAuditLog(),
		principals: users,
		close:      func() {},
	}
}

// seedSamples puts one record of each registered kind into a memory run.
func seedSamples(records *store.Registry, logger *slog.Logger) {
	now := time.Now().UTC().Truncate(time.Minute)
	samples := map[string]model.Document{
		model.EntityPatient:     {"id": "patient-1", "full_name": "Sample Patient", "phone": "555-0100"},
		model.EntityAppointment: {"id": "appointment-1", "patient_id": "patient-1", "status": "scheduled", "scheduled_at": now.Add(24 * time.Hour).Format(time.RFC3339)},
		model.EntityAttendance:  {"id": "attendance-1", "staff_id": devAdmin.ID, "date": now.Format(time.DateOnly), "check_in": now.Format(time.RFC3339)},
		model.EntityInventory:   {"id": "inventory-1", "sku": "GLV-M", "name": "Nitrile gloves (M)", "quantity": 200, "unit": "box"},
		model.EntityRole:        {"id": "role-1", "name": "reception", "permissions": []any{"appointments:read"}},
	}

	ctx := context.Background()
	for _, entityType := range records.Types() {
		doc, ok := samples[entityType]
		if !ok {
			continue
		}
		collection, err := records.Resolve(entityType)
		if err == nil {
			_, err = collection.Insert(ctx, doc)
		}
		if err != nil {
			logger.Warn("could not seed sample record", "entity_type", entityType, "error", err)
		}
	}
}
