package main

import (
	"context"
	"errors"
	"os"

	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/logger"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var demoUsers = []service.CreateUserDTO{
	{Username: "requester", Email: "requester@example.com", Role: model.RoleRequester},
	{Username: "requester2", Email: "requester2@example.com", Role: model.RoleRequester},
	{Username: "manager", Email: "manager@example.com", Role: model.RoleManager},
	{Username: "pm", Email: "pm@example.com", Role: model.RoleProjectManager},
	{Username: "admin", Email: "admin@example.com", Role: model.RoleAdmin},
}

var demoInventory = []model.InventoryItem{
	{SKU: "LAP-14-PRO", Name: "14in laptop", Quantity: 12, Status: model.InventoryActive},
	{SKU: "MON-27-4K", Name: "27in 4K monitor", Quantity: 30, Status: model.InventoryActive},
	{SKU: "CHAIR-ERG", Name: "Ergonomic chair", Quantity: 8, Status: model.InventoryActive},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.NewConnection(cfg.DSN(), log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "password123"
	}

	ctx := context.Background()
	users := service.NewUserService(repository.NewUserRepository(db), []byte(cfg.JWTSecret), cfg.StoreTimeout)
	for _, u := range demoUsers {
		u.Password = password
		created, err := users.CreateUser(ctx, u)
		if errors.Is(err, service.ErrValidation) {
			log.Info("user exists, skipping", zap.String("username", u.Username))
			continue
		}
		if err != nil {
			log.Fatal("seed user failed", zap.String("username", u.Username), zap.Error(err))
		}
		log.Info("seeded user", zap.String("username", created.Username), zap.String("role", string(created.Role)))
	}

	inventory := repository.NewInventoryRepository(db)
	for _, item := range demoInventory {
		if _, err := inventory.FindBySKU(ctx, item.SKU); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Fatal("inventory lookup failed", zap.String("sku", item.SKU), zap.Error(err))
		}
		if err := inventory.Create(ctx, &item); err != nil {
			log.Fatal("seed inventory failed", zap.String("sku", item.SKU), zap.Error(err))
		}
		log.Info("seeded inventory", zap.String("sku", item.SKU), zap.Int("quantity", item.Quantity))
	}
}
