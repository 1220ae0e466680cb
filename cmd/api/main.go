package main

import (
	"context"
	"fmt"
	"net/http"

	"accountd/accounts"
	acctcache "accountd/accounts/cache"
	acctstore "accountd/accounts/store"
	"accountd/accounts/manager"
	"accountd/accounts/tombstone"
	"accountd/config"
	"accountd/internal/collabs"
	"accountd/internal/directory"
	"accountd/internal/middleware"
	"accountd/internal/storage"
	"accountd/internal/transport/httpdto"
	"accountd/pkg/database"
	"accountd/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(log)
	defer log.Logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Errorf("failed to connect to database: %v", err)
		return
	}

	if err := database.ApplyRawMigrations(db, "migrations"); err != nil {
		log.Errorf("failed to apply raw migrations: %v", err)
		return
	}

	if err := acctstore.AutoMigrate(db); err != nil {
		log.Errorf("failed to migrate accounts table: %v", err)
		return
	}
	if err := db.AutoMigrate(
		&directory.PNIRow{},
		&collabs.IdentityKey{},
		&collabs.SignedPreKey{},
		&collabs.OneTimePreKey{},
		&collabs.StoredMessage{},
		&collabs.ProfileRow{},
		&collabs.PendingAccountRow{},
		&collabs.ReservedUsernameRow{},
	); err != nil {
		log.Errorf("failed to apply GORM migrations: %v", err)
		return
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	secureStorageS3, err := storage.NewClient(ctx, storage.S3Config{
		Region:    cfg.SecureStorageRegion,
		Bucket:    cfg.SecureStorageBucket,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Endpoint:  cfg.AWSEndpoint,
	})
	if err != nil {
		log.Errorf("failed to construct secure-storage client: %v", err)
		return
	}
	secureBackupS3, err := storage.NewClient(ctx, storage.S3Config{
		Region:    cfg.SecureBackupRegion,
		Bucket:    cfg.SecureBackupBucket,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Endpoint:  cfg.AWSEndpoint,
	})
	if err != nil {
		log.Errorf("failed to construct secure-backup client: %v", err)
		return
	}

	mgr := manager.New(manager.Deps{
		Store:             acctstore.NewGormStore(db),
		Cache:             acctcache.NewRedisCache(redisClient, cfg.CacheTTL, log),
		Gate:              tombstone.NewRedisGate(redisClient, cfg.LeaseTTL, cfg.TombstoneTTL),
		PNI:               directory.NewGormPNIDirectory(db),
		SecureStorage:     collabs.NewS3SecureStorageClient(secureStorageS3),
		SecureBackup:      collabs.NewS3SecureBackupClient(secureBackupS3),
		Messages:          collabs.NewGormMessagesManager(db),
		PreKeys:           collabs.NewGormPreKeyStore(db),
		Profiles:          collabs.NewGormProfilesManager(db),
		PendingAccounts:   collabs.NewGormPendingAccountsStore(db),
		ReservedUsernames: collabs.NewGormReservedUsernames(db),
		Usernames:         collabs.NewLowercaseUsernameValidator(),
		Presence:          collabs.NewRedisPresenceManager(redisClient, log),
		DirectoryQueue:    collabs.NewRedisDirectoryQueue(redisClient, log),
		Clock:             collabs.NewSystemClock(),
		Metrics:           collabs.NewNoopMetrics(),
		Log:               log,
	})

	r := gin.Default()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(log))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	registerAccountRoutes(r, mgr)

	log.Infof("starting server on port %s", cfg.AppPort)
	if err := r.Run(fmt.Sprintf(":%s", cfg.AppPort)); err != nil {
		log.Errorf("server exited: %v", err)
	}
}

// registerAccountRoutes wires a thin illustrative REST surface over the
// coordinator. The HTTP layer itself, and everything it would need for
// production use (authentication, rate limiting, request validation), is
// out of this module's scope — these routes exist to demonstrate wiring.
func registerAccountRoutes(r *gin.Engine, mgr *manager.Manager) {
	r.POST("/v1/accounts", func(c *gin.Context) {
		var req httpdto.CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "invalid_request"))
			return
		}

		attrs := manager.AccountAttributes{
			RegistrationID:            req.RegistrationID,
			Name:                      req.Name,
			Capabilities:              req.Capabilities,
			DiscoverableByPhoneNumber: req.DiscoverableByPhoneNumber,
			FetchesMessages:           req.FetchesMessages,
		}

		a, err := mgr.Create(c.Request.Context(), req.Number, req.Password, req.UserAgent, attrs, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "create_failed"))
			return
		}
		c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(toAccountResponse(a)))
	})

	r.GET("/v1/accounts/:aci", func(c *gin.Context) {
		aci, err := uuid.Parse(c.Param("aci"))
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid aci", "invalid_request"))
			return
		}
		a, err := mgr.GetByACI(c.Request.Context(), aci)
		if err != nil {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "not_found"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toAccountResponse(a)))
	})

	r.PUT("/v1/accounts/:aci/number", func(c *gin.Context) {
		aci, err := uuid.Parse(c.Param("aci"))
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid aci", "invalid_request"))
			return
		}
		var req httpdto.ChangeNumberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "invalid_request"))
			return
		}

		a, err := mgr.GetByACI(c.Request.Context(), aci)
		if err != nil {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "not_found"))
			return
		}
		updated, err := mgr.ChangeNumber(c.Request.Context(), a, req.NewNumber)
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "change_number_failed"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toAccountResponse(updated)))
	})

	r.PUT("/v1/accounts/:aci/username", func(c *gin.Context) {
		aci, err := uuid.Parse(c.Param("aci"))
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid aci", "invalid_request"))
			return
		}
		var req httpdto.SetUsernameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "invalid_request"))
			return
		}

		a, err := mgr.GetByACI(c.Request.Context(), aci)
		if err != nil {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "not_found"))
			return
		}
		updated, err := mgr.SetUsername(c.Request.Context(), a, req.Username)
		if err != nil {
			c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "username_unavailable"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toAccountResponse(updated)))
	})

	r.DELETE("/v1/accounts/:aci", func(c *gin.Context) {
		aci, err := uuid.Parse(c.Param("aci"))
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid aci", "invalid_request"))
			return
		}
		a, err := mgr.GetByACI(c.Request.Context(), aci)
		if err != nil {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "not_found"))
			return
		}
		if err := mgr.Delete(c.Request.Context(), a, manager.DeletionReasonUserRequest); err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "delete_failed"))
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func toAccountResponse(a *accounts.Account) httpdto.AccountResponse {
	return httpdto.AccountResponse{
		ACI:                       a.ACI.String(),
		PNI:                       a.PNI.String(),
		Number:                    a.Number,
		Username:                  a.Username,
		DiscoverableByPhoneNumber: a.DiscoverableByPhoneNumber,
		DeviceCount:               len(a.Devices),
		CreatedAt:                 a.CreatedAt,
	}
}
