package app

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/common"
)

// syncInventory reconciles the hosts table with the static inventory.
// Config is the source of truth: new entries are created, changed
// entries updated in place, and hosts no longer listed are disabled
// (not deleted, so their history stays queryable).
func (a *Application) syncInventory() error {
	seen := make(map[string]bool, len(a.appConfig.Inventory))

	for _, hc := range a.appConfig.Inventory {
		seen[hc.Name] = true

		status := common.DISABLED
		if hc.Enabled {
			status = common.ENABLED
		}
		pollInterval := int64(hc.PollInterval.Std() / time.Second)

		var server domain.Server
		err := a.gormDB.Where("name = ?", hc.Name).First(&server).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := a.gormDB.Create(&domain.Server{
				ID:           common.UUIDint64(),
				Name:         hc.Name,
				Address:      hc.Address,
				Port:         hc.Port,
				OsFamily:     hc.OsFamily,
				Credential:   hc.Credential,
				PollInterval: pollInterval,
				Status:       status,
			}).Error; err != nil {
				return errors.Wrapf(err, "create inventory host %s", hc.Name)
			}
			zap.L().Info("initialized inventory host",
				zap.String("name", hc.Name),
				zap.String("address", hc.Address))
		case err != nil:
			return errors.Wrapf(err, "query inventory host %s", hc.Name)
		default:
			if err := a.gormDB.Model(&domain.Server{}).
				Where("id = ?", server.ID).
				Updates(map[string]interface{}{
					"address":       hc.Address,
					"port":          hc.Port,
					"os_family":     hc.OsFamily,
					"credential":    hc.Credential,
					"poll_interval": pollInterval,
					"status":        status,
					"updated_at":    time.Now(),
				}).Error; err != nil {
				return errors.Wrapf(err, "update inventory host %s", hc.Name)
			}
		}
	}

	// Hosts dropped from the inventory stop being polled.
	var enabled []domain.Server
	if err := a.gormDB.Where("status = ?", common.ENABLED).Find(&enabled).Error; err != nil {
		return err
	}
	for _, server := range enabled {
		if !seen[server.Name] {
			if err := a.gormDB.Model(&domain.Server{}).
				Where("id = ?", server.ID).
				Update("status", common.DISABLED).Error; err != nil {
				return errors.Wrapf(err, "disable removed host %s", server.Name)
			}
			zap.L().Warn("disabled host removed from inventory", zap.String("name", server.Name))
		}
	}
	return nil
}
