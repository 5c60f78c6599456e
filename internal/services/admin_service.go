// internal/services/admin_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/deadline"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type AdminService struct {
	db         *gorm.DB
	calculator *deadline.Calculator
}

type AdminDashboardStats struct {
	ApplicationsByStatus     map[string]int64 `json:"applications_by_status"`
	NewApplicationsThisMonth int64            `json:"new_applications_this_month"`
	RequestsByState          map[string]int64 `json:"requests_by_state"`
	OverdueRequests          int              `json:"overdue_requests"`
	FailedNotifications      int64            `json:"failed_notifications"`
	OutstandingFees          decimal.Decimal  `json:"outstanding_fees"`
	ActiveOfficers           int64            `json:"active_officers"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role   models.UserRole   `form:"role"`
	Status models.UserStatus `form:"status"`
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active suspended"`
	Reason string            `json:"reason" validate:"max=500"`
}

func NewAdminService(db *gorm.DB, calculator *deadline.Calculator) *AdminService {
	return &AdminService{
		db:         db,
		calculator: calculator,
	}
}

type groupCount struct {
	GroupKey string
	Count    int64
}

func (s *AdminService) countBy(model interface{}, column string) (map[string]int64, error) {
	var rows []groupCount
	err := s.db.Model(model).
		Select(column + " AS group_key, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.GroupKey] = r.Count
	}
	return out, nil
}

// GetDashboardStats summarises the caseload for the admin dashboard.
func (s *AdminService) GetDashboardStats() (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var err error
	if stats.ApplicationsByStatus, err = s.countBy(&models.PlanningApplication{}, "status"); err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	if stats.RequestsByState, err = s.countBy(&models.ValidationRequest{}, "state"); err != nil {
		return nil, fmt.Errorf("failed to count validation requests: %w", err)
	}

	s.db.Model(&models.PlanningApplication{}).Where("created_at >= ?", monthStart).Count(&stats.NewApplicationsThisMonth)
	s.db.Model(&models.Notification{}).Where("status = ?", models.NotificationStatusFailed).Count(&stats.FailedNotifications)
	s.db.Model(&models.User{}).Where("status = ?", models.UserStatusActive).Count(&stats.ActiveOfficers)

	err = s.db.Model(&models.FeePayment{}).
		Where("status <> ?", "succeeded").
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&stats.OutstandingFees)
	if err != nil {
		return nil, fmt.Errorf("failed to total outstanding fees: %w", err)
	}

	var open []models.ValidationRequest
	if err := s.db.Select("id, created_at, response_days").
		Where("state = ?", models.RequestStateOpen).
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch open requests: %w", err)
	}
	for _, req := range open {
		if s.calculator.Overdue(req.CreatedAt, req.ResponseDays) {
			stats.OverdueRequests++
		}
	}

	return stats, nil
}

// User Management
func (s *AdminService) GetUsers(filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query = utils.ApplyPagination(query.Order("created_at "+filter.Order), filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

// UpdateUserStatus suspends or reactivates an officer. Administrators cannot
// suspend themselves.
func (s *AdminService) UpdateUserStatus(userID, adminID uuid.UUID, req *UpdateUserStatusRequest) (*models.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if userID == adminID && req.Status == models.UserStatusSuspended {
		return nil, &ConflictError{Message: "administrators cannot suspend their own account"}
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	oldStatus := user.Status
	user.Status = req.Status
	if err := s.db.Model(&user).Update("status", req.Status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"admin_id":   adminID,
		"old_status": oldStatus,
		"new_status": req.Status,
		"reason":     req.Reason,
	}).Info("User status changed")

	return &user, nil
}
