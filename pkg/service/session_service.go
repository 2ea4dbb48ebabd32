// Session and group management
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prdagent/prdagent/pkg/db"
	"github.com/prdagent/prdagent/pkg/models"
	"github.com/prdagent/prdagent/pkg/utils"
)

// SessionService manages chat sessions, groups and group membership.
type SessionService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(database *gorm.DB) *SessionService {
	return &SessionService{
		db:     database,
		logger: utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *SessionService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Session{}, &db.Group{}, &db.GroupMember{})
}

// ========== Sessions ==========

// CreateSession creates a standalone (1:1) session.
func (s *SessionService) CreateSession(req *models.CreateSessionRequest) (*models.Session, error) {
	title := req.Title
	if title == "" {
		title = "New Chat"
	}
	sess := &models.Session{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		DocumentID: req.DocumentID,
		Title:      title,
		Status:     db.SessionStatusActive,
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *SessionService) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	if err := s.db.First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// ListSessions lists sessions for a user, most recently active first.
func (s *SessionService) ListSessions(userID string, limit, offset int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []models.Session
	err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").Limit(limit).Offset(offset).Find(&sessions).Error
	return sessions, err
}

// TeardownSession deletes a session and its messages. This is the only path
// that deletes messages outside group teardown.
func (s *SessionService) TeardownSession(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Session{}, "id = ?", id).Error
	})
}

// Touch bumps a session's updated_at.
func (s *SessionService) Touch(id string) {
	s.db.Model(&db.Session{}).Where("id = ?", id).Update("updated_at", time.Now())
}

// ========== Groups ==========

// CreateGroup creates a group bound to one document, with the owner as the
// first member. Each member gets their own session handle onto the shared
// timeline.
func (s *SessionService) CreateGroup(req *models.CreateGroupRequest) (*models.Group, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("group requires a document")
	}
	group := &models.Group{
		ID:         uuid.New().String(),
		Name:       req.Name,
		DocumentID: req.DocumentID,
		OwnerID:    req.OwnerID,
		Status:     db.SessionStatusActive,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		member := &models.GroupMember{
			ID:       uuid.New().String(),
			GroupID:  group.ID,
			UserID:   req.OwnerID,
			JoinedAt: time.Now(),
		}
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return group, nil
}

// GetGroup retrieves a group by ID.
func (s *SessionService) GetGroup(id string) (*models.Group, error) {
	var group models.Group
	if err := s.db.First(&group, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// ListGroups lists groups a user belongs to.
func (s *SessionService) ListGroups(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Order("groups.updated_at DESC").
		Find(&groups).Error
	return groups, err
}

// JoinGroup adds a user to a group and opens their session onto it.
func (s *SessionService) JoinGroup(groupID string, req *models.JoinGroupRequest) (*models.Session, error) {
	group, err := s.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	var sess *models.Session
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing db.GroupMember
		err := tx.First(&existing, "group_id = ? AND user_id = ?", groupID, req.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			member := &models.GroupMember{
				ID:       uuid.New().String(),
				GroupID:  groupID,
				UserID:   req.UserID,
				JoinedAt: time.Now(),
			}
			if err := tx.Create(member).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		sess = &models.Session{
			ID:         uuid.New().String(),
			UserID:     req.UserID,
			GroupID:    groupID,
			DocumentID: group.DocumentID,
			Title:      group.Name,
			Status:     db.SessionStatusActive,
		}
		return tx.Create(sess).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join group: %w", err)
	}
	return sess, nil
}

// GroupMembers lists members of a group.
func (s *SessionService) GroupMembers(groupID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := s.db.Where("group_id = ?", groupID).Order("joined_at ASC").Find(&members).Error
	return members, err
}

// TeardownGroup deletes a group, its membership, sessions, messages,
// compression state and sequence counter.
func (s *SessionService) TeardownGroup(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&db.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&db.GroupMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&db.GroupCompressionState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&db.GroupSequence{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Group{}, "id = ?", id).Error
	})
}
