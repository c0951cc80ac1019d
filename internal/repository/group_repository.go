package repository

import (
	"errors"

	"github.com/noteduco342/OMInbox-backend/internal/models"
	"gorm.io/gorm"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) FindByID(id uint) (*models.Group, error) {
	var group models.Group
	if err := r.db.First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// GetMemberStatus returns MembershipNone when the user has no membership row.
func (r *GroupRepository) GetMemberStatus(groupID, userID uint) (models.MembershipStatus, error) {
	var member models.GroupMember
	err := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MembershipNone, nil
	}
	if err != nil {
		return models.MembershipNone, err
	}
	return member.Status, nil
}

func (r *GroupRepository) GetApprovedMemberIDs(groupID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND status = ?", groupID, models.MembershipApproved).
		Pluck("user_id", &ids).Error
	return ids, err
}
